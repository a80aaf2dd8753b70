package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexuspay/config"
	"nexuspay/internal/handler"
	"nexuspay/internal/models"
	"nexuspay/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_nexuspay"

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakePayments struct {
	processingCalls int
	succeededCalls  int
	failedCalls     int
	lastSessionID   string
	lastCustomerID  string
	lastIntentID    string
	lastUpdate      repository.SucceededUpdate
	payment         *models.Payment
	err             error
}

func (f *fakePayments) MarkProcessing(sessionID, customerID, intentID string) (*models.Payment, error) {
	f.processingCalls++
	f.lastSessionID = sessionID
	f.lastCustomerID = customerID
	f.lastIntentID = intentID
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}

func (f *fakePayments) MarkSucceeded(intentID string, upd repository.SucceededUpdate) (*models.Payment, error) {
	f.succeededCalls++
	f.lastIntentID = intentID
	f.lastUpdate = upd
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}

func (f *fakePayments) MarkFailed(intentID string) (*models.Payment, error) {
	f.failedCalls++
	f.lastIntentID = intentID
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}

type fakeSubmissions struct {
	pendingCalls int
	paidCalls    int
	paidID       uint
	paidAmount   int64
	paidPayment  uint
	err          error
}

func (f *fakeSubmissions) MarkPaymentPending(id uint) error {
	f.pendingCalls++
	return f.err
}

func (f *fakeSubmissions) MarkPaid(id uint, amountCents int64, paymentID uint) error {
	f.paidCalls++
	f.paidID = id
	f.paidAmount = amountCents
	f.paidPayment = paymentID
	return f.err
}

type fakeEvents struct {
	seen map[string]bool
	err  error
}

func (f *fakeEvents) Record(eventID, eventType string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

type fakeAudit struct {
	entries []models.AuditLog
}

func (f *fakeAudit) Create(entry *models.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeStripeAPI struct {
	pm    *stripe.PaymentMethod
	err   error
	calls int
}

func (f *fakeStripeAPI) GetPaymentMethod(id string) (*stripe.PaymentMethod, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pm, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type env struct {
	engine      *gin.Engine
	payments    *fakePayments
	submissions *fakeSubmissions
	events      *fakeEvents
	audit       *fakeAudit
	stripeAPI   *fakeStripeAPI
}

func newEnv(secret string) *env {
	gin.SetMode(gin.TestMode)
	e := &env{
		payments:    &fakePayments{},
		submissions: &fakeSubmissions{},
		events:      &fakeEvents{},
		audit:       &fakeAudit{},
		stripeAPI:   &fakeStripeAPI{},
	}
	cfg := &config.Config{}
	cfg.Stripe.WebhookSecret = secret
	h := handler.NewStripeWebhookHandler(cfg, e.payments, e.submissions, e.events, e.audit, e.stripeAPI)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.POST("/api/v1/webhooks/stripe", h.Handle)
	engine.OPTIONS("/api/v1/webhooks/stripe", h.Options)
	e.engine = engine
	return e
}

func signPayload(t *testing.T, payload []byte) (body []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func (e *env) post(t *testing.T, payload []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	body := payload
	header := ""
	if sign {
		body, header = signPayload(t, payload)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	return rr
}

func (e *env) writes() int {
	return e.payments.processingCalls + e.payments.succeededCalls + e.payments.failedCalls +
		e.submissions.pendingCalls + e.submissions.paidCalls
}

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"api_version":%q,"data":{"object":%s}}`,
		id, eventType, stripe.APIVersion, object))
}

func checkoutCompletedPayload(id string, metadata string) []byte {
	object := fmt.Sprintf(`{"id":"cs_test_1","customer":"cus_test_1","payment_intent":"pi_test_1","metadata":%s}`, metadata)
	return eventPayload(id, "checkout.session.completed", object)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Signature and method gates
// ---------------------------------------------------------------------------

func TestWebhookMissingSignature(t *testing.T) {
	e := newEnv(testWebhookSecret)
	rr := e.post(t, checkoutCompletedPayload("evt_nosig", `{"formSubmissionId":"42"}`), false)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

func TestWebhookTamperedSignature(t *testing.T) {
	e := newEnv(testWebhookSecret)
	payload := checkoutCompletedPayload("evt_tampered", `{"formSubmissionId":"42"}`)
	body, header := signPayload(t, payload)
	// Flip a byte after signing.
	body = append(body[:len(body)-2], '1', '}')
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", header)
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

func TestWebhookMethodGate(t *testing.T) {
	e := newEnv(testWebhookSecret)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/v1/webhooks/stripe", nil)
		rr := httptest.NewRecorder()
		e.engine.ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: got %d, want %d", method, rr.Code, http.StatusMethodNotAllowed)
		}
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

func TestWebhookOptionsPreflight(t *testing.T) {
	e := newEnv(testWebhookSecret)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/webhooks/stripe", nil)
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	headers := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "stripe-signature, content-type",
	}
	for k, want := range headers {
		if got := rr.Header().Get(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

func TestWebhookMissingSecretFailsClosed(t *testing.T) {
	e := newEnv("")
	rr := e.post(t, checkoutCompletedPayload("evt_nosecret", `{"formSubmissionId":"42"}`), true)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

// ---------------------------------------------------------------------------
// checkout.session.completed
// ---------------------------------------------------------------------------

func TestCheckoutCompleted(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.payment = &models.Payment{ID: 7, FormSubmissionID: 42}
	rr := e.post(t, checkoutCompletedPayload("evt_cc_1", `{"formSubmissionId":"42"}`), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.payments.processingCalls != 1 {
		t.Errorf("processing calls: got %d, want 1", e.payments.processingCalls)
	}
	if e.payments.lastSessionID != "cs_test_1" || e.payments.lastCustomerID != "cus_test_1" || e.payments.lastIntentID != "pi_test_1" {
		t.Errorf("unexpected MarkProcessing args: %q %q %q", e.payments.lastSessionID, e.payments.lastCustomerID, e.payments.lastIntentID)
	}
	if e.submissions.pendingCalls != 1 {
		t.Errorf("pending calls: got %d, want 1", e.submissions.pendingCalls)
	}
}

func TestCheckoutCompletedMissingMetadata(t *testing.T) {
	e := newEnv(testWebhookSecret)
	rr := e.post(t, checkoutCompletedPayload("evt_cc_nometa", `{}`), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

func TestCheckoutCompletedPaymentMissingStillUpdatesSubmission(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.err = gorm.ErrRecordNotFound
	rr := e.post(t, checkoutCompletedPayload("evt_cc_norow", `{"formSubmissionId":"42"}`), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.submissions.pendingCalls != 1 {
		t.Errorf("pending calls: got %d, want 1", e.submissions.pendingCalls)
	}
	if _, hasErr := decodeResponse(t, rr)["error"]; hasErr {
		t.Errorf("missing payment row should not surface an error: %s", rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// payment_intent.succeeded
// ---------------------------------------------------------------------------

func succeededPayload(id string) []byte {
	object := `{"id":"pi_test_1","amount":19900,"payment_method":"pm_test_1","charges":{"data":[{"receipt_url":"https://pay.stripe.com/receipts/r1"}]}}`
	return eventPayload(id, "payment_intent.succeeded", object)
}

func TestPaymentSucceededHappyPath(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.payment = &models.Payment{ID: 7, FormSubmissionID: 42, AmountCents: 19900}
	e.stripeAPI.pm = &stripe.PaymentMethod{
		ID:   "pm_test_1",
		Type: stripe.PaymentMethodTypeCard,
		Card: &stripe.PaymentMethodCard{Brand: stripe.PaymentMethodCardBrandVisa, Last4: "4242"},
	}
	rr := e.post(t, succeededPayload("evt_ps_1"), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.stripeAPI.calls != 1 {
		t.Errorf("payment method lookups: got %d, want 1", e.stripeAPI.calls)
	}
	upd := e.payments.lastUpdate
	if upd.PaymentMethodType != "card" || upd.CardBrand != "visa" || upd.CardLast4 != "4242" {
		t.Errorf("enrichment fields: %+v", upd)
	}
	if upd.ReceiptURL != "https://pay.stripe.com/receipts/r1" {
		t.Errorf("receipt url: got %q", upd.ReceiptURL)
	}
	if e.submissions.paidCalls != 1 {
		t.Fatalf("paid calls: got %d, want 1", e.submissions.paidCalls)
	}
	if e.submissions.paidID != 42 || e.submissions.paidAmount != 19900 || e.submissions.paidPayment != 7 {
		t.Errorf("paid args: id=%d amount=%d payment=%d", e.submissions.paidID, e.submissions.paidAmount, e.submissions.paidPayment)
	}
}

func TestPaymentSucceededEnrichmentFailureIsNotFatal(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.payment = &models.Payment{ID: 7, FormSubmissionID: 42, AmountCents: 19900}
	e.stripeAPI.err = errors.New("stripe api down")
	rr := e.post(t, succeededPayload("evt_ps_noenrich"), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.payments.succeededCalls != 1 {
		t.Errorf("succeeded calls: got %d, want 1", e.payments.succeededCalls)
	}
	if upd := e.payments.lastUpdate; upd.PaymentMethodType != "" || upd.CardBrand != "" {
		t.Errorf("expected empty enrichment, got %+v", upd)
	}
	if e.submissions.paidCalls != 1 {
		t.Errorf("paid calls: got %d, want 1", e.submissions.paidCalls)
	}
}

func TestPaymentSucceededNoMatchingRow(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.err = gorm.ErrRecordNotFound
	rr := e.post(t, succeededPayload("evt_ps_norow"), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.submissions.paidCalls != 0 {
		t.Errorf("paid calls: got %d, want 0", e.submissions.paidCalls)
	}
	if _, hasErr := decodeResponse(t, rr)["error"]; hasErr {
		t.Errorf("no matching row should be absorbed: %s", rr.Body.String())
	}
	if len(e.audit.entries) == 0 {
		t.Error("expected an audit entry for the skipped submission update")
	}
}

// ---------------------------------------------------------------------------
// payment_intent.payment_failed
// ---------------------------------------------------------------------------

func TestPaymentFailed(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.payment = &models.Payment{ID: 7, FormSubmissionID: 42}
	payload := eventPayload("evt_pf_1", "payment_intent.payment_failed", `{"id":"pi_test_1"}`)
	rr := e.post(t, payload, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.payments.failedCalls != 1 {
		t.Errorf("failed calls: got %d, want 1", e.payments.failedCalls)
	}
	if e.submissions.pendingCalls != 0 || e.submissions.paidCalls != 0 {
		t.Errorf("submission must stay untouched: pending=%d paid=%d", e.submissions.pendingCalls, e.submissions.paidCalls)
	}
}

// ---------------------------------------------------------------------------
// Error boundary, unknown types, dedup, ordering
// ---------------------------------------------------------------------------

func TestHandlerErrorStillAcknowledged(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.err = errors.New("database is on fire")
	rr := e.post(t, succeededPayload("evt_boom"), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	out := decodeResponse(t, rr)
	if out["received"] != true {
		t.Errorf("received: got %v", out["received"])
	}
	if out["error"] != "database is on fire" {
		t.Errorf("error: got %v", out["error"])
	}
}

func TestUnknownEventType(t *testing.T) {
	e := newEnv(testWebhookSecret)
	payload := eventPayload("evt_unknown", "invoice.paid", `{"id":"in_test_1"}`)
	rr := e.post(t, payload, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.writes() != 0 {
		t.Errorf("expected zero writes, got %d", e.writes())
	}
}

func TestDuplicateDeliveryIsDropped(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.payment = &models.Payment{ID: 7, FormSubmissionID: 42, AmountCents: 19900}
	for i := 0; i < 2; i++ {
		rr := e.post(t, succeededPayload("evt_dup"), true)
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d: got %d, want %d", i, rr.Code, http.StatusOK)
		}
	}
	if e.payments.succeededCalls != 1 {
		t.Errorf("succeeded calls: got %d, want 1", e.payments.succeededCalls)
	}
}

func TestDedupFailureStillProcesses(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.events.err = errors.New("events table unavailable")
	e.payments.payment = &models.Payment{ID: 7, FormSubmissionID: 42, AmountCents: 19900}
	rr := e.post(t, succeededPayload("evt_dedup_down"), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if e.payments.succeededCalls != 1 {
		t.Errorf("succeeded calls: got %d, want 1", e.payments.succeededCalls)
	}
}

func TestStaleTransitionIsAbsorbed(t *testing.T) {
	e := newEnv(testWebhookSecret)
	e.payments.err = repository.ErrStaleTransition
	payload := eventPayload("evt_stale", "payment_intent.payment_failed", `{"id":"pi_test_1"}`)
	rr := e.post(t, payload, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if _, hasErr := decodeResponse(t, rr)["error"]; hasErr {
		t.Errorf("stale delivery should be absorbed: %s", rr.Body.String())
	}
	if e.submissions.pendingCalls != 0 || e.submissions.paidCalls != 0 {
		t.Error("stale delivery must not touch the submission")
	}
}
