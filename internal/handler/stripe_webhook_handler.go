package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"nexuspay/config"
	"nexuspay/internal/domain"
	"nexuspay/internal/models"
	"nexuspay/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

// PaymentStore is the slice of PaymentRepository the webhook needs.
// Narrow interfaces keep the handler testable with fakes.
type PaymentStore interface {
	MarkProcessing(sessionID, customerID, intentID string) (*models.Payment, error)
	MarkSucceeded(intentID string, upd repository.SucceededUpdate) (*models.Payment, error)
	MarkFailed(intentID string) (*models.Payment, error)
}

type SubmissionStore interface {
	MarkPaymentPending(id uint) error
	MarkPaid(id uint, amountCents int64, paymentID uint) error
}

type EventStore interface {
	Record(eventID, eventType string) (duplicate bool, err error)
}

type AuditStore interface {
	Create(entry *models.AuditLog) error
}

// PaymentMethodGetter fetches card details for receipt enrichment.
type PaymentMethodGetter interface {
	GetPaymentMethod(id string) (*stripe.PaymentMethod, error)
}

type StripeWebhookHandler struct {
	cfg         *config.Config
	payments    PaymentStore
	submissions SubmissionStore
	events      EventStore
	auditRepo   AuditStore
	stripeAPI   PaymentMethodGetter
}

func NewStripeWebhookHandler(cfg *config.Config, payments PaymentStore, submissions SubmissionStore, events EventStore, auditRepo AuditStore, stripeAPI PaymentMethodGetter) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		cfg:         cfg,
		payments:    payments,
		submissions: submissions,
		events:      events,
		auditRepo:   auditRepo,
		stripeAPI:   stripeAPI,
	}
}

// Options answers the CORS preflight Stripe's docs tell people to allow.
func (h *StripeWebhookHandler) Options(c *gin.Context) {
	setCORSHeaders(c)
	c.Status(http.StatusOK)
}

func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "stripe-signature, content-type")
}

// Handle processes a Stripe webhook delivery. Once the signature checks out
// the answer is always 200: Stripe retries non-2xx responses aggressively,
// and a retry storm on an internal bug helps nobody. Handler errors are
// logged and surfaced in the response body only.
func (h *StripeWebhookHandler) Handle(c *gin.Context) {
	setCORSHeaders(c)

	secret := h.cfg.Stripe.WebhookSecret
	if secret == "" {
		log.Printf("[stripe webhook] STRIPE_WEBHOOK_SECRET is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook secret not configured"})
		return
	}

	sig := c.GetHeader("stripe-signature")
	if sig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing stripe-signature header"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("[stripe webhook] read body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	// Verification runs over the raw bytes; re-serializing the JSON first
	// would break the signature.
	event, err := webhook.ConstructEvent(body, sig, secret)
	if err != nil {
		log.Printf("[stripe webhook] signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if duplicate := h.alreadySeen(&event); duplicate {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.dispatch(&event); err != nil {
		log.Printf("[stripe webhook] %s handler error: %v", event.Type, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// alreadySeen records the event id and reports a duplicate delivery. A
// failure to record is logged and the event still processed; dropping a
// first delivery would be worse than double-processing an idempotent one.
func (h *StripeWebhookHandler) alreadySeen(event *stripe.Event) bool {
	duplicate, err := h.events.Record(event.ID, string(event.Type))
	if err != nil {
		log.Printf("[stripe webhook] dedup record failed for %s: %v", event.ID, err)
		return false
	}
	if duplicate {
		log.Printf("[stripe webhook] duplicate delivery of %s (%s), acknowledging", event.ID, event.Type)
	}
	return duplicate
}

func (h *StripeWebhookHandler) dispatch(event *stripe.Event) error {
	switch string(event.Type) {
	case domain.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(event)
	case domain.EventPaymentSucceeded:
		return h.handlePaymentSucceeded(event)
	case domain.EventPaymentFailed:
		return h.handlePaymentFailed(event)
	default:
		log.Printf("[stripe webhook] unhandled event type: %s", event.Type)
		return nil
	}
}

// handleCheckoutCompleted marks the payment processing once the customer
// finishes the checkout UI. Funds are not settled yet at this point. The
// payment and submission updates are independent best-effort writes.
func (h *StripeWebhookHandler) handleCheckoutCompleted(event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}

	formID, ok := formSubmissionID(sess.Metadata)
	if !ok {
		// Sessions are always created with this key; its absence means the
		// session did not come from our checkout endpoint.
		log.Printf("[stripe webhook] session %s has no %s metadata, skipping", sess.ID, domain.MetadataFormSubmissionID)
		return nil
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	intentID := ""
	if sess.PaymentIntent != nil {
		intentID = sess.PaymentIntent.ID
	}

	var firstErr error
	if _, err := h.payments.MarkProcessing(sess.ID, customerID, intentID); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("[stripe webhook] no payment row for session %s", sess.ID)
		case errors.Is(err, repository.ErrStaleTransition):
			h.logStale("session", sess.ID)
		default:
			log.Printf("[stripe webhook] mark processing for session %s: %v", sess.ID, err)
			firstErr = err
		}
	}

	if err := h.submissions.MarkPaymentPending(formID); err != nil {
		log.Printf("[stripe webhook] mark submission %d pending: %v", formID, err)
		return err
	}
	return firstErr
}

// handlePaymentSucceeded finalizes the payment and propagates paid status to
// the intake form. The payment-method lookup is best-effort enrichment; the
// flow proceeds with empty fields when it fails.
func (h *StripeWebhookHandler) handlePaymentSucceeded(event *stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("parse payment intent: %w", err)
	}

	upd := repository.SucceededUpdate{ReceiptURL: receiptURL(event.Data.Raw, &pi)}
	if pi.PaymentMethod != nil && pi.PaymentMethod.ID != "" {
		pm, err := h.stripeAPI.GetPaymentMethod(pi.PaymentMethod.ID)
		if err != nil {
			log.Printf("[stripe webhook] payment method %s lookup failed: %v", pi.PaymentMethod.ID, err)
		} else {
			upd.PaymentMethodType = string(pm.Type)
			if pm.Card != nil {
				upd.CardBrand = string(pm.Card.Brand)
				upd.CardLast4 = pm.Card.Last4
			}
		}
	}

	p, err := h.payments.MarkSucceeded(pi.ID, upd)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("[stripe webhook] no payment row for intent %s, skipping submission update", pi.ID)
			h.audit(domain.AuditSubmissionStale, "payment_intent", pi.ID, "no payment row matched")
			return nil
		case errors.Is(err, repository.ErrStaleTransition):
			h.logStale("payment_intent", pi.ID)
			return nil
		default:
			return err
		}
	}

	if err := h.submissions.MarkPaid(p.FormSubmissionID, p.AmountCents, p.ID); err != nil {
		log.Printf("[stripe webhook] payment %d succeeded but submission %d update failed: %v", p.ID, p.FormSubmissionID, err)
		h.audit(domain.AuditSubmissionStale, "form_submission", strconv.FormatUint(uint64(p.FormSubmissionID), 10), err.Error())
		return err
	}

	h.audit(domain.AuditPaymentSucceeded, "payment", strconv.FormatUint(uint64(p.ID), 10), "")
	log.Printf("[stripe webhook] payment %d succeeded, submission %d paid", p.ID, p.FormSubmissionID)
	return nil
}

// handlePaymentFailed records the failed attempt. The form submission keeps
// its prior payment_status; the veteran can retry checkout.
func (h *StripeWebhookHandler) handlePaymentFailed(event *stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("parse payment intent: %w", err)
	}

	p, err := h.payments.MarkFailed(pi.ID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Printf("[stripe webhook] no payment row for failed intent %s", pi.ID)
			return nil
		case errors.Is(err, repository.ErrStaleTransition):
			h.logStale("payment_intent", pi.ID)
			return nil
		default:
			return err
		}
	}

	h.audit(domain.AuditPaymentFailed, "payment", strconv.FormatUint(uint64(p.ID), 10), "")
	log.Printf("[stripe webhook] payment %d failed for intent %s", p.ID, pi.ID)
	return nil
}

func (h *StripeWebhookHandler) logStale(resource, id string) {
	log.Printf("[stripe webhook] stale delivery for %s %s dropped", resource, id)
	h.audit(domain.AuditStaleWebhookDropped, resource, id, "")
}

func (h *StripeWebhookHandler) audit(action, resource, resourceID, metadata string) {
	err := h.auditRepo.Create(&models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
	})
	if err != nil {
		log.Printf("[stripe webhook] audit write failed: %v", err)
	}
}

func formSubmissionID(metadata map[string]string) (uint, bool) {
	raw, ok := metadata[domain.MetadataFormSubmissionID]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// receiptURL pulls the receipt off the first charge in the event payload.
// Accounts pinned to older API versions still embed the charges list on the
// intent; newer ones only carry latest_charge.
func receiptURL(raw json.RawMessage, pi *stripe.PaymentIntent) string {
	var payload struct {
		Charges struct {
			Data []struct {
				ReceiptURL string `json:"receipt_url"`
			} `json:"data"`
		} `json:"charges"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Charges.Data) > 0 {
		return payload.Charges.Data[0].ReceiptURL
	}
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ReceiptURL
	}
	return ""
}
