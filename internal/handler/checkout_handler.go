package handler

import (
	"log"
	"net/http"
	"strconv"

	"nexuspay/config"
	"nexuspay/internal/domain"
	"nexuspay/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
)

type SubmissionGetter interface {
	GetByID(id uint) (*models.FormSubmission, error)
}

type PaymentCreator interface {
	Create(p *models.Payment) error
}

type CheckoutSessionCreator interface {
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type CheckoutHandler struct {
	cfg         *config.Config
	submissions SubmissionGetter
	payments    PaymentCreator
	stripeAPI   CheckoutSessionCreator
}

func NewCheckoutHandler(cfg *config.Config, submissions SubmissionGetter, payments PaymentCreator, stripeAPI CheckoutSessionCreator) *CheckoutHandler {
	return &CheckoutHandler{cfg: cfg, submissions: submissions, payments: payments, stripeAPI: stripeAPI}
}

// Create opens a Stripe Checkout Session for an intake form and records the
// pending payment row. The formSubmissionId metadata set here is what the
// webhook uses to find its way back to the submission.
func (h *CheckoutHandler) Create(c *gin.Context) {
	var req struct {
		FormSubmissionID uint `json:"form_submission_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.submissions.GetByID(req.FormSubmissionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	if s.Paid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submission already paid"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(h.cfg.Stripe.SuccessURL),
		CancelURL:         stripe.String(h.cfg.Stripe.CancelURL),
		CustomerEmail:     stripe.String(s.Email),
		ClientReferenceID: stripe.String(s.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(h.cfg.Stripe.Currency),
					UnitAmount: stripe.Int64(h.cfg.Stripe.ServicePriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Disability claim nexus review"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata(domain.MetadataFormSubmissionID, strconv.FormatUint(uint64(s.ID), 10))

	sess, err := h.stripeAPI.CreateCheckoutSession(params)
	if err != nil {
		log.Printf("[checkout] create session for submission %d: %v", s.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not create checkout session"})
		return
	}

	pay := &models.Payment{
		FormSubmissionID: s.ID,
		StripeSessionID:  sess.ID,
		AmountCents:      h.cfg.Stripe.ServicePriceCents,
		Currency:         h.cfg.Stripe.Currency,
		Status:           domain.PaymentStatusPending,
	}
	if sess.PaymentIntent != nil {
		pay.StripePaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.AmountTotal > 0 {
		pay.AmountCents = sess.AmountTotal
	}
	if err := h.payments.Create(pay); err != nil {
		log.Printf("[checkout] save payment for session %s: %v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   sess.ID,
		"checkout_url": sess.URL,
		"payment_id":   pay.ID,
	})
}
