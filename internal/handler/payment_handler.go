package handler

import (
	"net/http"

	"nexuspay/internal/repository"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentRepo *repository.PaymentRepository
}

func NewPaymentHandler(paymentRepo *repository.PaymentRepository) *PaymentHandler {
	return &PaymentHandler{paymentRepo: paymentRepo}
}

// GetBySession is polled by the success page after Stripe redirects back.
func (h *PaymentHandler) GetBySession(c *gin.Context) {
	p, err := h.paymentRepo.GetBySessionID(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       p.Status,
		"amount_cents": p.AmountCents,
		"currency":     p.Currency,
		"receipt_url":  p.ReceiptURL,
		"paid_at":      p.PaidAt,
	})
}
