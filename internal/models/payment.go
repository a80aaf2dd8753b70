package models

import (
	"time"

	"nexuspay/internal/domain"
)

// Payment tracks one Stripe Checkout attempt for an intake form. The row is
// created when the session is created; webhooks only move it forward.
type Payment struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	FormSubmissionID      uint       `gorm:"not null;index" json:"form_submission_id"`
	StripeSessionID       string     `gorm:"size:255;uniqueIndex" json:"stripe_session_id"`
	StripePaymentIntentID string     `gorm:"size:255;index" json:"stripe_payment_intent_id"`
	StripeCustomerID      string     `gorm:"size:255" json:"stripe_customer_id"`
	AmountCents           int64      `gorm:"not null" json:"amount_cents"`
	Currency              string     `gorm:"size:3;default:'usd'" json:"currency"`
	Status                string     `gorm:"size:20;not null;index" json:"status"` // pending, processing, succeeded, failed
	PaymentMethodType     string     `gorm:"size:50" json:"payment_method_type"`
	CardBrand             string     `gorm:"size:20" json:"card_brand"`
	CardLast4             string     `gorm:"size:4" json:"card_last4"`
	ReceiptURL            string     `gorm:"size:512" json:"receipt_url"`
	PaidAt                *time.Time `json:"paid_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

var statusRank = map[string]int{
	domain.PaymentStatusPending:    0,
	domain.PaymentStatusProcessing: 1,
	domain.PaymentStatusSucceeded:  2,
	domain.PaymentStatusFailed:     2,
}

// CanAdvanceTo reports whether moving to next respects the one-directional
// status progression. Re-applying the current status is allowed so duplicate
// deliveries stay idempotent; a terminal status accepts nothing else.
func (p *Payment) CanAdvanceTo(next string) bool {
	cur, ok := statusRank[p.Status]
	if !ok {
		return true
	}
	n, ok := statusRank[next]
	if !ok {
		return false
	}
	if next == p.Status {
		return true
	}
	if p.Status == domain.PaymentStatusSucceeded || p.Status == domain.PaymentStatusFailed {
		return false
	}
	return n >= cur
}
