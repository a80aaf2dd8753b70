package repository

import (
	"errors"
	"time"

	"nexuspay/internal/domain"
	"nexuspay/internal/models"

	"gorm.io/gorm"
)

// ErrStaleTransition is returned when a webhook would move a payment
// backwards (e.g. a late failed event after succeeded). The row is left
// untouched.
var ErrStaleTransition = errors.New("stale payment status transition")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetBySessionID(sessionID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("stripe_session_id = ?", sessionID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByIntentID(intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("stripe_payment_intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkProcessing moves the payment for a completed checkout session to
// processing and attaches the Stripe customer and payment-intent ids carried
// by the session payload. The intent id is what the later succeeded/failed
// events are matched on.
func (r *PaymentRepository) MarkProcessing(sessionID, customerID, intentID string) (*models.Payment, error) {
	p, err := r.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if !p.CanAdvanceTo(domain.PaymentStatusProcessing) {
		return nil, ErrStaleTransition
	}
	p.Status = domain.PaymentStatusProcessing
	if customerID != "" {
		p.StripeCustomerID = customerID
	}
	if intentID != "" {
		p.StripePaymentIntentID = intentID
	}
	if err := r.db.Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// SucceededUpdate carries the enrichment fields written on a successful
// payment. Empty strings are written as-is; enrichment is best-effort.
type SucceededUpdate struct {
	PaymentMethodType string
	CardBrand         string
	CardLast4         string
	ReceiptURL        string
}

// MarkSucceeded finalizes the payment matched by intent id and returns the
// updated row so the caller can propagate paid status to the form
// submission. Returns gorm.ErrRecordNotFound when no row matches.
func (r *PaymentRepository) MarkSucceeded(intentID string, upd SucceededUpdate) (*models.Payment, error) {
	p, err := r.GetByIntentID(intentID)
	if err != nil {
		return nil, err
	}
	if !p.CanAdvanceTo(domain.PaymentStatusSucceeded) {
		return nil, ErrStaleTransition
	}
	now := time.Now()
	p.Status = domain.PaymentStatusSucceeded
	p.PaymentMethodType = upd.PaymentMethodType
	p.CardBrand = upd.CardBrand
	p.CardLast4 = upd.CardLast4
	p.ReceiptURL = upd.ReceiptURL
	p.PaidAt = &now
	if err := r.db.Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) MarkFailed(intentID string) (*models.Payment, error) {
	p, err := r.GetByIntentID(intentID)
	if err != nil {
		return nil, err
	}
	if !p.CanAdvanceTo(domain.PaymentStatusFailed) {
		return nil, ErrStaleTransition
	}
	p.Status = domain.PaymentStatusFailed
	if err := r.db.Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}
