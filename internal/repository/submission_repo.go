package repository

import (
	"nexuspay/internal/domain"
	"nexuspay/internal/models"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(s *models.FormSubmission) error {
	return r.db.Create(s).Error
}

func (r *SubmissionRepository) GetByID(id uint) (*models.FormSubmission, error) {
	var s models.FormSubmission
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) GetByReference(ref string) (*models.FormSubmission, error) {
	var s models.FormSubmission
	if err := r.db.Where("reference = ?", ref).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkPaymentPending flags the submission as awaiting settlement. A paid
// submission is never moved back to pending.
func (r *SubmissionRepository) MarkPaymentPending(id uint) error {
	return r.db.Model(&models.FormSubmission{}).
		Where("id = ? AND payment_status <> ?", id, domain.SubmissionPaid).
		Update("payment_status", domain.SubmissionPending).Error
}

// MarkPaid records settlement on the submission, copying the amount from the
// payment row and back-referencing it.
func (r *SubmissionRepository) MarkPaid(id uint, amountCents int64, paymentID uint) error {
	return r.db.Model(&models.FormSubmission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_status":       domain.SubmissionPaid,
			"payment_amount_cents": amountCents,
			"payment_id":           paymentID,
		}).Error
}

// StalePair is a succeeded payment whose submission never reached paid.
// These are exactly the rows the always-acknowledge webhook design can leak.
type StalePair struct {
	PaymentID        uint   `json:"payment_id"`
	FormSubmissionID uint   `json:"form_submission_id"`
	IntentID         string `json:"stripe_payment_intent_id"`
	AmountCents      int64  `json:"amount_cents"`
	PaymentStatus    string `json:"payment_status"`
	SubmissionStatus string `json:"submission_status"`
}

func (r *SubmissionRepository) ListStale() ([]StalePair, error) {
	var rows []StalePair
	err := r.db.Table("payments").
		Select("payments.id AS payment_id, payments.form_submission_id, payments.stripe_payment_intent_id AS intent_id, payments.amount_cents, payments.status AS payment_status, form_submissions.payment_status AS submission_status").
		Joins("JOIN form_submissions ON form_submissions.id = payments.form_submission_id").
		Where("payments.status = ? AND form_submissions.payment_status <> ?", domain.PaymentStatusSucceeded, domain.SubmissionPaid).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
