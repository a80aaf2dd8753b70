package models

import (
	"time"

	"nexuspay/internal/domain"
)

// FormSubmission is a veteran's intake form. It is created by the intake
// endpoint; the webhook flow only touches the payment_* columns.
type FormSubmission struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Reference          string    `gorm:"size:64;uniqueIndex" json:"reference"`
	FullName           string    `gorm:"size:255;not null" json:"full_name"`
	Email              string    `gorm:"size:255;not null;index" json:"email"`
	Phone              string    `gorm:"size:50" json:"phone"`
	ServiceBranch      string    `gorm:"size:100" json:"service_branch"`
	CurrentRating      int       `json:"current_rating"`
	ConditionSummary   string    `gorm:"type:text" json:"condition_summary"`
	PaymentStatus      string    `gorm:"size:20;not null;default:'unpaid';index" json:"payment_status"` // unpaid, pending, paid
	PaymentAmountCents int64     `json:"payment_amount_cents"`
	PaymentID          *uint     `gorm:"index" json:"payment_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (FormSubmission) TableName() string {
	return "form_submissions"
}

func (s *FormSubmission) Paid() bool {
	return s.PaymentStatus == domain.SubmissionPaid
}
