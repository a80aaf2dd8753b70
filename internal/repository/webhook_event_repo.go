package repository

import (
	"errors"

	"nexuspay/internal/models"

	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record inserts the event id and reports whether it was already seen.
// Relies on the unique index plus gorm error translation, so concurrent
// duplicate deliveries race safely at the database.
func (r *WebhookEventRepository) Record(eventID, eventType string) (duplicate bool, err error) {
	e := models.WebhookEvent{StripeEventID: eventID, Type: eventType}
	if err := r.db.Create(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
