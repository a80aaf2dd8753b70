package models

import "time"

// WebhookEvent records every Stripe event id we have accepted. The unique
// index is the dedup guard against at-least-once redelivery.
type WebhookEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StripeEventID string    `gorm:"size:255;uniqueIndex;not null" json:"stripe_event_id"`
	Type          string    `gorm:"size:100;index" json:"type"`
	CreatedAt     time.Time `json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
