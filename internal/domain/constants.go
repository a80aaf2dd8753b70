package domain

// Payment statuses form a one-directional progression; a terminal status
// never moves back to an earlier one.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
)

const (
	SubmissionUnpaid  = "unpaid"
	SubmissionPending = "pending"
	SubmissionPaid    = "paid"
)

// Stripe event types this backend dispatches on.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// Metadata key set on the Checkout Session at creation time; the webhook
// relies on it to find the intake form a payment belongs to.
const MetadataFormSubmissionID = "formSubmissionId"

const (
	AuditPaymentSucceeded    = "payment_succeeded"
	AuditPaymentFailed       = "payment_failed"
	AuditSubmissionStale     = "submission_update_skipped"
	AuditStaleWebhookDropped = "stale_webhook_dropped"
)
