package domain

import "time"

// PaymentIntentStatus is the state of a payment intent in the reference gate.
type PaymentIntentStatus string

// Payment intent statuses.
const (
	PaymentIntentPending PaymentIntentStatus = "pending"
	PaymentIntentPaid    PaymentIntentStatus = "paid"
	PaymentIntentExpired PaymentIntentStatus = "expired"
)

// PaymentIntent is one charge attached to a queue item. The intent carries
// its own checkout deadline, evaluated lazily the same way queue items are.
type PaymentIntent struct {
	ID          string              `json:"id"`
	QueueItemID string              `json:"queue_item_id"`
	AmountCents int64               `json:"amount_cents"`
	Status      PaymentIntentStatus `json:"status"`
	ExpiresAt   time.Time           `json:"expires_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	PaidAt      *time.Time          `json:"paid_at,omitempty"`
}

// PaymentHandle is returned to the client when a doctor enables payment,
// carrying what checkout needs to complete the charge.
type PaymentHandle struct {
	PaymentID   string    `json:"payment_id"`
	QueueItemID string    `json:"queue_item_id"`
	AmountCents int64     `json:"amount_cents"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// QuotaWindowKind distinguishes the two rolling emergency-broadcast windows.
type QuotaWindowKind string

// Quota window kinds.
const (
	QuotaWindowDaily   QuotaWindowKind = "daily"
	QuotaWindowMonthly QuotaWindowKind = "monthly"
)
