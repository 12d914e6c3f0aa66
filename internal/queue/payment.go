package queue

import (
	"context"

	"github.com/meddesk/consultq/internal/domain"
)

// PaymentGate is the capability interface the engine consumes to gate
// transitions on payment. The gate is the sole source of truth for
// paid/expired; the engine never inspects provider-specific fields.
type PaymentGate interface {
	// StatusFor reports the current payment status of a queue item,
	// lazily expiring overdue pending payments as a side effect.
	StatusFor(ctx context.Context, queueItemID string) (domain.PaymentStatus, error)

	// Enable creates a charge for a queue item and returns the identifiers
	// the client needs to complete checkout.
	Enable(ctx context.Context, queueItemID string, amountCents int64) (*domain.PaymentHandle, error)
}
