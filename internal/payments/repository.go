package payments

import (
	"context"
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// Repository is the storage seam for payment intents.
type Repository interface {
	// CreateIntent persists a new intent.
	CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error
	// GetIntentByQueueItem returns the most recent intent for a queue item,
	// or ErrIntentNotFound when none was ever created.
	GetIntentByQueueItem(ctx context.Context, queueItemID string) (*domain.PaymentIntent, error)
	// GetIntentWithOwner returns an intent together with the patient that
	// owns the queue item it charges for.
	GetIntentWithOwner(ctx context.Context, id string) (*domain.PaymentIntent, string, error)
	// MarkPaid flips a pending intent to paid. It reports false when the
	// intent was no longer pending.
	MarkPaid(ctx context.Context, id string, now time.Time) (bool, error)
	// MarkExpired flips a pending intent to expired. It reports false when
	// the intent was no longer pending.
	MarkExpired(ctx context.Context, id string) (bool, error)
}
