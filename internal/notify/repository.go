package notify

import (
	"context"
	"time"
)

// Repository defines outbox data access.
type Repository interface {
	// FetchPending claims up to limit due outbox rows, moving them to
	// processing so concurrent workers never pick the same row twice.
	FetchPending(ctx context.Context, limit int) ([]*OutboxItem, error)
	// MarkSent finalizes a delivered row.
	MarkSent(ctx context.Context, id int64) error
	// MarkFailed terminally fails a row.
	MarkFailed(ctx context.Context, id int64, cause error) error
	// MarkForRetry returns a row to pending with its next attempt time.
	MarkForRetry(ctx context.Context, id int64, cause error, nextAttemptAt time.Time) error
	// GetQueueStats reports outbox size by status.
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}
