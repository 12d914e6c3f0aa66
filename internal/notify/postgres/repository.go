// Package postgres provides the PostgreSQL implementation of the event outbox.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meddesk/consultq/internal/notify"
)

// Repository implements notify.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FetchPending claims due rows with SKIP LOCKED so multiple workers can
// poll the same table without stepping on each other.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]*notify.OutboxItem, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE queue_events
		SET delivery_status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM queue_events
			WHERE delivery_status = 'pending' AND next_attempt_at <= now()
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue_item_id, event_type, item_status, recipients, occurred_at,
		          delivery_status, attempts, max_attempts, next_attempt_at, last_error,
		          created_at, updated_at, sent_at
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending events: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*notify.OutboxItem, error) {
		var item notify.OutboxItem
		err := row.Scan(&item.ID, &item.QueueItemID, &item.Type, &item.ItemStatus,
			&item.Recipients, &item.OccurredAt, &item.Status, &item.Attempts,
			&item.MaxAttempts, &item.NextAttemptAt, &item.LastError,
			&item.CreatedAt, &item.UpdatedAt, &item.SentAt)
		return &item, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending events: %w", err)
	}
	return items, nil
}

// MarkSent finalizes a delivered row.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE queue_events
		SET delivery_status = 'sent', sent_at = now(), updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}
	return nil
}

// MarkFailed terminally fails a row.
func (r *Repository) MarkFailed(ctx context.Context, id int64, cause error) error {
	_, err := r.db.Exec(ctx, `
		UPDATE queue_events
		SET delivery_status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1
	`, id, cause.Error())
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// MarkForRetry returns a row to pending with its next attempt time.
func (r *Repository) MarkForRetry(ctx context.Context, id int64, cause error, nextAttemptAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE queue_events
		SET delivery_status = 'pending', attempts = attempts + 1, last_error = $2,
		    next_attempt_at = $3, updated_at = now()
		WHERE id = $1
	`, id, cause.Error(), nextAttemptAt)
	if err != nil {
		return fmt.Errorf("mark event for retry: %w", err)
	}
	return nil
}

// GetQueueStats reports outbox size by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notify.QueueStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT delivery_status, count(*)
		FROM queue_events
		GROUP BY delivery_status
	`)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	var stats notify.QueueStats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outbox stats: %w", err)
		}
		switch notify.DeliveryStatus(status) {
		case notify.DeliveryPending:
			stats.Pending = count
		case notify.DeliveryProcessing:
			stats.Processing = count
		case notify.DeliverySent:
			stats.Sent = count
		case notify.DeliveryFailed:
			stats.Failed = count
		}
	}
	return &stats, rows.Err()
}
