// Package postgres implements payment intent storage on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/payments"
)

const intentColumns = `id, queue_item_id, amount_cents, status, expires_at, created_at, updated_at, paid_at`

// Repository is the pgx-backed payment intent store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository using the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_intents (id, queue_item_id, amount_cents, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, intent.ID, intent.QueueItemID, intent.AmountCents, intent.Status, intent.ExpiresAt, intent.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

func (r *Repository) GetIntentByQueueItem(ctx context.Context, queueItemID string) (*domain.PaymentIntent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE queue_item_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, queueItemID)

	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payments.ErrIntentNotFound
		}
		return nil, fmt.Errorf("select payment intent: %w", err)
	}
	return intent, nil
}

func (r *Repository) GetIntentWithOwner(ctx context.Context, id string) (*domain.PaymentIntent, string, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT pi.id, pi.queue_item_id, pi.amount_cents, pi.status, pi.expires_at,
		       pi.created_at, pi.updated_at, pi.paid_at, qi.patient_user_id
		FROM payment_intents pi
		JOIN queue_items qi ON qi.id = pi.queue_item_id
		WHERE pi.id = $1
	`, id)

	var (
		intent    domain.PaymentIntent
		patientID string
	)
	err := row.Scan(&intent.ID, &intent.QueueItemID, &intent.AmountCents, &intent.Status,
		&intent.ExpiresAt, &intent.CreatedAt, &intent.UpdatedAt, &intent.PaidAt, &patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", payments.ErrIntentNotFound
		}
		return nil, "", fmt.Errorf("select payment intent: %w", err)
	}
	return &intent, patientID, nil
}

func (r *Repository) MarkPaid(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_intents
		SET status = $2, paid_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.PaymentIntentPaid, now, domain.PaymentIntentPending)
	if err != nil {
		return false, fmt.Errorf("mark intent paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkExpired(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_intents
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, domain.PaymentIntentExpired, domain.PaymentIntentPending)
	if err != nil {
		return false, fmt.Errorf("mark intent expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanIntent(row pgx.Row) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := row.Scan(&intent.ID, &intent.QueueItemID, &intent.AmountCents, &intent.Status,
		&intent.ExpiresAt, &intent.CreatedAt, &intent.UpdatedAt, &intent.PaidAt)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}
