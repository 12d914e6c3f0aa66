// Package postgres provides the PostgreSQL implementation of the queue
// engine's repository. Every transition is a conditional
// UPDATE ... WHERE id=$1 AND status=$2; losing the optimistic race surfaces
// as queue.ErrConflict, never as a silent overwrite.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/queue"
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const itemColumns = `
	qi.id, qi.doctor_user_id, qi.patient_user_id, qi.entry_type,
	qi.appointment_id, qi.emergency_group_id, qi.status, qi.payment_status,
	qi.reason, qi.status_note, qi.created_at, qi.updated_at,
	qi.accepted_at, qi.closed_at,
	a.id, a.doctor_user_id, a.patient_user_id, a.start_at, a.end_at, a.paid
`

const itemFrom = `
	FROM queue_items qi
	LEFT JOIN appointments a ON a.id = qi.appointment_id
`

func scanItem(row pgx.Row) (*domain.QueueItem, error) {
	var (
		item     domain.QueueItem
		apptID   *string
		apptDoc  *string
		apptPat  *string
		apptFrom *time.Time
		apptTo   *time.Time
		apptPaid *bool
	)

	err := row.Scan(
		&item.ID,
		&item.DoctorUserID,
		&item.PatientUserID,
		&item.EntryType,
		&item.AppointmentID,
		&item.EmergencyGroupID,
		&item.Status,
		&item.PaymentStatus,
		&item.Reason,
		&item.StatusNote,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.AcceptedAt,
		&item.ClosedAt,
		&apptID,
		&apptDoc,
		&apptPat,
		&apptFrom,
		&apptTo,
		&apptPaid,
	)
	if err != nil {
		return nil, err
	}

	if apptID != nil {
		item.Appointment = &domain.Appointment{
			ID:            *apptID,
			DoctorUserID:  *apptDoc,
			PatientUserID: *apptPat,
			StartAt:       *apptFrom,
			EndAt:         *apptTo,
			Paid:          *apptPaid,
		}
	}
	return &item, nil
}

// CreateItem inserts a pending item together with its created event.
func (r *Repository) CreateItem(ctx context.Context, item *domain.QueueItem) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertItem(ctx, tx, item); err != nil {
			return err
		}
		return insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemCreated, item, item.CreatedAt))
	})
}

// CreateBroadcast consumes both quota windows and inserts all siblings in
// one transaction: either the ceilings hold and every sibling exists, or
// nothing is written.
func (r *Repository) CreateBroadcast(ctx context.Context, items []*domain.QueueItem, quotaInc queue.QuotaIncrement) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := consumeQuota(ctx, tx, quotaInc.PatientID, domain.QuotaWindowDaily, quotaInc.DayStart, quotaInc.DayCeiling); err != nil {
			return err
		}
		if err := consumeQuota(ctx, tx, quotaInc.PatientID, domain.QuotaWindowMonthly, quotaInc.MonthStart, quotaInc.MonthCeiling); err != nil {
			return err
		}
		for _, item := range items {
			if err := insertItem(ctx, tx, item); err != nil {
				return err
			}
			if err := insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemCreated, item, item.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

// consumeQuota is the conditional increment-if-below-ceiling: two parallel
// broadcasts by the same patient serialize on the counter row, and the
// second sees zero rows affected once the ceiling is hit.
func consumeQuota(ctx context.Context, tx pgx.Tx, patientID string, kind domain.QuotaWindowKind, windowStart time.Time, ceiling int) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO emergency_quotas (patient_user_id, window_kind, window_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (patient_user_id, window_kind, window_start)
		DO UPDATE SET count = emergency_quotas.count + 1
		WHERE emergency_quotas.count < $4
	`, patientID, kind, windowStart, ceiling)
	if err != nil {
		return fmt.Errorf("consume %s quota: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return &queue.QuotaExceededError{Kind: kind}
	}
	return nil
}

func insertItem(ctx context.Context, q querier, item *domain.QueueItem) error {
	_, err := q.Exec(ctx, `
		INSERT INTO queue_items (
			id, doctor_user_id, patient_user_id, entry_type,
			appointment_id, emergency_group_id, status, payment_status,
			reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		item.ID,
		item.DoctorUserID,
		item.PatientUserID,
		item.EntryType,
		item.AppointmentID,
		item.EmergencyGroupID,
		item.Status,
		item.PaymentStatus,
		item.Reason,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, q querier, ev domain.Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO queue_events (queue_item_id, event_type, item_status, occurred_at, recipients)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.QueueItemID, ev.Type, ev.Status, ev.OccurredAt, ev.Recipients)
	if err != nil {
		return fmt.Errorf("insert queue event: %w", err)
	}
	return nil
}

// GetItem loads an item with its appointment, if any.
func (r *Repository) GetItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+itemFrom+` WHERE qi.id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// GetAppointment retrieves an appointment by ID.
func (r *Repository) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.QueryRow(ctx, `
		SELECT id, doctor_user_id, patient_user_id, start_at, end_at, paid
		FROM appointments
		WHERE id = $1
	`, id).Scan(&appt.ID, &appt.DoctorUserID, &appt.PatientUserID, &appt.StartAt, &appt.EndAt, &appt.Paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return &appt, nil
}

// ListLive returns the doctor's non-terminal items plus lingering expired ones.
func (r *Repository) ListLive(ctx context.Context, doctorID string) ([]*domain.QueueItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+itemFrom+`
		WHERE qi.doctor_user_id = $1
		  AND qi.status IN ('pending', 'accepted', 'in_progress', 'expired')
		ORDER BY qi.created_at
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list live queue: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListHistory returns the caller's terminal items, newest first.
func (r *Repository) ListHistory(ctx context.Context, userID string, role domain.Role) ([]*domain.QueueItem, error) {
	column := "qi.patient_user_id"
	if role == domain.RoleDoctor {
		column = "qi.doctor_user_id"
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+itemFrom+`
		WHERE `+column+` = $1
		  AND qi.status IN ('rejected', 'cancelled', 'expired', 'closed')
		ORDER BY qi.updated_at DESC
		LIMIT 200
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]*domain.QueueItem, error) {
	items := make([]*domain.QueueItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// AcceptItem moves pending → accepted and, for emergency items, cancels all
// remaining pending siblings inside the same transaction. The conditional
// update is the race-resolution point: of N concurrent accepts in one group,
// exactly one sees a row affected.
func (r *Repository) AcceptItem(ctx context.Context, id string, now time.Time) (*domain.QueueItem, int, error) {
	var (
		item      *domain.QueueItem
		cancelled int
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE queue_items
			SET status = 'accepted', accepted_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'pending'
		`, id, now)
		if err != nil {
			return fmt.Errorf("accept queue item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, tx, id)
		}

		item, err = getItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemAccepted, item, now)); err != nil {
			return err
		}

		if item.EmergencyGroupID == nil {
			return nil
		}

		// Losing siblings are cancelled atomically with the winning accept.
		rows, err := tx.Query(ctx, `
			UPDATE queue_items
			SET status = 'cancelled', status_note = 'accepted by another doctor', updated_at = $3
			WHERE emergency_group_id = $1 AND id <> $2 AND status = 'pending'
			RETURNING id, doctor_user_id, patient_user_id
		`, *item.EmergencyGroupID, id, now)
		if err != nil {
			return fmt.Errorf("cancel siblings: %w", err)
		}

		siblings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.QueueItem, error) {
			var s domain.QueueItem
			err := row.Scan(&s.ID, &s.DoctorUserID, &s.PatientUserID)
			s.Status = domain.QueueStatusCancelled
			return s, err
		})
		if err != nil {
			return fmt.Errorf("collect cancelled siblings: %w", err)
		}

		for i := range siblings {
			if err := insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemCancelled, &siblings[i], now)); err != nil {
				return err
			}
		}
		cancelled = len(siblings)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return item, cancelled, nil
}

// RejectItem moves pending → rejected.
func (r *Repository) RejectItem(ctx context.Context, id, note string, now time.Time) (*domain.QueueItem, error) {
	return r.transition(ctx, id, domain.EventQueueItemRejected, note, now, `
		UPDATE queue_items
		SET status = 'rejected', status_note = NULLIF($3, ''), updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`)
}

// CancelItem moves the observed status → cancelled.
func (r *Repository) CancelItem(ctx context.Context, id string, from domain.QueueStatus, note string, now time.Time) (*domain.QueueItem, error) {
	var item *domain.QueueItem
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE queue_items
			SET status = 'cancelled', status_note = NULLIF($4, ''), updated_at = $3
			WHERE id = $1 AND status = $2
		`, id, from, now, note)
		if err != nil {
			return fmt.Errorf("cancel queue item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, tx, id)
		}

		item, err = getItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemCancelled, item, now))
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// StartItem moves accepted → in_progress and creates the live consultation.
func (r *Repository) StartItem(ctx context.Context, id string, now time.Time) (*domain.QueueItem, *domain.Consultation, error) {
	var (
		item         *domain.QueueItem
		consultation domain.Consultation
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE queue_items
			SET status = 'in_progress', updated_at = $2
			WHERE id = $1 AND status = 'accepted'
		`, id, now)
		if err != nil {
			return fmt.Errorf("start queue item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, tx, id)
		}

		// Idempotent against a retried start that lost its response.
		err = tx.QueryRow(ctx, `
			INSERT INTO consultations (queue_item_id, started_at)
			VALUES ($1, $2)
			ON CONFLICT (queue_item_id) DO UPDATE SET queue_item_id = EXCLUDED.queue_item_id
			RETURNING id, queue_item_id, started_at
		`, id, now).Scan(&consultation.ID, &consultation.QueueItemID, &consultation.StartedAt)
		if err != nil {
			return fmt.Errorf("create consultation: %w", err)
		}

		item, err = getItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemStarted, item, now))
	})
	if err != nil {
		return nil, nil, err
	}
	return item, &consultation, nil
}

// CloseItem moves in_progress → closed and closes the consultation.
func (r *Repository) CloseItem(ctx context.Context, id string, now time.Time) (*domain.QueueItem, error) {
	var item *domain.QueueItem
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE queue_items
			SET status = 'closed', closed_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'in_progress'
		`, id, now)
		if err != nil {
			return fmt.Errorf("close queue item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, tx, id)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE consultations SET closed_at = $2 WHERE queue_item_id = $1 AND closed_at IS NULL
		`, id, now); err != nil {
			return fmt.Errorf("close consultation: %w", err)
		}

		item, err = getItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemClosed, item, now))
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkExpired flips a still-pending item to expired. Zero rows affected
// means a concurrent transition won, which is fine: the conditional makes
// the operation idempotent.
func (r *Repository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	var flipped bool
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE queue_items
			SET status = 'expired', updated_at = $2
			WHERE id = $1 AND status = 'pending'
		`, id, now)
		if err != nil {
			return fmt.Errorf("mark expired: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		flipped = true

		item, err := getItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, domain.NewEvent(domain.EventQueueItemExpired, item, now))
	})
	if err != nil {
		return false, err
	}
	return flipped, nil
}

// SetPaymentStatus synchronizes the stored payment status with the gate.
func (r *Repository) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE queue_items SET payment_status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// transition runs a single-guard CAS update followed by the event insert.
func (r *Repository) transition(ctx context.Context, id string, eventType domain.EventType, note string, now time.Time, sql string) (*domain.QueueItem, error) {
	var item *domain.QueueItem
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, id, now, note)
		if err != nil {
			return fmt.Errorf("transition queue item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, tx, id)
		}

		item, err = getItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, domain.NewEvent(eventType, item, now))
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func getItemTx(ctx context.Context, tx pgx.Tx, id string) (*domain.QueueItem, error) {
	item, err := scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+itemFrom+` WHERE qi.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("reload queue item: %w", err)
	}
	return item, nil
}

// conflictOrNotFound distinguishes a lost optimistic race from a missing row.
func (r *Repository) conflictOrNotFound(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check queue item: %w", err)
	}
	if !exists {
		return queue.ErrNotFound
	}
	return queue.ErrConflict
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
