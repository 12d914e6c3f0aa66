package queue

import (
	"context"
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// Repository defines the engine's persistence contract. It is the only
// component allowed to mutate queue item state, and every transition is a
// single conditional read-modify-write keyed by the item's id and its
// expected current status. Each transition records its domain event in the
// same transaction so delivery can be at-least-once without losing events.
type Repository interface {
	// CreateItem inserts a pending item and its created event.
	CreateItem(ctx context.Context, item *domain.QueueItem) error

	// CreateBroadcast atomically consumes the patient's emergency quota and
	// inserts all sibling items of one fan-out. Returns *QuotaExceededError
	// when a window is at its ceiling; no items are created in that case.
	CreateBroadcast(ctx context.Context, items []*domain.QueueItem, quota QuotaIncrement) error

	// GetItem loads an item with its appointment, if any.
	GetItem(ctx context.Context, id string) (*domain.QueueItem, error)

	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)

	// ListLive returns the doctor's pending/accepted/in_progress/expired
	// items; terminal rejected/cancelled/closed items are excluded.
	ListLive(ctx context.Context, doctorID string) ([]*domain.QueueItem, error)

	// ListHistory returns the caller's terminal items, newest first.
	ListHistory(ctx context.Context, userID string, role domain.Role) ([]*domain.QueueItem, error)

	// AcceptItem moves pending → accepted under an optimistic guard and, for
	// emergency items, cancels all pending siblings in the same transaction.
	// Returns the updated item and the number of cancelled siblings.
	// ErrConflict when the stored status is no longer pending.
	AcceptItem(ctx context.Context, id string, now time.Time) (*domain.QueueItem, int, error)

	// RejectItem moves pending → rejected.
	RejectItem(ctx context.Context, id, note string, now time.Time) (*domain.QueueItem, error)

	// CancelItem moves the item from its observed status to cancelled.
	CancelItem(ctx context.Context, id string, from domain.QueueStatus, note string, now time.Time) (*domain.QueueItem, error)

	// StartItem moves accepted → in_progress and creates the consultation.
	StartItem(ctx context.Context, id string, now time.Time) (*domain.QueueItem, *domain.Consultation, error)

	// CloseItem moves in_progress → closed and closes the consultation.
	CloseItem(ctx context.Context, id string, now time.Time) (*domain.QueueItem, error)

	// MarkExpired flips a still-pending item to expired. Idempotent: safe to
	// race against a concurrent accept, whichever conditional write lands
	// first wins. Reports whether this call performed the flip.
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)

	// SetPaymentStatus synchronizes the item's payment status with the gate.
	SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}
