// Package queue implements the consultation matching and queue coordination
// engine: the state machine deciding which patient-doctor pairing may proceed
// to a live consultation, the doctor-facing ordering, lazy expiration, the
// emergency broadcast race, and quota enforcement.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/pkg/ctxlog"
)

// Config holds the engine's tunable windows and ceilings.
type Config struct {
	// WindowLead and WindowGrace bound the waiting-room window
	// [startAt-lead, startAt+grace] for appointment-tied items.
	WindowLead  time.Duration
	WindowGrace time.Duration

	// MaxWait is how long a walk-in or emergency item stays acceptable
	// after creation before it lazily expires.
	MaxWait time.Duration

	// DailyQuota and MonthlyQuota cap emergency broadcasts per patient.
	DailyQuota   int
	MonthlyQuota int

	// MaxCandidates caps the fan-out of one emergency broadcast.
	MaxCandidates int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WindowLead:    15 * time.Minute,
		WindowGrace:   10 * time.Minute,
		MaxWait:       30 * time.Minute,
		DailyQuota:    3,
		MonthlyQuota:  10,
		MaxCandidates: 5,
	}
}

// Service implements the queue coordination business logic. All state lives
// behind the Repository; the service holds no in-process locks so multiple
// instances can run behind a load balancer.
type Service struct {
	repo  Repository
	gate  PaymentGate
	quota *QuotaTracker
	clock Clock
	cfg   Config
}

// NewService creates the engine.
func NewService(repo Repository, gate PaymentGate, clock Clock, cfg Config) *Service {
	return &Service{
		repo:  repo,
		gate:  gate,
		quota: NewQuotaTracker(cfg.DailyQuota, cfg.MonthlyQuota),
		clock: clock,
		cfg:   cfg,
	}
}

// CreateItemInput holds data for creating a direct (non-broadcast) queue item.
type CreateItemInput struct {
	DoctorID      string
	EntryType     domain.EntryType
	AppointmentID *string
	Reason        string
}

// CreateItem creates a pending queue item for a direct doctor request.
func (s *Service) CreateItem(ctx context.Context, actor domain.Actor, input CreateItemInput) (*domain.QueueItem, error) {
	if !actor.IsPatient() {
		return nil, ErrForbidden
	}

	now := s.clock.Now()

	item := &domain.QueueItem{
		ID:            uuid.New().String(),
		DoctorUserID:  input.DoctorID,
		PatientUserID: actor.ID,
		EntryType:     input.EntryType,
		Status:        domain.QueueStatusPending,
		PaymentStatus: domain.PaymentNotRequired,
		Reason:        input.Reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch input.EntryType {
	case domain.EntryTypeWalkIn:
		if input.Reason == "" {
			return nil, ErrReasonRequired
		}
	case domain.EntryTypeAppointment:
		appt, err := s.repo.GetAppointment(ctx, *input.AppointmentID)
		if err != nil {
			return nil, err
		}
		if appt.PatientUserID != actor.ID {
			return nil, ErrForbidden
		}
		if !s.cfg.InWindow(appt.StartAt, now) {
			return nil, ErrOutOfWindow
		}
		item.DoctorUserID = appt.DoctorUserID
		item.AppointmentID = &appt.ID
		item.Appointment = appt
	default:
		return nil, fmt.Errorf("entry type %q cannot be created directly", input.EntryType)
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create queue item: %w", err)
	}
	return item, nil
}

// GetItem returns the item to either participant, with expiry materialized
// and payment status synchronized with the gate.
func (s *Service) GetItem(ctx context.Context, actor domain.Actor, id string) (*domain.QueueItem, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, item); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.syncExpiry(ctx, item, now)
	if _, err := s.syncPayment(ctx, item); err != nil {
		return nil, err
	}
	item.IsExpired = item.Status == domain.QueueStatusExpired
	return item, nil
}

// ListForDoctor returns the doctor's live queue in priority order, with
// expiry materialized for every overdue pending item.
func (s *Service) ListForDoctor(ctx context.Context, actor domain.Actor) ([]*domain.QueueItem, error) {
	if !actor.IsDoctor() {
		return nil, ErrForbidden
	}

	items, err := s.repo.ListLive(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list live queue: %w", err)
	}

	now := s.clock.Now()
	for _, item := range items {
		s.syncExpiry(ctx, item, now)
		item.IsExpired = item.Status == domain.QueueStatusExpired
	}

	s.cfg.SortForDisplay(items, now)
	return items, nil
}

// ListHistory returns the caller's terminal items.
func (s *Service) ListHistory(ctx context.Context, actor domain.Actor) ([]*domain.QueueItem, error) {
	items, err := s.repo.ListHistory(ctx, actor.ID, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	for _, item := range items {
		item.IsExpired = item.Status == domain.QueueStatusExpired
	}
	return items, nil
}

// Accept commits the item's assigned doctor to the consultation. For
// emergency siblings this is the race-resolution step: exactly one accept in
// a group can win, the rest observe a conflict.
func (s *Service) Accept(ctx context.Context, actor domain.Actor, id string) (*domain.QueueItem, error) {
	item, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if item.Status != domain.QueueStatusPending {
		recordTransition("accept", "invalid_state")
		return nil, ErrInvalidState
	}
	if s.syncExpiry(ctx, item, now) {
		recordTransition("accept", "expired")
		return nil, ErrInvalidState
	}

	if item.EntryType == domain.EntryTypeAppointment && item.Appointment != nil {
		if open, _ := s.cfg.Window(item.Appointment.StartAt); now.Before(open) {
			recordTransition("accept", "out_of_window")
			return nil, ErrOutOfWindow
		}
	}

	if err := s.gatePayment(ctx, item); err != nil {
		recordTransition("accept", "payment_blocked")
		return nil, err
	}

	updated, cancelled, err := s.repo.AcceptItem(ctx, id, now)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			recordTransition("accept", "conflict")
			if item.EmergencyGroupID != nil {
				return nil, ErrAlreadyAccepted
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("accept queue item: %w", err)
	}

	recordTransition("accept", "ok")
	if cancelled > 0 {
		ctxlog.FromContext(ctx).Info("emergency race resolved",
			"queue_item_id", id,
			"cancelled_siblings", cancelled,
		)
	}
	return updated, nil
}

// Reject declines a pending item.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id, reason string) (*domain.QueueItem, error) {
	item, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if item.Status != domain.QueueStatusPending {
		recordTransition("reject", "invalid_state")
		return nil, ErrInvalidState
	}
	if s.syncExpiry(ctx, item, now) {
		recordTransition("reject", "expired")
		return nil, ErrInvalidState
	}

	updated, err := s.repo.RejectItem(ctx, id, reason, now)
	if err != nil {
		recordTransition("reject", "conflict")
		return nil, err
	}
	recordTransition("reject", "ok")
	return updated, nil
}

// Cancel withdraws a pending or accepted item. Either participant may cancel
// before the consultation starts. Cancellation deliberately skips the expiry
// check so stale items can still be cleaned up.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id, reason string) (*domain.QueueItem, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, item); err != nil {
		return nil, err
	}

	if item.Status != domain.QueueStatusPending && item.Status != domain.QueueStatusAccepted {
		recordTransition("cancel", "invalid_state")
		return nil, ErrInvalidState
	}

	updated, err := s.repo.CancelItem(ctx, id, item.Status, reason, s.clock.Now())
	if err != nil {
		recordTransition("cancel", "conflict")
		return nil, err
	}
	recordTransition("cancel", "ok")
	return updated, nil
}

// Start opens the live consultation for an accepted item.
func (s *Service) Start(ctx context.Context, actor domain.Actor, id string) (*domain.QueueItem, *domain.Consultation, error) {
	item, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}

	if item.Status != domain.QueueStatusAccepted {
		recordTransition("start", "invalid_state")
		return nil, nil, ErrInvalidState
	}
	if err := s.gatePayment(ctx, item); err != nil {
		recordTransition("start", "payment_blocked")
		return nil, nil, err
	}

	updated, consultation, err := s.repo.StartItem(ctx, id, s.clock.Now())
	if err != nil {
		recordTransition("start", "conflict")
		return nil, nil, err
	}
	recordTransition("start", "ok")
	return updated, consultation, nil
}

// Close finishes an in-progress consultation.
func (s *Service) Close(ctx context.Context, actor domain.Actor, id string) (*domain.QueueItem, error) {
	item, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if item.Status != domain.QueueStatusInProgress {
		recordTransition("close", "invalid_state")
		return nil, ErrInvalidState
	}

	updated, err := s.repo.CloseItem(ctx, id, s.clock.Now())
	if err != nil {
		recordTransition("close", "conflict")
		return nil, err
	}
	recordTransition("close", "ok")
	return updated, nil
}

// EnablePayment lets the doctor attach a charge to a pending or accepted
// item. The item's payment status flips to pending until the gate reports
// the charge paid or expired.
func (s *Service) EnablePayment(ctx context.Context, actor domain.Actor, id string, amountCents int64) (*domain.PaymentHandle, error) {
	item, err := s.ownedByDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if item.Status != domain.QueueStatusPending && item.Status != domain.QueueStatusAccepted {
		return nil, ErrInvalidState
	}
	if item.Appointment != nil && item.Appointment.Paid {
		return nil, ErrAlreadyPaid
	}

	handle, err := s.gate.Enable(ctx, id, amountCents)
	if err != nil {
		return nil, fmt.Errorf("enable payment: %w", err)
	}
	if err := s.repo.SetPaymentStatus(ctx, id, domain.PaymentPending); err != nil {
		return nil, fmt.Errorf("sync payment status: %w", err)
	}
	return handle, nil
}

// ownedByDoctor loads the item and verifies the actor is its assigned doctor.
func (s *Service) ownedByDoctor(ctx context.Context, actor domain.Actor, id string) (*domain.QueueItem, error) {
	if !actor.IsDoctor() {
		return nil, ErrForbidden
	}
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.DoctorUserID != actor.ID {
		return nil, ErrForbidden
	}
	return item, nil
}

// authorize verifies the actor participates in the item (or is an admin).
func (s *Service) authorize(actor domain.Actor, item *domain.QueueItem) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if actor.ID == item.DoctorUserID || actor.ID == item.PatientUserID {
		return nil
	}
	return ErrForbidden
}

// syncExpiry materializes expiry for a still-pending overdue item. The
// conditional update is idempotent and safe to race against an in-flight
// accept; losing the race here just means the accept won. Reports whether
// the item is now expired.
func (s *Service) syncExpiry(ctx context.Context, item *domain.QueueItem, now time.Time) bool {
	if item.Status != domain.QueueStatusPending || !s.cfg.Expired(item, now) {
		return false
	}

	flipped, err := s.repo.MarkExpired(ctx, item.ID, now)
	if err != nil {
		// Best effort: the next reader will retry the same conditional update.
		ctxlog.FromContext(ctx).Warn("mark expired failed", "queue_item_id", item.ID, "error", err)
	}
	if flipped {
		itemsExpired.Inc()
	}

	item.Status = domain.QueueStatusExpired
	item.IsExpired = true
	return true
}

// syncPayment pulls the gate's view of the payment and stores it on the item
// when it drifted. Returns the fresh status.
func (s *Service) syncPayment(ctx context.Context, item *domain.QueueItem) (domain.PaymentStatus, error) {
	status, err := s.gate.StatusFor(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("payment status: %w", err)
	}
	if status != item.PaymentStatus {
		if err := s.repo.SetPaymentStatus(ctx, item.ID, status); err != nil {
			return "", fmt.Errorf("sync payment status: %w", err)
		}
		item.PaymentStatus = status
	}
	return status, nil
}

// gatePayment blocks a transition when the gate says payment is outstanding.
func (s *Service) gatePayment(ctx context.Context, item *domain.QueueItem) error {
	status, err := s.syncPayment(ctx, item)
	if err != nil {
		return err
	}
	switch status {
	case domain.PaymentPending:
		return ErrPaymentRequired
	case domain.PaymentExpired:
		return ErrPaymentWindowExpired
	}
	return nil
}
