package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// Stable machine-readable error codes, independent of transport.
const (
	CodeInvalidArgument       = "invalid_argument"
	CodeNotFound              = "not_found"
	CodeForbidden             = "forbidden"
	CodeConflict              = "conflict"
	CodeInvalidState          = "invalid_state"
	CodePaymentRequired       = "payment_required"
	CodePaymentWindowExpired  = "payment_window_expired"
	CodeOutOfWindow           = "out_of_window"
	CodeTooManyCandidates     = "too_many_candidates"
	CodeEmergencyLimitReached = "emergency_limit_reached"
)

// Engine errors.
var (
	ErrNotFound             = errors.New("queue item not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrForbidden            = errors.New("actor does not participate in this queue item")
	ErrConflict             = errors.New("queue item changed concurrently, refresh and retry")
	ErrAlreadyAccepted      = errors.New("already accepted by another doctor")
	ErrInvalidState         = errors.New("transition not allowed from current status")
	ErrPaymentRequired      = errors.New("payment must be completed before this step")
	ErrPaymentWindowExpired = errors.New("payment window has expired")
	ErrAlreadyPaid          = errors.New("payment is already settled for this queue item")
	ErrOutOfWindow          = errors.New("outside the appointment waiting-room window")
	ErrTooManyCandidates    = errors.New("candidate doctor count exceeds the broadcast limit")
	ErrReasonRequired       = errors.New("reason is required for non-appointment entries")
)

// QuotaExceededError is returned by the repository when the conditional
// quota increment finds a window already at its ceiling.
type QuotaExceededError struct {
	Kind domain.QuotaWindowKind
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("emergency quota exhausted for %s window", e.Kind)
}

// LimitError reports emergency broadcast quota exhaustion with the metadata
// callers need to schedule a retry.
type LimitError struct {
	Window     domain.QuotaWindowKind
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("emergency broadcast limit reached for %s window, resets at %s",
		e.Window, e.ResetAt.Format(time.RFC3339))
}
