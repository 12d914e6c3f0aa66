package queue

import (
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// There is no background sweep: expiry is a pure function of
// (status, deadline, now), evaluated on every read and before every
// mutation, then materialized with an idempotent conditional update.

// Deadline returns the instant after which a pending item counts as expired.
// The second return is false when no deadline applies (terminal statuses, or
// an appointment item whose appointment could not be loaded).
func (c Config) Deadline(item *domain.QueueItem) (time.Time, bool) {
	if item.Status != domain.QueueStatusPending {
		return time.Time{}, false
	}
	if item.EntryType == domain.EntryTypeAppointment {
		if item.Appointment == nil {
			return time.Time{}, false
		}
		return item.Appointment.StartAt.Add(c.WindowGrace), true
	}
	return item.CreatedAt.Add(c.MaxWait), true
}

// Expired reports whether a pending item's deadline has passed at now.
func (c Config) Expired(item *domain.QueueItem, now time.Time) bool {
	deadline, ok := c.Deadline(item)
	return ok && now.After(deadline)
}

// Window returns the waiting-room window for an appointment:
// [startAt-lead, startAt+grace].
func (c Config) Window(startAt time.Time) (open, close time.Time) {
	return startAt.Add(-c.WindowLead), startAt.Add(c.WindowGrace)
}

// InWindow reports whether now falls inside the appointment's waiting-room
// window, inclusive on both bounds.
func (c Config) InWindow(startAt, now time.Time) bool {
	open, close := c.Window(startAt)
	return !now.Before(open) && !now.After(close)
}
