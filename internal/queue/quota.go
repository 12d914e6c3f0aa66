package queue

import (
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// QuotaIncrement describes one atomic consumption of both rolling
// emergency-broadcast windows for a patient. The repository applies it as a
// conditional increment-if-below-ceiling so two parallel broadcasts cannot
// both slip past the ceiling.
type QuotaIncrement struct {
	PatientID    string
	DayStart     time.Time
	DayCeiling   int
	MonthStart   time.Time
	MonthCeiling int
}

// QuotaTracker computes window boundaries for the rolling daily/monthly
// emergency-broadcast counters. Windows are calendar-aligned UTC so reset
// times are deterministic.
type QuotaTracker struct {
	daily   int
	monthly int
}

// NewQuotaTracker creates a tracker with the configured ceilings.
func NewQuotaTracker(daily, monthly int) *QuotaTracker {
	return &QuotaTracker{daily: daily, monthly: monthly}
}

// Increment builds the conditional consumption for both windows at now.
func (t *QuotaTracker) Increment(patientID string, now time.Time) QuotaIncrement {
	return QuotaIncrement{
		PatientID:    patientID,
		DayStart:     dayStart(now),
		DayCeiling:   t.daily,
		MonthStart:   monthStart(now),
		MonthCeiling: t.monthly,
	}
}

// ResetAt returns when the given window rolls over relative to now.
func (t *QuotaTracker) ResetAt(kind domain.QuotaWindowKind, now time.Time) time.Time {
	if kind == domain.QuotaWindowMonthly {
		return monthStart(now).AddDate(0, 1, 0)
	}
	return dayStart(now).AddDate(0, 0, 1)
}

func dayStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
