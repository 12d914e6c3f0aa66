package queue

import (
	"sort"
	"time"

	"github.com/meddesk/consultq/internal/domain"
)

// Priority tiers for the doctor-facing live queue. Lower sorts first.
const (
	tierCommitted = 1 // accepted or in_progress: the doctor already committed
	tierOnTime    = 2 // appointment item inside its waiting-room window
	tierEarly     = 3 // appointment item whose window opens later
	tierWalkIn    = 4 // walk-in and emergency items, FIFO by creation
	tierExpired   = 5 // expired items always sort last
)

func (c Config) tier(item *domain.QueueItem, now time.Time) int {
	switch item.Status {
	case domain.QueueStatusAccepted, domain.QueueStatusInProgress:
		return tierCommitted
	case domain.QueueStatusExpired:
		return tierExpired
	}

	if item.EntryType == domain.EntryTypeAppointment && item.Appointment != nil {
		if c.InWindow(item.Appointment.StartAt, now) {
			return tierOnTime
		}
		return tierEarly
	}
	return tierWalkIn
}

// SortForDisplay orders a live queue snapshot into priority tiers, ties
// broken by creation time ascending. The order is independent of the
// snapshot's insertion order.
func (c Config) SortForDisplay(items []*domain.QueueItem, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := c.tier(items[i], now), c.tier(items[j], now)
		if ti != tj {
			return ti < tj
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
