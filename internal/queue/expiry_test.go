package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddesk/consultq/internal/domain"
)

func TestConfig_Deadline(t *testing.T) {
	cfg := DefaultConfig()
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	startAt := created.Add(time.Hour)

	t.Run("walk-in uses max wait from creation", func(t *testing.T) {
		item := &domain.QueueItem{
			EntryType: domain.EntryTypeWalkIn,
			Status:    domain.QueueStatusPending,
			CreatedAt: created,
		}
		deadline, ok := cfg.Deadline(item)
		require.True(t, ok)
		assert.Equal(t, created.Add(cfg.MaxWait), deadline)
	})

	t.Run("emergency uses max wait from creation", func(t *testing.T) {
		item := &domain.QueueItem{
			EntryType: domain.EntryTypeEmergencyBroadcast,
			Status:    domain.QueueStatusPending,
			CreatedAt: created,
		}
		deadline, ok := cfg.Deadline(item)
		require.True(t, ok)
		assert.Equal(t, created.Add(cfg.MaxWait), deadline)
	})

	t.Run("appointment uses grace past start", func(t *testing.T) {
		item := &domain.QueueItem{
			EntryType:   domain.EntryTypeAppointment,
			Status:      domain.QueueStatusPending,
			CreatedAt:   created,
			Appointment: &domain.Appointment{StartAt: startAt},
		}
		deadline, ok := cfg.Deadline(item)
		require.True(t, ok)
		assert.Equal(t, startAt.Add(cfg.WindowGrace), deadline)
	})

	t.Run("no deadline without loaded appointment", func(t *testing.T) {
		item := &domain.QueueItem{
			EntryType: domain.EntryTypeAppointment,
			Status:    domain.QueueStatusPending,
			CreatedAt: created,
		}
		_, ok := cfg.Deadline(item)
		assert.False(t, ok)
	})

	t.Run("non-pending has no deadline", func(t *testing.T) {
		for _, status := range []domain.QueueStatus{
			domain.QueueStatusAccepted,
			domain.QueueStatusInProgress,
			domain.QueueStatusClosed,
			domain.QueueStatusExpired,
		} {
			item := &domain.QueueItem{
				EntryType: domain.EntryTypeWalkIn,
				Status:    status,
				CreatedAt: created,
			}
			_, ok := cfg.Deadline(item)
			assert.False(t, ok, "status %s", status)
		}
	})
}

func TestConfig_Expired(t *testing.T) {
	cfg := DefaultConfig()
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	item := &domain.QueueItem{
		EntryType: domain.EntryTypeWalkIn,
		Status:    domain.QueueStatusPending,
		CreatedAt: created,
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before deadline", created.Add(cfg.MaxWait - time.Second), false},
		{"exactly at deadline", created.Add(cfg.MaxWait), false},
		{"past deadline", created.Add(cfg.MaxWait + time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Expired(item, tt.now))
		})
	}
}

func TestConfig_InWindow(t *testing.T) {
	cfg := DefaultConfig()
	startAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just before open", startAt.Add(-cfg.WindowLead - time.Second), false},
		{"exactly at open", startAt.Add(-cfg.WindowLead), true},
		{"at start", startAt, true},
		{"exactly at close", startAt.Add(cfg.WindowGrace), true},
		{"just after close", startAt.Add(cfg.WindowGrace + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.InWindow(startAt, tt.now))
		})
	}
}
