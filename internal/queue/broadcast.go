package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/pkg/ctxlog"
)

// BroadcastInput holds data for one emergency fan-out. CandidateDoctorIDs
// arrive pre-filtered by the caller's presence lookup; the engine performs
// no presence queries itself.
type BroadcastInput struct {
	CandidateDoctorIDs []string
	Reason             string
}

// CreateBroadcast fans one patient emergency out to every candidate doctor
// as sibling queue items sharing an emergency group. The patient's rolling
// daily/monthly quotas are consumed atomically with the fan-out: either the
// ceiling check passes and all siblings exist, or nothing is created.
func (s *Service) CreateBroadcast(ctx context.Context, actor domain.Actor, input BroadcastInput) ([]*domain.QueueItem, error) {
	if !actor.IsPatient() {
		return nil, ErrForbidden
	}
	if input.Reason == "" {
		return nil, ErrReasonRequired
	}

	candidates := dedupe(input.CandidateDoctorIDs)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("at least one candidate doctor is required")
	}
	if len(candidates) > s.cfg.MaxCandidates {
		return nil, ErrTooManyCandidates
	}

	now := s.clock.Now()
	groupID := uuid.New().String()

	items := make([]*domain.QueueItem, 0, len(candidates))
	for _, doctorID := range candidates {
		items = append(items, &domain.QueueItem{
			ID:               uuid.New().String(),
			DoctorUserID:     doctorID,
			PatientUserID:    actor.ID,
			EntryType:        domain.EntryTypeEmergencyBroadcast,
			EmergencyGroupID: &groupID,
			Status:           domain.QueueStatusPending,
			PaymentStatus:    domain.PaymentNotRequired,
			Reason:           input.Reason,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	err := s.repo.CreateBroadcast(ctx, items, s.quota.Increment(actor.ID, now))
	if err != nil {
		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			recordQuotaRejection(string(quotaErr.Kind))
			resetAt := s.quota.ResetAt(quotaErr.Kind, now)
			return nil, &LimitError{
				Window:     quotaErr.Kind,
				ResetAt:    resetAt,
				RetryAfter: resetAt.Sub(now),
			}
		}
		return nil, fmt.Errorf("create emergency broadcast: %w", err)
	}

	recordBroadcast(len(items))
	ctxlog.FromContext(ctx).Info("emergency broadcast created",
		"group_id", groupID,
		"patient_id", actor.ID,
		"fanout", len(items),
	)
	return items, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
