package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/queue"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeIntentRepo keeps intents in memory with the same conditional-update
// semantics as the postgres repository.
type fakeIntentRepo struct {
	intents map[string]*domain.PaymentIntent // by intent id
	owners  map[string]string                // queue item id -> patient id
}

func newFakeIntentRepo() *fakeIntentRepo {
	return &fakeIntentRepo{
		intents: make(map[string]*domain.PaymentIntent),
		owners:  make(map[string]string),
	}
}

func (r *fakeIntentRepo) CreateIntent(_ context.Context, intent *domain.PaymentIntent) error {
	cp := *intent
	r.intents[intent.ID] = &cp
	return nil
}

func (r *fakeIntentRepo) GetIntentByQueueItem(_ context.Context, queueItemID string) (*domain.PaymentIntent, error) {
	var latest *domain.PaymentIntent
	for _, intent := range r.intents {
		if intent.QueueItemID != queueItemID {
			continue
		}
		if latest == nil || intent.CreatedAt.After(latest.CreatedAt) {
			latest = intent
		}
	}
	if latest == nil {
		return nil, ErrIntentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeIntentRepo) GetIntentWithOwner(_ context.Context, id string) (*domain.PaymentIntent, string, error) {
	intent, ok := r.intents[id]
	if !ok {
		return nil, "", ErrIntentNotFound
	}
	cp := *intent
	return &cp, r.owners[intent.QueueItemID], nil
}

func (r *fakeIntentRepo) MarkPaid(_ context.Context, id string, now time.Time) (bool, error) {
	intent, ok := r.intents[id]
	if !ok || intent.Status != domain.PaymentIntentPending {
		return false, nil
	}
	intent.Status = domain.PaymentIntentPaid
	intent.PaidAt = &now
	intent.UpdatedAt = now
	return true, nil
}

func (r *fakeIntentRepo) MarkExpired(_ context.Context, id string) (bool, error) {
	intent, ok := r.intents[id]
	if !ok || intent.Status != domain.PaymentIntentPending {
		return false, nil
	}
	intent.Status = domain.PaymentIntentExpired
	return true, nil
}

func newTestGate() (*Gate, *fakeIntentRepo, *fakeClock) {
	repo := newFakeIntentRepo()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewGate(repo, clock, 15*time.Minute), repo, clock
}

func TestGate_StatusFor_NoIntent(t *testing.T) {
	gate, _, _ := newTestGate()

	status, err := gate.StatusFor(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentNotRequired, status)
}

func TestGate_StatusFor_PendingWithinWindow(t *testing.T) {
	gate, _, _ := newTestGate()

	_, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)

	status, err := gate.StatusFor(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, status)
}

func TestGate_StatusFor_ExpiresOverdueIntent(t *testing.T) {
	gate, repo, clock := newTestGate()

	handle, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	status, err := gate.StatusFor(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentExpired, status)

	// Expiry is materialized, not just reported.
	stored := repo.intents[handle.PaymentID]
	assert.Equal(t, domain.PaymentIntentExpired, stored.Status)
}

func TestGate_Enable_ReturnsExistingPayableIntent(t *testing.T) {
	gate, repo, clock := newTestGate()

	first, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	second, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.Len(t, repo.intents, 1)
}

func TestGate_Enable_NewIntentAfterExpiry(t *testing.T) {
	gate, repo, clock := newTestGate()

	first, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)

	second, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, clock.now.Add(15*time.Minute), second.ExpiresAt)
	assert.Len(t, repo.intents, 2)
}

func TestGate_Enable_RefusesPaidItem(t *testing.T) {
	gate, repo, _ := newTestGate()
	repo.owners["item-1"] = "patient-1"

	handle, err := gate.Enable(context.Background(), "item-1", 5000)
	require.NoError(t, err)

	patient := domain.Actor{ID: "patient-1", Role: domain.RolePatient}
	_, err = gate.Confirm(context.Background(), patient, handle.PaymentID)
	require.NoError(t, err)

	_, err = gate.Enable(context.Background(), "item-1", 5000)
	assert.ErrorIs(t, err, queue.ErrAlreadyPaid)
}

func TestGate_Confirm(t *testing.T) {
	patient := domain.Actor{ID: "patient-1", Role: domain.RolePatient}

	t.Run("owner confirms pending intent", func(t *testing.T) {
		gate, repo, clock := newTestGate()
		repo.owners["item-1"] = "patient-1"
		handle, err := gate.Enable(context.Background(), "item-1", 5000)
		require.NoError(t, err)

		intent, err := gate.Confirm(context.Background(), patient, handle.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentIntentPaid, intent.Status)
		require.NotNil(t, intent.PaidAt)
		assert.Equal(t, clock.now, *intent.PaidAt)

		status, err := gate.StatusFor(context.Background(), "item-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPaid, status)
	})

	t.Run("repeated confirm is idempotent", func(t *testing.T) {
		gate, repo, _ := newTestGate()
		repo.owners["item-1"] = "patient-1"
		handle, err := gate.Enable(context.Background(), "item-1", 5000)
		require.NoError(t, err)

		_, err = gate.Confirm(context.Background(), patient, handle.PaymentID)
		require.NoError(t, err)

		intent, err := gate.Confirm(context.Background(), patient, handle.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentIntentPaid, intent.Status)
	})

	t.Run("other patient is rejected", func(t *testing.T) {
		gate, repo, _ := newTestGate()
		repo.owners["item-1"] = "patient-1"
		handle, err := gate.Enable(context.Background(), "item-1", 5000)
		require.NoError(t, err)

		outsider := domain.Actor{ID: "patient-2", Role: domain.RolePatient}
		_, err = gate.Confirm(context.Background(), outsider, handle.PaymentID)
		assert.ErrorIs(t, err, ErrNotIntentOwner)
	})

	t.Run("admin may confirm on behalf of patient", func(t *testing.T) {
		gate, repo, _ := newTestGate()
		repo.owners["item-1"] = "patient-1"
		handle, err := gate.Enable(context.Background(), "item-1", 5000)
		require.NoError(t, err)

		admin := domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
		_, err = gate.Confirm(context.Background(), admin, handle.PaymentID)
		assert.NoError(t, err)
	})

	t.Run("past deadline expires and refuses", func(t *testing.T) {
		gate, repo, clock := newTestGate()
		repo.owners["item-1"] = "patient-1"
		handle, err := gate.Enable(context.Background(), "item-1", 5000)
		require.NoError(t, err)

		clock.Advance(16 * time.Minute)

		_, err = gate.Confirm(context.Background(), patient, handle.PaymentID)
		assert.ErrorIs(t, err, ErrWindowExpired)
		assert.Equal(t, domain.PaymentIntentExpired, repo.intents[handle.PaymentID].Status)
	})

	t.Run("unknown intent", func(t *testing.T) {
		gate, _, _ := newTestGate()
		_, err := gate.Confirm(context.Background(), patient, "no-such-intent")
		assert.ErrorIs(t, err, ErrIntentNotFound)
	})
}
