// Package payments provides the payment gate the queue engine consults
// before accepting or starting a consultation. The reference implementation
// stores payment intents with their own checkout deadline, expired lazily at
// read time the same way queue items are; a real provider integration would
// sit behind the same Repository seam.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meddesk/consultq/internal/domain"
	"github.com/meddesk/consultq/internal/pkg/ctxlog"
	"github.com/meddesk/consultq/internal/queue"
)

// Gate errors.
var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrWindowExpired  = errors.New("payment window has expired")
	ErrNotIntentOwner = errors.New("payment intent does not belong to this patient")
)

// Gate implements queue.PaymentGate on top of stored payment intents.
type Gate struct {
	repo   Repository
	clock  queue.Clock
	window time.Duration
}

// NewGate creates a gate whose intents stay payable for the given window.
func NewGate(repo Repository, clock queue.Clock, window time.Duration) *Gate {
	return &Gate{repo: repo, clock: clock, window: window}
}

// StatusFor reports the payment status of a queue item. A pending intent
// past its deadline is flipped to expired on the spot; there is no sweeper.
func (g *Gate) StatusFor(ctx context.Context, queueItemID string) (domain.PaymentStatus, error) {
	intent, err := g.repo.GetIntentByQueueItem(ctx, queueItemID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return domain.PaymentNotRequired, nil
		}
		return "", fmt.Errorf("load payment intent: %w", err)
	}

	if intent.Status == domain.PaymentIntentPending && g.clock.Now().After(intent.ExpiresAt) {
		if _, err := g.repo.MarkExpired(ctx, intent.ID); err != nil {
			ctxlog.FromContext(ctx).Warn("expire payment intent failed", "intent_id", intent.ID, "error", err)
		}
		intent.Status = domain.PaymentIntentExpired
	}

	switch intent.Status {
	case domain.PaymentIntentPaid:
		return domain.PaymentPaid, nil
	case domain.PaymentIntentExpired:
		return domain.PaymentExpired, nil
	default:
		return domain.PaymentPending, nil
	}
}

// Enable creates a charge for the queue item. Re-enabling while a payable
// intent exists returns the existing handle instead of double-charging.
func (g *Gate) Enable(ctx context.Context, queueItemID string, amountCents int64) (*domain.PaymentHandle, error) {
	now := g.clock.Now()

	existing, err := g.repo.GetIntentByQueueItem(ctx, queueItemID)
	if err != nil && !errors.Is(err, ErrIntentNotFound) {
		return nil, fmt.Errorf("load payment intent: %w", err)
	}
	if existing != nil && existing.Status == domain.PaymentIntentPending && now.Before(existing.ExpiresAt) {
		return handleFor(existing), nil
	}
	if existing != nil && existing.Status == domain.PaymentIntentPaid {
		return nil, queue.ErrAlreadyPaid
	}

	intent := &domain.PaymentIntent{
		ID:          uuid.New().String(),
		QueueItemID: queueItemID,
		AmountCents: amountCents,
		Status:      domain.PaymentIntentPending,
		ExpiresAt:   now.Add(g.window),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.repo.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return handleFor(intent), nil
}

// Confirm marks a pending intent paid on behalf of the owning patient.
// Confirming an already-paid intent is a no-op success so a retried checkout
// callback stays safe.
func (g *Gate) Confirm(ctx context.Context, actor domain.Actor, intentID string) (*domain.PaymentIntent, error) {
	intent, patientID, err := g.repo.GetIntentWithOwner(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && actor.ID != patientID {
		return nil, ErrNotIntentOwner
	}

	now := g.clock.Now()
	switch intent.Status {
	case domain.PaymentIntentPaid:
		return intent, nil
	case domain.PaymentIntentExpired:
		return nil, ErrWindowExpired
	}

	if now.After(intent.ExpiresAt) {
		if _, err := g.repo.MarkExpired(ctx, intent.ID); err != nil {
			ctxlog.FromContext(ctx).Warn("expire payment intent failed", "intent_id", intent.ID, "error", err)
		}
		return nil, ErrWindowExpired
	}

	confirmed, err := g.repo.MarkPaid(ctx, intent.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark intent paid: %w", err)
	}
	if !confirmed {
		// A concurrent confirm or expiry landed first; re-read to decide.
		fresh, _, err := g.repo.GetIntentWithOwner(ctx, intentID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == domain.PaymentIntentPaid {
			return fresh, nil
		}
		return nil, ErrWindowExpired
	}

	intent.Status = domain.PaymentIntentPaid
	intent.PaidAt = &now
	intent.UpdatedAt = now
	recordConfirmed()
	return intent, nil
}

func handleFor(intent *domain.PaymentIntent) *domain.PaymentHandle {
	return &domain.PaymentHandle{
		PaymentID:   intent.ID,
		QueueItemID: intent.QueueItemID,
		AmountCents: intent.AmountCents,
		ExpiresAt:   intent.ExpiresAt,
	}
}
