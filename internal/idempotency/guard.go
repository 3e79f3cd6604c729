// Package idempotency deduplicates retried or concurrent mutating requests,
// guaranteeing at-most-one effect per (key, action type, actor).
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/repo"
)

// Guard drives the per-key state machine:
// absent -> in-flight -> completed(success) | completed(failure).
type Guard struct {
	store repo.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
	now   func() time.Time
}

// New builds a guard. ttl is the retention window for completed records;
// lease bounds how long an in-flight record blocks retries before it is
// considered abandoned.
func New(store repo.IdempotencyStore, ttl, lease time.Duration) *Guard {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &Guard{store: store, ttl: ttl, lease: lease, now: time.Now}
}

// Ticket is a claimed in-flight record. Exactly one of Commit or Rollback
// must be called.
type Ticket struct {
	guard      *Guard
	key        string
	actionType string
	actorID    string
}

// Begin claims the key for execution. Returns a non-nil ticket to proceed,
// a cached response when an identical request already completed, or an
// ALREADY_PROCESSING error when a concurrent duplicate holds the key.
func (g *Guard) Begin(ctx context.Context, key, actionType, actorID string) (*Ticket, []byte, error) {
	if g == nil || g.store == nil {
		return nil, nil, errors.New("idempotency guard not initialized")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil, domain.NewError(domain.CodePreconditionFailed, "idempotency key is required")
	}
	if strings.TrimSpace(actionType) == "" || strings.TrimSpace(actorID) == "" {
		return nil, nil, errors.New("action type and actor id are required")
	}

	now := g.now().UTC()
	err := g.store.Insert(ctx, repo.IdempotencyRecord{
		Key:        key,
		ActionType: actionType,
		ActorID:    actorID,
		Status:     repo.IdempotencyInFlight,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.ttl),
	})
	if err == nil {
		return &Ticket{guard: g, key: key, actionType: actionType, actorID: actorID}, nil, nil
	}
	if !errors.Is(err, repo.ErrDuplicateKey) {
		return nil, nil, fmt.Errorf("insert idempotency record: %w", err)
	}

	existing, err := g.store.Get(ctx, key, actionType, actorID)
	if err != nil {
		// The racing record may have been garbage collected between the
		// insert and this read; treat as a concurrent duplicate.
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, domain.NewError(domain.CodeAlreadyProcessing, "request with this idempotency key is being processed")
		}
		return nil, nil, fmt.Errorf("load idempotency record: %w", err)
	}

	staleBefore := now.Add(-g.lease)
	switch existing.Status {
	case repo.IdempotencySucceeded:
		return nil, existing.Response, nil
	case repo.IdempotencyInFlight:
		if existing.CreatedAt.After(staleBefore) {
			return nil, nil, domain.NewError(domain.CodeAlreadyProcessing, "request with this idempotency key is being processed")
		}
	}

	// Failed record, or an in-flight record past its lease: reclaim the key
	// for this retry. TakeOver is conditional, so only one retrier wins.
	if err := g.store.TakeOver(ctx, key, actionType, actorID, staleBefore, now); err != nil {
		if errors.Is(err, repo.ErrConflict) || errors.Is(err, repo.ErrNotFound) {
			return nil, nil, domain.NewError(domain.CodeAlreadyProcessing, "request with this idempotency key is being processed")
		}
		return nil, nil, fmt.Errorf("take over idempotency record: %w", err)
	}
	return &Ticket{guard: g, key: key, actionType: actionType, actorID: actorID}, nil, nil
}

// Commit stores the response and completes the record as a success.
func (t *Ticket) Commit(ctx context.Context, response []byte) error {
	if t == nil || t.guard == nil {
		return errors.New("nil idempotency ticket")
	}
	if err := t.guard.store.MarkSucceeded(ctx, t.key, t.actionType, t.actorID, response); err != nil {
		return fmt.Errorf("commit idempotency record: %w", err)
	}
	return nil
}

// Rollback completes the record as a failure so the key can be retried.
func (t *Ticket) Rollback(ctx context.Context) error {
	if t == nil || t.guard == nil {
		return errors.New("nil idempotency ticket")
	}
	if err := t.guard.store.MarkFailed(ctx, t.key, t.actionType, t.actorID); err != nil {
		return fmt.Errorf("rollback idempotency record: %w", err)
	}
	return nil
}

// ReclaimStale flips abandoned in-flight records to failed. Intended to run
// periodically from the service main loop.
func (g *Guard) ReclaimStale(ctx context.Context) (int64, error) {
	if g == nil || g.store == nil {
		return 0, errors.New("idempotency guard not initialized")
	}
	return g.store.ReclaimStale(ctx, g.now().UTC().Add(-g.lease))
}
