package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/repo"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]repo.IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]repo.IdempotencyRecord{}}
}

func recordKey(key, actionType, actorID string) string {
	return key + "|" + actionType + "|" + actorID
}

func (s *fakeStore) Insert(ctx context.Context, record repo.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(record.Key, record.ActionType, record.ActorID)
	if _, ok := s.records[k]; ok {
		return repo.ErrDuplicateKey
	}
	s.records[k] = record
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key, actionType, actorID string) (repo.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey(key, actionType, actorID)]
	if !ok {
		return repo.IdempotencyRecord{}, repo.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) MarkSucceeded(ctx context.Context, key, actionType, actorID string, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(key, actionType, actorID)
	rec, ok := s.records[k]
	if !ok {
		return repo.ErrNotFound
	}
	rec.Status = repo.IdempotencySucceeded
	rec.Response = response
	s.records[k] = rec
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, key, actionType, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(key, actionType, actorID)
	rec, ok := s.records[k]
	if !ok {
		return repo.ErrNotFound
	}
	rec.Status = repo.IdempotencyFailed
	rec.Response = nil
	s.records[k] = rec
	return nil
}

func (s *fakeStore) TakeOver(ctx context.Context, key, actionType, actorID string, staleBefore, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(key, actionType, actorID)
	rec, ok := s.records[k]
	if !ok {
		return repo.ErrNotFound
	}
	eligible := rec.Status == repo.IdempotencyFailed ||
		(rec.Status == repo.IdempotencyInFlight && rec.CreatedAt.Before(staleBefore))
	if !eligible {
		return repo.ErrConflict
	}
	rec.Status = repo.IdempotencyInFlight
	rec.CreatedAt = now
	rec.Response = nil
	s.records[k] = rec
	return nil
}

func (s *fakeStore) ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.records {
		if rec.Status == repo.IdempotencyInFlight && rec.CreatedAt.Before(staleBefore) {
			rec.Status = repo.IdempotencyFailed
			s.records[k] = rec
			n++
		}
	}
	return n, nil
}

func TestBeginCommitReplay(t *testing.T) {
	ctx := context.Background()
	guard := New(newFakeStore(), time.Hour, time.Minute)

	ticket, cached, err := guard.Begin(ctx, "abc", "APPROVE", "user-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if ticket == nil || cached != nil {
		t.Fatalf("expected fresh ticket, got cached=%v", cached)
	}
	if err := ticket.Commit(ctx, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ticket, cached, err = guard.Begin(ctx, "abc", "APPROVE", "user-1")
	if err != nil {
		t.Fatalf("replay begin: %v", err)
	}
	if ticket != nil {
		t.Fatalf("expected no ticket on replay")
	}
	if string(cached) != `{"ok":true}` {
		t.Fatalf("cached = %q", cached)
	}
}

func TestBeginConflictWhileInFlight(t *testing.T) {
	ctx := context.Background()
	guard := New(newFakeStore(), time.Hour, time.Minute)

	if _, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1")
	if domain.CodeOf(err) != domain.CodeAlreadyProcessing {
		t.Fatalf("expected ALREADY_PROCESSING, got %v", err)
	}
}

func TestBeginAfterRollbackAllowsRetry(t *testing.T) {
	ctx := context.Background()
	guard := New(newFakeStore(), time.Hour, time.Minute)

	ticket, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ticket.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	ticket, cached, err := guard.Begin(ctx, "abc", "APPROVE", "user-1")
	if err != nil {
		t.Fatalf("retry begin: %v", err)
	}
	if ticket == nil || cached != nil {
		t.Fatalf("expected fresh ticket after rollback")
	}
}

func TestKeyScopedPerActionAndActor(t *testing.T) {
	ctx := context.Background()
	guard := New(newFakeStore(), time.Hour, time.Minute)

	if _, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, _, err := guard.Begin(ctx, "abc", "SUBMIT", "user-1"); err != nil {
		t.Fatalf("same key, different action must proceed: %v", err)
	}
	if _, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-2"); err != nil {
		t.Fatalf("same key, different actor must proceed: %v", err)
	}
}

func TestStaleInFlightIsTakenOver(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	guard := New(store, time.Hour, time.Minute)

	past := time.Now().UTC().Add(-10 * time.Minute)
	guard.now = func() time.Time { return past }
	if _, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	guard.now = time.Now
	ticket, cached, err := guard.Begin(ctx, "abc", "APPROVE", "user-1")
	if err != nil {
		t.Fatalf("takeover begin: %v", err)
	}
	if ticket == nil || cached != nil {
		t.Fatalf("expected takeover of stale in-flight record")
	}
}

func TestReclaimStale(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	guard := New(store, time.Hour, time.Minute)

	past := time.Now().UTC().Add(-10 * time.Minute)
	guard.now = func() time.Time { return past }
	if _, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	guard.now = time.Now
	n, err := guard.ReclaimStale(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("reclaimed %d records, want 1", n)
	}
	rec, err := store.Get(ctx, "abc", "APPROVE", "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != repo.IdempotencyFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
}

func TestBeginRequiresKey(t *testing.T) {
	guard := New(newFakeStore(), time.Hour, time.Minute)
	_, _, err := guard.Begin(context.Background(), "  ", "APPROVE", "user-1")
	if domain.CodeOf(err) != domain.CodePreconditionFailed {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestConcurrentBeginSingleWinner(t *testing.T) {
	ctx := context.Background()
	guard := New(newFakeStore(), time.Hour, time.Minute)

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var tickets int
	var conflicts int
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, _, err := guard.Begin(ctx, "abc", "APPROVE", "user-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ticket != nil:
				tickets++
			case err != nil && domain.CodeOf(err) == domain.CodeAlreadyProcessing:
				conflicts++
			}
		}()
	}
	wg.Wait()
	if tickets != 1 {
		t.Fatalf("winners = %d, want exactly 1", tickets)
	}
	if conflicts != attempts-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, attempts-1)
	}
}
