package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/provost-labs/provost-go/internal/repo"
)

// IdempotencyStore persists idempotency records. The table carries a unique
// constraint on (idempotency_key, action_type, actor_id); that constraint is
// the correctness backbone of at-most-one-effect.
type IdempotencyStore struct {
	db DB
}

func NewIdempotencyStore(db DB) *IdempotencyStore {
	if db == nil {
		return nil
	}
	return &IdempotencyStore{db: db}
}

func (s *IdempotencyStore) Insert(ctx context.Context, record repo.IdempotencyRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("idempotency store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO idempotency_records (
			idempotency_key, action_type, actor_id, status, response, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		strings.TrimSpace(record.Key),
		strings.TrimSpace(record.ActionType),
		strings.TrimSpace(record.ActorID),
		string(record.Status),
		record.Response,
		record.CreatedAt.UTC(),
		record.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrDuplicateKey
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key, actionType, actorID string) (repo.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return repo.IdempotencyRecord{}, fmt.Errorf("idempotency store not initialized")
	}
	var (
		record   repo.IdempotencyRecord
		status   string
		response []byte
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT idempotency_key, action_type, actor_id, status, response, created_at, expires_at
		 FROM idempotency_records
		 WHERE idempotency_key = $1 AND action_type = $2 AND actor_id = $3`,
		strings.TrimSpace(key),
		strings.TrimSpace(actionType),
		strings.TrimSpace(actorID),
	).Scan(&record.Key, &record.ActionType, &record.ActorID, &status, &response, &record.CreatedAt, &record.ExpiresAt)
	if err != nil {
		return repo.IdempotencyRecord{}, handleNotFound(err)
	}
	record.Status = repo.IdempotencyStatus(status)
	record.Response = response
	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	return record, nil
}

func (s *IdempotencyStore) MarkSucceeded(ctx context.Context, key, actionType, actorID string, response []byte) error {
	return s.complete(ctx, key, actionType, actorID, repo.IdempotencySucceeded, response)
}

func (s *IdempotencyStore) MarkFailed(ctx context.Context, key, actionType, actorID string) error {
	return s.complete(ctx, key, actionType, actorID, repo.IdempotencyFailed, nil)
}

func (s *IdempotencyStore) complete(ctx context.Context, key, actionType, actorID string, status repo.IdempotencyStatus, response []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("idempotency store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE idempotency_records SET status = $4, response = $5
		 WHERE idempotency_key = $1 AND action_type = $2 AND actor_id = $3 AND status = $6`,
		strings.TrimSpace(key),
		strings.TrimSpace(actionType),
		strings.TrimSpace(actorID),
		string(status),
		response,
		string(repo.IdempotencyInFlight),
	)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	return requireAffected(res, repo.ErrNotFound)
}

// TakeOver reclaims a failed or lease-expired record for a retry. The
// conditional update guarantees only one retrier wins.
func (s *IdempotencyStore) TakeOver(ctx context.Context, key, actionType, actorID string, staleBefore, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("idempotency store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE idempotency_records SET status = $4, response = NULL, created_at = $6
		 WHERE idempotency_key = $1 AND action_type = $2 AND actor_id = $3
		   AND (status = $7 OR (status = $4 AND created_at < $5))`,
		strings.TrimSpace(key),
		strings.TrimSpace(actionType),
		strings.TrimSpace(actorID),
		string(repo.IdempotencyInFlight),
		staleBefore.UTC(),
		now.UTC(),
		string(repo.IdempotencyFailed),
	)
	if err != nil {
		return fmt.Errorf("take over idempotency record: %w", err)
	}
	return requireAffected(res, repo.ErrConflict)
}

func (s *IdempotencyStore) ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("idempotency store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE idempotency_records SET status = $1
		 WHERE status = $2 AND created_at < $3`,
		string(repo.IdempotencyFailed),
		string(repo.IdempotencyInFlight),
		staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale idempotency records: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired garbage-collects completed records past their retention
// window.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("idempotency store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM idempotency_records WHERE expires_at < $1 AND status <> $2`,
		now.UTC(),
		string(repo.IdempotencyInFlight),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return res.RowsAffected()
}

func requireAffected(res sql.Result, miss error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return miss
	}
	return nil
}
