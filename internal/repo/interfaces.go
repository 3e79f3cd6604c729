package repo

import (
	"context"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
)

// DraftPatch is an auto-save write against a proposal still in its editable
// state. ExpectedUpdatedAt is the optimistic-concurrency token the caller
// last observed; RequiredState pins the write to the graph's initial state.
type DraftPatch struct {
	ID                string
	Title             *string
	Summary           *string
	RequiredState     domain.State
	ExpectedUpdatedAt time.Time
}

// ProposalRepository manages workflow subjects.
type ProposalRepository interface {
	Create(ctx context.Context, proposal domain.Proposal) error
	Get(ctx context.Context, id string) (domain.Proposal, error)

	// GetForUpdate loads the proposal with a row-level lock held for the
	// duration of the enclosing transaction.
	GetForUpdate(ctx context.Context, id string) (domain.Proposal, error)

	// Update persists all transition-managed fields in one write.
	Update(ctx context.Context, proposal domain.Proposal) error

	// SaveDraft applies an auto-save patch; ErrConflict on a stale token,
	// ErrNotFound when the proposal is absent, deleted, or past the
	// required state.
	SaveDraft(ctx context.Context, patch DraftPatch) (domain.Proposal, error)

	// SoftDelete flags a proposal deleted; same token and state rules as
	// SaveDraft.
	SoftDelete(ctx context.Context, id string, requiredState domain.State, expectedUpdatedAt time.Time) error
}

// WorkflowLogStore is the append-only audit trail of executed transitions.
type WorkflowLogStore interface {
	Append(ctx context.Context, entry domain.WorkflowLogEntry) (int64, error)
	ListByProposal(ctx context.Context, proposalID string) ([]domain.WorkflowLogEntry, error)
}

// IdempotencyStatus is the lifecycle of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyInFlight  IdempotencyStatus = "in_flight"
	IdempotencySucceeded IdempotencyStatus = "succeeded"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// IdempotencyRecord maps (key, action type, actor) to a stored response.
type IdempotencyRecord struct {
	Key        string
	ActionType string
	ActorID    string
	Status     IdempotencyStatus
	Response   []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IdempotencyStore persists idempotency records with a uniqueness constraint
// on (key, action_type, actor_id).
type IdempotencyStore interface {
	// Insert creates an in-flight record; ErrDuplicateKey when one exists.
	Insert(ctx context.Context, record IdempotencyRecord) error
	Get(ctx context.Context, key, actionType, actorID string) (IdempotencyRecord, error)
	MarkSucceeded(ctx context.Context, key, actionType, actorID string, response []byte) error
	MarkFailed(ctx context.Context, key, actionType, actorID string) error

	// TakeOver atomically flips a failed record, or an in-flight record
	// created before staleBefore, back to in-flight for a retry.
	// ErrConflict when the record is not eligible.
	TakeOver(ctx context.Context, key, actionType, actorID string, staleBefore, now time.Time) error

	// ReclaimStale flips in-flight records older than the lease cutoff to
	// failed so abandoned requests do not block retries forever.
	ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error)
}

// UnitDirectory resolves holder identities for holder policies.
type UnitDirectory interface {
	FacultyOffice(ctx context.Context, facultyID string) (string, error)
	SchoolOffice(ctx context.Context) (string, error)
	Council(ctx context.Context, councilID string) (string, error)
}

// Stores bundles the repositories that participate in one executor
// transaction.
type Stores interface {
	Proposals() ProposalRepository
	WorkflowLog() WorkflowLogStore
}

// TxRunner runs fn inside one atomic transaction; the Stores passed to fn
// are bound to that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
