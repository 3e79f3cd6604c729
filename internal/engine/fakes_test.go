package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/repo"
)

// memState is an in-memory stand-in for the transactional store. The state
// mutex doubles as the row lock: transactions hold it end to end, so
// transitions never interleave, matching the engine's locking contract.
type memState struct {
	mu       sync.Mutex
	proposal map[string]domain.Proposal
	entries  []domain.WorkflowLogEntry
	nextID   int64

	failUpdate bool
}

func newMemState(seed ...domain.Proposal) *memState {
	st := &memState{proposal: map[string]domain.Proposal{}, nextID: 1}
	for _, p := range seed {
		st.proposal[p.ID] = p
	}
	return st
}

func (st *memState) snapshot() ([]domain.WorkflowLogEntry, map[string]domain.Proposal, int64) {
	proposals := make(map[string]domain.Proposal, len(st.proposal))
	for k, v := range st.proposal {
		proposals[k] = v
	}
	entries := append([]domain.WorkflowLogEntry(nil), st.entries...)
	return entries, proposals, st.nextID
}

func (st *memState) restore(entries []domain.WorkflowLogEntry, proposals map[string]domain.Proposal, nextID int64) {
	st.entries = entries
	st.proposal = proposals
	st.nextID = nextID
}

type memRunner struct {
	st *memState
}

func (r *memRunner) InTx(ctx context.Context, fn func(ctx context.Context, s repo.Stores) error) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	entries, proposals, nextID := r.st.snapshot()
	err := fn(ctx, txStores{st: r.st})
	if err != nil {
		r.st.restore(entries, proposals, nextID)
	}
	return err
}

type txStores struct {
	st *memState
}

func (s txStores) Proposals() repo.ProposalRepository { return txProposals{st: s.st} }
func (s txStores) WorkflowLog() repo.WorkflowLogStore { return txLog{st: s.st} }

type txProposals struct {
	st *memState
}

func (p txProposals) Create(ctx context.Context, proposal domain.Proposal) error {
	p.st.proposal[proposal.ID] = proposal
	return nil
}

func (p txProposals) Get(ctx context.Context, id string) (domain.Proposal, error) {
	proposal, ok := p.st.proposal[id]
	if !ok {
		return domain.Proposal{}, repo.ErrNotFound
	}
	return proposal, nil
}

func (p txProposals) GetForUpdate(ctx context.Context, id string) (domain.Proposal, error) {
	return p.Get(ctx, id)
}

func (p txProposals) Update(ctx context.Context, proposal domain.Proposal) error {
	if p.st.failUpdate {
		return context.DeadlineExceeded
	}
	if _, ok := p.st.proposal[proposal.ID]; !ok {
		return repo.ErrNotFound
	}
	p.st.proposal[proposal.ID] = proposal
	return nil
}

func (p txProposals) SaveDraft(ctx context.Context, patch repo.DraftPatch) (domain.Proposal, error) {
	proposal, ok := p.st.proposal[patch.ID]
	if !ok || proposal.Deleted || proposal.State != patch.RequiredState {
		return domain.Proposal{}, repo.ErrNotFound
	}
	if !proposal.UpdatedAt.Equal(patch.ExpectedUpdatedAt) {
		return domain.Proposal{}, repo.ErrConflict
	}
	if patch.Title != nil {
		proposal.Title = *patch.Title
	}
	if patch.Summary != nil {
		proposal.Summary = *patch.Summary
	}
	proposal.UpdatedAt = time.Now().UTC()
	p.st.proposal[patch.ID] = proposal
	return proposal, nil
}

func (p txProposals) SoftDelete(ctx context.Context, id string, requiredState domain.State, expectedUpdatedAt time.Time) error {
	proposal, ok := p.st.proposal[id]
	if !ok || proposal.Deleted || proposal.State != requiredState {
		return repo.ErrNotFound
	}
	if !proposal.UpdatedAt.Equal(expectedUpdatedAt) {
		return repo.ErrConflict
	}
	proposal.Deleted = true
	proposal.UpdatedAt = time.Now().UTC()
	p.st.proposal[id] = proposal
	return nil
}

type txLog struct {
	st *memState
}

func (l txLog) Append(ctx context.Context, entry domain.WorkflowLogEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	entry.ID = l.st.nextID
	l.st.nextID++
	l.st.entries = append(l.st.entries, entry)
	return entry.ID, nil
}

func (l txLog) ListByProposal(ctx context.Context, proposalID string) ([]domain.WorkflowLogEntry, error) {
	var out []domain.WorkflowLogEntry
	for _, entry := range l.st.entries {
		if entry.ProposalID == proposalID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// safeStores locks per call, for services that run outside a transaction.
type safeProposals struct {
	st *memState
}

func (p safeProposals) Create(ctx context.Context, proposal domain.Proposal) error {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return txProposals{st: p.st}.Create(ctx, proposal)
}

func (p safeProposals) Get(ctx context.Context, id string) (domain.Proposal, error) {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return txProposals{st: p.st}.Get(ctx, id)
}

func (p safeProposals) GetForUpdate(ctx context.Context, id string) (domain.Proposal, error) {
	return p.Get(ctx, id)
}

func (p safeProposals) Update(ctx context.Context, proposal domain.Proposal) error {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return txProposals{st: p.st}.Update(ctx, proposal)
}

func (p safeProposals) SaveDraft(ctx context.Context, patch repo.DraftPatch) (domain.Proposal, error) {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return txProposals{st: p.st}.SaveDraft(ctx, patch)
}

func (p safeProposals) SoftDelete(ctx context.Context, id string, requiredState domain.State, expectedUpdatedAt time.Time) error {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return txProposals{st: p.st}.SoftDelete(ctx, id, requiredState, expectedUpdatedAt)
}

type fakeDirectory struct {
	facultyOffices map[string]string
	schoolOffice   string
	councils       map[string]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		facultyOffices: map[string]string{"fac-1": "unit-fac-1-office"},
		schoolOffice:   "unit-school-office",
		councils:       map[string]string{"council-9": "unit-council-9"},
	}
}

func (d *fakeDirectory) FacultyOffice(ctx context.Context, facultyID string) (string, error) {
	unit, ok := d.facultyOffices[facultyID]
	if !ok {
		return "", repo.ErrNotFound
	}
	return unit, nil
}

func (d *fakeDirectory) SchoolOffice(ctx context.Context) (string, error) {
	if d.schoolOffice == "" {
		return "", repo.ErrNotFound
	}
	return d.schoolOffice, nil
}

func (d *fakeDirectory) Council(ctx context.Context, councilID string) (string, error) {
	unit, ok := d.councils[councilID]
	if !ok {
		return "", repo.ErrNotFound
	}
	return unit, nil
}

type fakeIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]repo.IdempotencyRecord
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{records: map[string]repo.IdempotencyRecord{}}
}

func idemKey(key, actionType, actorID string) string {
	return strings.Join([]string{key, actionType, actorID}, "|")
}

func (s *fakeIdempotencyStore) Insert(ctx context.Context, record repo.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(record.Key, record.ActionType, record.ActorID)
	if _, ok := s.records[k]; ok {
		return repo.ErrDuplicateKey
	}
	s.records[k] = record
	return nil
}

func (s *fakeIdempotencyStore) Get(ctx context.Context, key, actionType, actorID string) (repo.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[idemKey(key, actionType, actorID)]
	if !ok {
		return repo.IdempotencyRecord{}, repo.ErrNotFound
	}
	return rec, nil
}

func (s *fakeIdempotencyStore) MarkSucceeded(ctx context.Context, key, actionType, actorID string, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(key, actionType, actorID)
	rec, ok := s.records[k]
	if !ok {
		return repo.ErrNotFound
	}
	rec.Status = repo.IdempotencySucceeded
	rec.Response = response
	s.records[k] = rec
	return nil
}

func (s *fakeIdempotencyStore) MarkFailed(ctx context.Context, key, actionType, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(key, actionType, actorID)
	rec, ok := s.records[k]
	if !ok {
		return repo.ErrNotFound
	}
	rec.Status = repo.IdempotencyFailed
	rec.Response = nil
	s.records[k] = rec
	return nil
}

func (s *fakeIdempotencyStore) TakeOver(ctx context.Context, key, actionType, actorID string, staleBefore, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(key, actionType, actorID)
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

func (s *fakeIdempotencyStore) ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error) {
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
