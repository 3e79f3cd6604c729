package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/repo"
)

const proposalColumns = `proposal_id, title, summary, state, owner_id, faculty_id, council_id,
	holder_unit, holder_user, sla_start_date, sla_deadline, actual_start_date, completed_date,
	deleted, created_at, updated_at`

type ProposalStore struct {
	db DB
}

func NewProposalStore(db DB) *ProposalStore {
	if db == nil {
		return nil
	}
	return &ProposalStore{db: db}
}

func (s *ProposalStore) Create(ctx context.Context, proposal domain.Proposal) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("proposal store not initialized")
	}
	if err := proposal.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO proposals (`+proposalColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		strings.TrimSpace(proposal.ID),
		strings.TrimSpace(proposal.Title),
		proposal.Summary,
		string(proposal.State),
		strings.TrimSpace(proposal.OwnerID),
		strings.TrimSpace(proposal.FacultyID),
		nullString(proposal.CouncilID),
		nullString(proposal.HolderUnit),
		nullString(proposal.HolderUser),
		nullTime(proposal.SLAStartDate),
		nullTime(proposal.SLADeadline),
		nullTime(proposal.ActualStartDate),
		nullTime(proposal.CompletedDate),
		proposal.Deleted,
		proposal.CreatedAt.UTC(),
		proposal.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrDuplicateKey
		}
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *ProposalStore) Get(ctx context.Context, id string) (domain.Proposal, error) {
	return s.get(ctx, id, false)
}

func (s *ProposalStore) GetForUpdate(ctx context.Context, id string) (domain.Proposal, error) {
	return s.get(ctx, id, true)
}

func (s *ProposalStore) get(ctx context.Context, id string, lock bool) (domain.Proposal, error) {
	if s == nil || s.db == nil {
		return domain.Proposal{}, fmt.Errorf("proposal store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Proposal{}, fmt.Errorf("proposal id is required")
	}
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE proposal_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanProposal(s.db.QueryRowContext(ctx, query, id))
}

// Update persists all transition-managed fields in one write.
func (s *ProposalStore) Update(ctx context.Context, proposal domain.Proposal) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("proposal store not initialized")
	}
	if err := proposal.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE proposals SET
			title = $2,
			summary = $3,
			state = $4,
			council_id = $5,
			holder_unit = $6,
			holder_user = $7,
			sla_start_date = $8,
			sla_deadline = $9,
			actual_start_date = $10,
			completed_date = $11,
			updated_at = $12
		 WHERE proposal_id = $1 AND NOT deleted`,
		strings.TrimSpace(proposal.ID),
		strings.TrimSpace(proposal.Title),
		proposal.Summary,
		string(proposal.State),
		nullString(proposal.CouncilID),
		nullString(proposal.HolderUnit),
		nullString(proposal.HolderUser),
		nullTime(proposal.SLAStartDate),
		nullTime(proposal.SLADeadline),
		nullTime(proposal.ActualStartDate),
		nullTime(proposal.CompletedDate),
		proposal.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// SaveDraft applies an auto-save patch guarded by the optimistic token and
// the required (initial) state.
func (s *ProposalStore) SaveDraft(ctx context.Context, patch repo.DraftPatch) (domain.Proposal, error) {
	if s == nil || s.db == nil {
		return domain.Proposal{}, fmt.Errorf("proposal store not initialized")
	}
	id := strings.TrimSpace(patch.ID)
	if id == "" {
		return domain.Proposal{}, fmt.Errorf("proposal id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE proposals SET
			title = COALESCE($4, title),
			summary = COALESCE($5, summary),
			updated_at = $6
		 WHERE proposal_id = $1 AND state = $2 AND NOT deleted AND updated_at = $3
		 RETURNING `+proposalColumns,
		id,
		string(patch.RequiredState),
		patch.ExpectedUpdatedAt.UTC(),
		nullString(patch.Title),
		nullString(patch.Summary),
		time.Now().UTC(),
	)
	updated, err := scanProposal(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Proposal{}, fmt.Errorf("save draft: %w", err)
	}
	return domain.Proposal{}, s.classifyConditionalMiss(ctx, id, patch.RequiredState)
}

func (s *ProposalStore) SoftDelete(ctx context.Context, id string, requiredState domain.State, expectedUpdatedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("proposal store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("proposal id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE proposals SET deleted = TRUE, updated_at = $4
		 WHERE proposal_id = $1 AND state = $2 AND NOT deleted AND updated_at = $3`,
		id,
		string(requiredState),
		expectedUpdatedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("soft delete proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete proposal: %w", err)
	}
	if affected == 0 {
		return s.classifyConditionalMiss(ctx, id, requiredState)
	}
	return nil
}

// classifyConditionalMiss distinguishes a stale optimistic token from a
// genuinely missing or non-editable proposal after a conditional write
// matched no row.
func (s *ProposalStore) classifyConditionalMiss(ctx context.Context, id string, requiredState domain.State) error {
	current, err := s.get(ctx, id, false)
	if err != nil {
		return handleNotFound(err)
	}
	if current.Deleted || current.State != requiredState {
		return repo.ErrNotFound
	}
	return repo.ErrConflict
}

func scanProposal(row *sql.Row) (domain.Proposal, error) {
	var (
		p               domain.Proposal
		summary         sql.NullString
		councilID       sql.NullString
		holderUnit      sql.NullString
		holderUser      sql.NullString
		slaStartDate    sql.NullTime
		slaDeadline     sql.NullTime
		actualStartDate sql.NullTime
		completedDate   sql.NullTime
	)
	var state string
	err := row.Scan(
		&p.ID, &p.Title, &summary, &state, &p.OwnerID, &p.FacultyID, &councilID,
		&holderUnit, &holderUser, &slaStartDate, &slaDeadline, &actualStartDate, &completedDate,
		&p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Proposal{}, handleNotFound(err)
	}
	p.State = domain.State(state)
	if summary.Valid {
		p.Summary = summary.String
	}
	p.CouncilID = stringPtr(councilID)
	p.HolderUnit = stringPtr(holderUnit)
	p.HolderUser = stringPtr(holderUser)
	p.SLAStartDate = timePtr(slaStartDate)
	p.SLADeadline = timePtr(slaDeadline)
	p.ActualStartDate = timePtr(actualStartDate)
	p.CompletedDate = timePtr(completedDate)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
