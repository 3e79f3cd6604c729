package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/repo"
	"github.com/provost-labs/provost-go/internal/rules"
)

// Drafts manages proposals in the initial editable state: creation,
// auto-save with optimistic concurrency, and soft deletion. Everything past
// the initial state goes through the Executor.
type Drafts struct {
	proposals repo.ProposalRepository
	graph     *rules.Graph
	logger    *slog.Logger
	now       func() time.Time
}

func NewDrafts(proposals repo.ProposalRepository, graph *rules.Graph, logger *slog.Logger) *Drafts {
	if proposals == nil || graph == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Drafts{proposals: proposals, graph: graph, logger: logger, now: time.Now}
}

// Create opens a new proposal in the initial state, held by its owner.
func (d *Drafts) Create(ctx context.Context, actor domain.Actor, title, summary string) (domain.Proposal, error) {
	if err := actor.Validate(); err != nil {
		return domain.Proposal{}, domain.NewError(domain.CodeForbidden, "%s", err.Error())
	}
	if strings.TrimSpace(actor.FacultyID) == "" {
		return domain.Proposal{}, domain.NewError(domain.CodePreconditionFailed, "actor has no faculty")
	}
	if strings.TrimSpace(title) == "" {
		return domain.Proposal{}, domain.NewError(domain.CodePreconditionFailed, "title is required")
	}

	now := d.now().UTC()
	owner := actor.ID
	proposal := domain.Proposal{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(title),
		Summary:    strings.TrimSpace(summary),
		State:      d.graph.Initial(),
		OwnerID:    actor.ID,
		FacultyID:  actor.FacultyID,
		HolderUser: &owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.proposals.Create(ctx, proposal); err != nil {
		return domain.Proposal{}, fmt.Errorf("create proposal: %w", err)
	}
	d.logger.Info("proposal created",
		"proposal_id", proposal.ID,
		"owner_id", proposal.OwnerID,
		"faculty_id", proposal.FacultyID,
	)
	return proposal, nil
}

// SavePatch is an auto-save request. Nil fields are left unchanged; repeated
// partial writes are intentionally cumulative, which is why this path uses
// optimistic concurrency instead of idempotency keys.
type SavePatch struct {
	ProposalID        string
	Title             *string
	Summary           *string
	ExpectedUpdatedAt time.Time
}

// Save applies an auto-save patch to an owned draft.
func (d *Drafts) Save(ctx context.Context, actor domain.Actor, patch SavePatch) (domain.Proposal, error) {
	proposal, err := d.ownedEditable(ctx, actor, patch.ProposalID)
	if err != nil {
		return domain.Proposal{}, err
	}

	updated, err := d.proposals.SaveDraft(ctx, repo.DraftPatch{
		ID:                proposal.ID,
		Title:             patch.Title,
		Summary:           patch.Summary,
		RequiredState:     d.graph.Initial(),
		ExpectedUpdatedAt: patch.ExpectedUpdatedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrConflict):
			return domain.Proposal{}, domain.NewError(domain.CodeConflict,
				"proposal was modified concurrently; reload and retry")
		case errors.Is(err, repo.ErrNotFound):
			return domain.Proposal{}, domain.NewError(domain.CodeNotFound, "proposal %s not found", patch.ProposalID)
		}
		return domain.Proposal{}, fmt.Errorf("save draft: %w", err)
	}
	return updated, nil
}

// Delete soft-deletes an owned draft. Proposals past the initial state are
// never deleted.
func (d *Drafts) Delete(ctx context.Context, actor domain.Actor, proposalID string, expectedUpdatedAt time.Time) error {
	proposal, err := d.ownedEditable(ctx, actor, proposalID)
	if err != nil {
		return err
	}
	err = d.proposals.SoftDelete(ctx, proposal.ID, d.graph.Initial(), expectedUpdatedAt)
	switch {
	case err == nil:
		d.logger.Info("proposal soft-deleted", "proposal_id", proposal.ID, "owner_id", actor.ID)
		return nil
	case errors.Is(err, repo.ErrConflict):
		return domain.NewError(domain.CodeConflict, "proposal was modified concurrently; reload and retry")
	case errors.Is(err, repo.ErrNotFound):
		return domain.NewError(domain.CodeNotFound, "proposal %s not found", proposalID)
	}
	return fmt.Errorf("soft delete proposal: %w", err)
}

// Get loads a proposal; soft-deleted proposals read as absent.
func (d *Drafts) Get(ctx context.Context, proposalID string) (domain.Proposal, error) {
	proposal, err := d.proposals.Get(ctx, proposalID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Proposal{}, domain.NewError(domain.CodeNotFound, "proposal %s not found", proposalID)
		}
		return domain.Proposal{}, fmt.Errorf("load proposal: %w", err)
	}
	if proposal.Deleted {
		return domain.Proposal{}, domain.NewError(domain.CodeNotFound, "proposal %s not found", proposalID)
	}
	return proposal, nil
}

func (d *Drafts) ownedEditable(ctx context.Context, actor domain.Actor, proposalID string) (domain.Proposal, error) {
	if err := actor.Validate(); err != nil {
		return domain.Proposal{}, domain.NewError(domain.CodeForbidden, "%s", err.Error())
	}
	proposal, err := d.Get(ctx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if proposal.OwnerID != actor.ID {
		return domain.Proposal{}, domain.NewError(domain.CodeForbidden, "proposal %s is not owned by actor", proposalID)
	}
	if proposal.State != d.graph.Initial() {
		return domain.Proposal{}, domain.NewError(domain.CodePreconditionFailed,
			"proposal in state %s is not editable", proposal.State)
	}
	return proposal, nil
}
