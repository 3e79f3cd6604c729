package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provost-labs/provost-go/internal/calendar"
	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/repo"
	"github.com/provost-labs/provost-go/internal/rules"
)

// Assignment is the holder and SLA bookkeeping for a target state.
type Assignment struct {
	HolderUnit   *string
	HolderUser   *string
	SLAStartDate *time.Time
	SLADeadline  *time.Time
}

// Resolver computes the new holder and SLA deadline for a transition's
// target state. Deterministic for fixed inputs and calendar.
type Resolver struct {
	calendar  calendar.BusinessCalendar
	directory repo.UnitDirectory
}

func NewResolver(cal calendar.BusinessCalendar, directory repo.UnitDirectory) *Resolver {
	if directory == nil {
		return nil
	}
	return &Resolver{calendar: cal, directory: directory}
}

// Resolve applies the rule's holder policy and SLA policy.
func (r *Resolver) Resolve(ctx context.Context, rule rules.TransitionRule, proposal domain.Proposal, payload ActionPayload, now time.Time) (Assignment, error) {
	var assignment Assignment

	switch rule.Holder {
	case rules.HolderFacultyOffice:
		unit, err := r.directory.FacultyOffice(ctx, proposal.FacultyID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return Assignment{}, domain.NewError(domain.CodePreconditionFailed,
					"no office unit configured for faculty %s", proposal.FacultyID)
			}
			return Assignment{}, fmt.Errorf("resolve faculty office: %w", err)
		}
		assignment.HolderUnit = &unit
	case rules.HolderSchoolOffice:
		unit, err := r.directory.SchoolOffice(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return Assignment{}, domain.NewError(domain.CodePreconditionFailed,
					"no school office unit configured")
			}
			return Assignment{}, fmt.Errorf("resolve school office: %w", err)
		}
		assignment.HolderUnit = &unit
	case rules.HolderActionCouncil:
		unit, err := r.directory.Council(ctx, payload.CouncilID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return Assignment{}, domain.NewError(domain.CodePreconditionFailed,
					"council %s is not registered", payload.CouncilID)
			}
			return Assignment{}, fmt.Errorf("resolve council: %w", err)
		}
		assignment.HolderUnit = &unit
	case rules.HolderOwner:
		owner := proposal.OwnerID
		assignment.HolderUser = &owner
	case rules.HolderInherit:
		assignment.HolderUnit = proposal.HolderUnit
		assignment.HolderUser = proposal.HolderUser
	case rules.HolderNone:
		// terminal states carry no holder
	}

	if rule.SLADays > 0 {
		start := now.UTC()
		deadline := calendar.AddBusinessDays(r.calendar, start, rule.SLADays)
		assignment.SLAStartDate = &start
		assignment.SLADeadline = &deadline
	}
	return assignment, nil
}
