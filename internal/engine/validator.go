package engine

import (
	"strings"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/rules"
)

// Validator decides allow/deny for a requested transition and resolves the
// target rule. Read-only; never mutates the proposal.
type Validator struct {
	graph *rules.Graph
}

func NewValidator(graph *rules.Graph) *Validator {
	if graph == nil {
		return nil
	}
	return &Validator{graph: graph}
}

// Validate resolves the rule for (proposal.State, action) and checks role,
// unit scope, and rule preconditions.
func (v *Validator) Validate(proposal domain.Proposal, action domain.Action, actor domain.Actor, payload ActionPayload) (rules.TransitionRule, error) {
	if err := actor.Validate(); err != nil {
		return rules.TransitionRule{}, domain.NewError(domain.CodeForbidden, "%s", err.Error())
	}

	rule, ok := v.graph.Lookup(proposal.State, action)
	if !ok {
		return rules.TransitionRule{}, domain.NewError(domain.CodeInvalidTransition,
			"action %s is not legal in state %s", action, proposal.State)
	}
	if !rule.AllowsRole(actor.Role) {
		return rules.TransitionRule{}, domain.NewError(domain.CodeForbidden,
			"role %s may not trigger %s", actor.Role, action)
	}
	if rule.FacultyScoped && actor.FacultyID != proposal.FacultyID {
		return rules.TransitionRule{}, domain.NewError(domain.CodeForbidden,
			"actor faculty %s does not match proposal faculty %s", actor.FacultyID, proposal.FacultyID)
	}

	for _, precond := range rule.Preconditions {
		switch precond {
		case rules.PrecondCouncilAssigned:
			if proposal.CouncilID == nil || strings.TrimSpace(*proposal.CouncilID) == "" {
				return rules.TransitionRule{}, domain.NewError(domain.CodePreconditionFailed,
					"proposal has no council assigned")
			}
		case rules.PrecondCouncilInPayload:
			if strings.TrimSpace(payload.CouncilID) == "" {
				return rules.TransitionRule{}, domain.NewError(domain.CodePreconditionFailed,
					"action %s requires a council id", action)
			}
		}
	}
	return rule, nil
}
