package rules

import "github.com/provost-labs/provost-go/internal/domain"

// Default returns the built-in approval graph: drafting, faculty review,
// school selection, council review, execution, acceptance, handover.
// Deployments may override it with a YAML rule file.
func Default() *Graph {
	g, err := NewGraph(domain.StateDraft, DefaultRules())
	if err != nil {
		panic("rules: default graph invalid: " + err.Error())
	}
	return g
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []TransitionRule {
	return []TransitionRule{
		{
			From:         domain.StateDraft,
			Action:       domain.ActionSubmit,
			To:           domain.StateFacultyReview,
			AllowedRoles: []string{domain.RoleOwner},
			Holder:       HolderFacultyOffice,
			SLADays:      5,
		},
		{
			From:          domain.StateFacultyReview,
			Action:        domain.ActionFacultyApprove,
			To:            domain.StateSchoolSelection,
			AllowedRoles:  []string{domain.RoleFacultyManager},
			FacultyScoped: true,
			Holder:        HolderSchoolOffice,
			SLADays:       7,
		},
		{
			From:          domain.StateFacultyReview,
			Action:        domain.ActionReturnForRevision,
			To:            domain.StateDraft,
			AllowedRoles:  []string{domain.RoleFacultyManager},
			FacultyScoped: true,
			Holder:        HolderOwner,
			Return:        true,
		},
		{
			From:          domain.StateSchoolSelection,
			Action:        domain.ActionAssignCouncil,
			To:            domain.StateCouncilReview,
			AllowedRoles:  []string{domain.RoleSchoolOfficer},
			Holder:        HolderActionCouncil,
			SLADays:       10,
			Preconditions: []Precondition{PrecondCouncilInPayload},
		},
		{
			From:         domain.StateSchoolSelection,
			Action:       domain.ActionReturnForRevision,
			To:           domain.StateDraft,
			AllowedRoles: []string{domain.RoleSchoolOfficer},
			Holder:       HolderOwner,
			Return:       true,
		},
		{
			From:             domain.StateCouncilReview,
			Action:           domain.ActionCouncilApprove,
			To:               domain.StateExecution,
			AllowedRoles:     []string{domain.RoleReviewer},
			Holder:           HolderOwner,
			Preconditions:    []Precondition{PrecondCouncilAssigned},
			MarksActualStart: true,
		},
		{
			From:          domain.StateCouncilReview,
			Action:        domain.ActionCouncilReject,
			To:            domain.StateRejected,
			AllowedRoles:  []string{domain.RoleReviewer},
			Holder:        HolderNone,
			Preconditions: []Precondition{PrecondCouncilAssigned},
		},
		{
			From:         domain.StateExecution,
			Action:       domain.ActionSubmitResults,
			To:           domain.StateAcceptance,
			AllowedRoles: []string{domain.RoleOwner},
			Holder:       HolderFacultyOffice,
			SLADays:      10,
		},
		{
			From:          domain.StateAcceptance,
			Action:        domain.ActionAccept,
			To:            domain.StateHandover,
			AllowedRoles:  []string{domain.RoleFacultyManager},
			FacultyScoped: true,
			Holder:        HolderSchoolOffice,
			SLADays:       5,
		},
		{
			From:          domain.StateAcceptance,
			Action:        domain.ActionReturnForRevision,
			To:            domain.StateExecution,
			AllowedRoles:  []string{domain.RoleFacultyManager},
			FacultyScoped: true,
			Holder:        HolderOwner,
			Return:        true,
		},
		{
			From:           domain.StateHandover,
			Action:         domain.ActionComplete,
			To:             domain.StateCompleted,
			AllowedRoles:   []string{domain.RoleSchoolOfficer},
			Holder:         HolderNone,
			MarksCompleted: true,
		},
	}
}
