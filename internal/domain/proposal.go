package domain

import (
	"errors"
	"strings"
	"time"
)

// State is a workflow state of a proposal. The set of states is domain
// configuration carried by the transition graph; these constants cover the
// default academic approval lifecycle.
type State string

const (
	StateDraft           State = "DRAFT"
	StateFacultyReview   State = "FACULTY_REVIEW"
	StateSchoolSelection State = "SCHOOL_SELECTION_REVIEW"
	StateCouncilReview   State = "COUNCIL_REVIEW"
	StateExecution       State = "EXECUTION"
	StateAcceptance      State = "ACCEPTANCE"
	StateHandover        State = "HANDOVER"
	StateCompleted       State = "COMPLETED"
	StateRejected        State = "REJECTED"
)

// Action triggers a transition between workflow states.
type Action string

const (
	ActionSubmit            Action = "SUBMIT"
	ActionFacultyApprove    Action = "FACULTY_APPROVE"
	ActionReturnForRevision Action = "RETURN_FOR_REVISION"
	ActionAssignCouncil     Action = "ASSIGN_COUNCIL"
	ActionCouncilApprove    Action = "COUNCIL_APPROVE"
	ActionCouncilReject     Action = "COUNCIL_REJECT"
	ActionSubmitResults     Action = "SUBMIT_RESULTS"
	ActionAccept            Action = "ACCEPT"
	ActionComplete          Action = "COMPLETE"
)

// Proposal is the workflow subject. Once past the initial editable state it
// is mutated exclusively through the transition executor.
type Proposal struct {
	ID              string
	Title           string
	Summary         string
	State           State
	OwnerID         string
	FacultyID       string
	CouncilID       *string
	HolderUnit      *string
	HolderUser      *string
	SLAStartDate    *time.Time
	SLADeadline     *time.Time
	ActualStartDate *time.Time
	CompletedDate   *time.Time
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p Proposal) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("proposal id is required")
	}
	if strings.TrimSpace(string(p.State)) == "" {
		return errors.New("state is required")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if strings.TrimSpace(p.FacultyID) == "" {
		return errors.New("faculty id is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}
