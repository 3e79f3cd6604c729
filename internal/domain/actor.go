package domain

import (
	"errors"
	"net"
	"strings"
	"time"
)

// Role constants cover the default approval lifecycle. Like states, roles are
// domain configuration referenced by the transition graph.
const (
	RoleOwner          = "owner"
	RoleFacultyManager = "faculty_manager"
	RoleSchoolOfficer  = "school_officer"
	RoleReviewer       = "reviewer"
)

// Actor is the authenticated principal requesting a transition.
type Actor struct {
	ID        string
	Role      string
	FacultyID string
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("actor id is required")
	}
	if strings.TrimSpace(a.Role) == "" {
		return errors.New("actor role is required")
	}
	return nil
}

// RequestMeta carries request provenance through the call chain instead of
// ambient per-request state.
type RequestMeta struct {
	RequestID string
	IP        net.IP
	UserAgent string
}

// TransitionResult is the outcome of one executed transition. It is stored
// verbatim under the idempotency key for replay.
type TransitionResult struct {
	Proposal      Proposal
	PreviousState State
	CurrentState  State
	HolderUnit    *string
	HolderUser    *string
	WorkflowLogID int64
	OccurredAt    time.Time
}
