package domain

import (
	"errors"
	"net"
	"strings"
	"time"
)

// WorkflowLogEntry is one immutable record per executed transition. The
// ordered sequence of entries for a proposal, replayed from the initial
// state, reconstructs its current state.
type WorkflowLogEntry struct {
	ID                int64
	ProposalID        string
	Action            Action
	FromState         State
	ToState           State
	ActorID           string
	ActorRole         string
	OccurredAt        time.Time
	Comment           string
	ReasonCode        string
	ReturnTargetState State
	RequestID         string
	IP                net.IP
	UserAgent         string
	IntegritySHA256   string
}

func (e WorkflowLogEntry) Validate() error {
	if strings.TrimSpace(e.ProposalID) == "" {
		return errors.New("proposal id is required")
	}
	if strings.TrimSpace(string(e.Action)) == "" {
		return errors.New("action is required")
	}
	if strings.TrimSpace(string(e.FromState)) == "" {
		return errors.New("from state is required")
	}
	if strings.TrimSpace(string(e.ToState)) == "" {
		return errors.New("to state is required")
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return errors.New("actor id is required")
	}
	if strings.TrimSpace(e.ActorRole) == "" {
		return errors.New("actor role is required")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred at is required")
	}
	return nil
}
