package main

import (
	"fmt"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/rules"
)

// replayEntries walks a proposal's workflow log from the graph's initial
// state and returns the reconstructed current state. Every entry must chain
// onto its predecessor and match a rule in the graph.
func replayEntries(graph *rules.Graph, entries []domain.WorkflowLogEntry) (domain.State, error) {
	state := graph.Initial()
	for i, entry := range entries {
		if entry.FromState != state {
			return "", fmt.Errorf("entry %d (log_id %d): from state %s does not chain onto %s",
				i, entry.ID, entry.FromState, state)
		}
		rule, ok := graph.Lookup(entry.FromState, entry.Action)
		if !ok {
			return "", fmt.Errorf("entry %d (log_id %d): no rule for action %s in state %s",
				i, entry.ID, entry.Action, entry.FromState)
		}
		if rule.To != entry.ToState {
			return "", fmt.Errorf("entry %d (log_id %d): rule targets %s but entry records %s",
				i, entry.ID, rule.To, entry.ToState)
		}
		state = entry.ToState
	}
	return state, nil
}

// verifyReplay checks that the replayed log lands on the state the proposal
// row actually carries.
func verifyReplay(graph *rules.Graph, proposal domain.Proposal, entries []domain.WorkflowLogEntry) error {
	replayed, err := replayEntries(graph, entries)
	if err != nil {
		return err
	}
	if replayed != proposal.State {
		return fmt.Errorf("replay reaches %s but proposal is in %s", replayed, proposal.State)
	}
	return nil
}
