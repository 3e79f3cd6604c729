package rules

import (
	"strings"
	"testing"

	"github.com/provost-labs/provost-go/internal/domain"
)

func TestDefaultGraphIsValid(t *testing.T) {
	g := Default()
	if g.Initial() != domain.StateDraft {
		t.Fatalf("initial = %s, want %s", g.Initial(), domain.StateDraft)
	}
	terminals := g.Terminals()
	if len(terminals) != 2 {
		t.Fatalf("terminals = %v, want COMPLETED and REJECTED", terminals)
	}
	for _, state := range terminals {
		if state != domain.StateCompleted && state != domain.StateRejected {
			t.Fatalf("unexpected terminal state %s", state)
		}
	}
}

func TestLookup(t *testing.T) {
	g := Default()

	rule, ok := g.Lookup(domain.StateDraft, domain.ActionSubmit)
	if !ok {
		t.Fatalf("expected rule for DRAFT/SUBMIT")
	}
	if rule.To != domain.StateFacultyReview {
		t.Fatalf("DRAFT/SUBMIT -> %s, want FACULTY_REVIEW", rule.To)
	}
	if !rule.AllowsRole(domain.RoleOwner) {
		t.Fatalf("expected owner to be allowed on SUBMIT")
	}
	if rule.AllowsRole(domain.RoleReviewer) {
		t.Fatalf("reviewer must not be allowed on SUBMIT")
	}

	if _, ok := g.Lookup(domain.StateDraft, domain.ActionAssignCouncil); ok {
		t.Fatalf("ASSIGN_COUNCIL must not be legal from DRAFT")
	}
	if _, ok := g.Lookup(domain.StateCompleted, domain.ActionSubmit); ok {
		t.Fatalf("terminal state must have no outgoing rules")
	}
}

func TestNewGraphRejectsUnflaggedCycle(t *testing.T) {
	_, err := NewGraph("A", []TransitionRule{
		{From: "A", Action: "GO", To: "B", AllowedRoles: []string{"owner"}, Holder: HolderNone},
		{From: "B", Action: "BACK", To: "A", AllowedRoles: []string{"owner"}, Holder: HolderNone},
	})
	if err == nil {
		t.Fatalf("expected cycle rejection")
	}
}

func TestNewGraphAcceptsReturnEdge(t *testing.T) {
	g, err := NewGraph("A", []TransitionRule{
		{From: "A", Action: "GO", To: "B", AllowedRoles: []string{"owner"}, Holder: HolderNone},
		{From: "B", Action: "BACK", To: "A", AllowedRoles: []string{"owner"}, Holder: HolderOwner, Return: true},
		{From: "B", Action: "DONE", To: "C", AllowedRoles: []string{"owner"}, Holder: HolderNone},
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if !g.IsTerminal("C") {
		t.Fatalf("C must be terminal")
	}
}

func TestNewGraphRejectsUnreachableState(t *testing.T) {
	_, err := NewGraph("A", []TransitionRule{
		{From: "A", Action: "GO", To: "B", AllowedRoles: []string{"owner"}, Holder: HolderNone},
		{From: "X", Action: "GO", To: "Y", AllowedRoles: []string{"owner"}, Holder: HolderNone},
	})
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected unreachable state error, got %v", err)
	}
}

func TestNewGraphRejectsDuplicateRule(t *testing.T) {
	_, err := NewGraph("A", []TransitionRule{
		{From: "A", Action: "GO", To: "B", AllowedRoles: []string{"owner"}, Holder: HolderNone},
		{From: "A", Action: "GO", To: "C", AllowedRoles: []string{"owner"}, Holder: HolderNone},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate rule error, got %v", err)
	}
}

func TestNewGraphRequiresTerminal(t *testing.T) {
	_, err := NewGraph("A", []TransitionRule{
		{From: "A", Action: "GO", To: "B", AllowedRoles: []string{"owner"}, Holder: HolderNone},
		{From: "B", Action: "BACK", To: "A", AllowedRoles: []string{"owner"}, Holder: HolderOwner, Return: true},
		{From: "A", Action: "SPIN", To: "B", AllowedRoles: []string{"owner"}, Holder: HolderNone},
	})
	// B has outgoing return edge only; A has outgoing rules. No terminal exists.
	if err == nil || !strings.Contains(err.Error(), "terminal") {
		t.Fatalf("expected terminal requirement error, got %v", err)
	}
}
