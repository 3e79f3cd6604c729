package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/provost-labs/provost-go/internal/domain"
)

// HolderPolicy selects how the responsible unit/user is computed for the
// target state of a transition.
type HolderPolicy string

const (
	HolderFacultyOffice HolderPolicy = "faculty_office"
	HolderSchoolOffice  HolderPolicy = "school_office"
	HolderActionCouncil HolderPolicy = "action_council"
	HolderOwner         HolderPolicy = "owner"
	HolderInherit       HolderPolicy = "inherit"
	HolderNone          HolderPolicy = "none"
)

// Precondition is a named rule-specific check evaluated by the validator.
type Precondition string

const (
	PrecondCouncilAssigned  Precondition = "council_assigned"
	PrecondCouncilInPayload Precondition = "council_in_payload"
)

// TransitionRule defines one legal (fromState, action) -> toState edge plus
// the authorization, holder, and SLA policy attached to it.
type TransitionRule struct {
	From          domain.State
	Action        domain.Action
	To            domain.State
	AllowedRoles  []string
	FacultyScoped bool
	Holder        HolderPolicy
	SLADays       int
	Preconditions []Precondition

	// Return marks an explicit send-back edge; backward cycles are legal
	// only through rules carrying this flag.
	Return bool

	// MarksActualStart / MarksCompleted stamp the proposal's actual start
	// and completion dates when the transition lands.
	MarksActualStart bool
	MarksCompleted   bool
}

func (r TransitionRule) Validate() error {
	if strings.TrimSpace(string(r.From)) == "" {
		return errors.New("from state is required")
	}
	if strings.TrimSpace(string(r.Action)) == "" {
		return errors.New("action is required")
	}
	if strings.TrimSpace(string(r.To)) == "" {
		return errors.New("to state is required")
	}
	if len(r.AllowedRoles) == 0 {
		return fmt.Errorf("rule %s/%s: at least one allowed role is required", r.From, r.Action)
	}
	switch r.Holder {
	case HolderFacultyOffice, HolderSchoolOffice, HolderActionCouncil, HolderOwner, HolderInherit, HolderNone:
	default:
		return fmt.Errorf("rule %s/%s: unknown holder policy %q", r.From, r.Action, r.Holder)
	}
	if r.SLADays < 0 {
		return fmt.Errorf("rule %s/%s: sla days must be >= 0", r.From, r.Action)
	}
	for _, p := range r.Preconditions {
		switch p {
		case PrecondCouncilAssigned, PrecondCouncilInPayload:
		default:
			return fmt.Errorf("rule %s/%s: unknown precondition %q", r.From, r.Action, p)
		}
	}
	return nil
}

// AllowsRole reports whether the role may trigger this rule.
func (r TransitionRule) AllowsRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, allowed := range r.AllowedRoles {
		if strings.ToLower(strings.TrimSpace(allowed)) == role {
			return true
		}
	}
	return false
}

type ruleKey struct {
	from   domain.State
	action domain.Action
}

// Graph is the immutable table of legal transitions. Built once at process
// start and consulted read-only afterwards.
type Graph struct {
	initial domain.State
	rules   map[ruleKey]TransitionRule
	states  map[domain.State]bool
}

// NewGraph validates the rule set structurally: exactly one initial state
// with no incoming forward edges, at least one terminal state, and cycles
// only through explicit return rules.
func NewGraph(initial domain.State, ruleList []TransitionRule) (*Graph, error) {
	if strings.TrimSpace(string(initial)) == "" {
		return nil, errors.New("initial state is required")
	}
	if len(ruleList) == 0 {
		return nil, errors.New("at least one transition rule is required")
	}

	g := &Graph{
		initial: initial,
		rules:   make(map[ruleKey]TransitionRule, len(ruleList)),
		states:  map[domain.State]bool{initial: true},
	}
	forward := map[domain.State][]domain.State{}
	for _, rule := range ruleList {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		key := ruleKey{from: rule.From, action: rule.Action}
		if _, dup := g.rules[key]; dup {
			return nil, fmt.Errorf("duplicate rule for %s/%s", rule.From, rule.Action)
		}
		g.rules[key] = rule
		g.states[rule.From] = true
		g.states[rule.To] = true
		if !rule.Return {
			forward[rule.From] = append(forward[rule.From], rule.To)
		}
	}

	for state := range g.states {
		if state == initial {
			continue
		}
		if !g.reachable(forward, initial, state) {
			return nil, fmt.Errorf("state %s is not reachable from %s", state, initial)
		}
	}
	for _, rule := range g.rules {
		if !rule.Return && rule.To == initial {
			return nil, fmt.Errorf("forward rule %s/%s targets the initial state", rule.From, rule.Action)
		}
	}
	if err := detectForwardCycle(forward); err != nil {
		return nil, err
	}
	if len(g.Terminals()) == 0 {
		return nil, errors.New("at least one terminal state is required")
	}
	return g, nil
}

// Lookup resolves the rule for (from, action). The second return value is
// false when no rule is defined.
func (g *Graph) Lookup(from domain.State, action domain.Action) (TransitionRule, bool) {
	rule, ok := g.rules[ruleKey{from: from, action: action}]
	return rule, ok
}

// Initial returns the single initial state.
func (g *Graph) Initial() domain.State {
	return g.initial
}

// IsTerminal reports whether a state has no outgoing rules.
func (g *Graph) IsTerminal(state domain.State) bool {
	for key := range g.rules {
		if key.from == state {
			return false
		}
	}
	return g.states[state]
}

// Terminals lists all states with no outgoing rules.
func (g *Graph) Terminals() []domain.State {
	var out []domain.State
	for state := range g.states {
		if g.IsTerminal(state) {
			out = append(out, state)
		}
	}
	return out
}

// Contains reports whether the state is part of the graph.
func (g *Graph) Contains(state domain.State) bool {
	return g.states[state]
}

// Rules returns a copy of all rules, for linting and replay tooling.
func (g *Graph) Rules() []TransitionRule {
	out := make([]TransitionRule, 0, len(g.rules))
	for _, rule := range g.rules {
		out = append(out, rule)
	}
	return out
}

func (g *Graph) reachable(forward map[domain.State][]domain.State, from, target domain.State) bool {
	if from == target {
		return true
	}
	seen := map[domain.State]bool{}
	queue := []domain.State{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, next := range forward[cur] {
			if next == target {
				return true
			}
			queue = append(queue, next)
		}
	}
	// Return edges also reach states, but only states already reachable
	// forward can be returned to, so forward reachability is sufficient.
	return false
}

func detectForwardCycle(forward map[domain.State][]domain.State) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	colors := map[domain.State]int{}
	var visit func(state domain.State) error
	visit = func(state domain.State) error {
		switch colors[state] {
		case visiting:
			return fmt.Errorf("cycle through %s without a return rule", state)
		case done:
			return nil
		}
		colors[state] = visiting
		for _, next := range forward[state] {
			if err := visit(next); err != nil {
				return err
			}
		}
		colors[state] = done
		return nil
	}
	for state := range forward {
		if err := visit(state); err != nil {
			return err
		}
	}
	return nil
}
