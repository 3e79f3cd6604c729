package rules

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/provost-labs/provost-go/internal/domain"
)

type fileSpec struct {
	Initial     string     `yaml:"initial"`
	Transitions []ruleSpec `yaml:"transitions"`
}

type ruleSpec struct {
	From             string   `yaml:"from"`
	Action           string   `yaml:"action"`
	To               string   `yaml:"to"`
	Roles            []string `yaml:"roles"`
	FacultyScoped    bool     `yaml:"faculty_scoped"`
	Holder           string   `yaml:"holder"`
	SLADays          int      `yaml:"sla_days"`
	Preconditions    []string `yaml:"preconditions"`
	Return           bool     `yaml:"return"`
	MarksActualStart bool     `yaml:"marks_actual_start"`
	MarksCompleted   bool     `yaml:"marks_completed"`
}

// Load parses a YAML rule file and builds a validated graph.
func Load(r io.Reader) (*Graph, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	ruleList := make([]TransitionRule, 0, len(spec.Transitions))
	for _, rs := range spec.Transitions {
		rule := TransitionRule{
			From:             domain.State(rs.From),
			Action:           domain.Action(rs.Action),
			To:               domain.State(rs.To),
			AllowedRoles:     rs.Roles,
			FacultyScoped:    rs.FacultyScoped,
			Holder:           HolderPolicy(rs.Holder),
			SLADays:          rs.SLADays,
			Return:           rs.Return,
			MarksActualStart: rs.MarksActualStart,
			MarksCompleted:   rs.MarksCompleted,
		}
		if rule.Holder == "" {
			rule.Holder = HolderInherit
		}
		for _, p := range rs.Preconditions {
			rule.Preconditions = append(rule.Preconditions, Precondition(p))
		}
		ruleList = append(ruleList, rule)
	}
	return NewGraph(domain.State(spec.Initial), ruleList)
}

// LoadFile builds a graph from a YAML rule file on disk. An empty path
// returns the built-in default graph.
func LoadFile(path string) (*Graph, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}
