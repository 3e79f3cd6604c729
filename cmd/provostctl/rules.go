package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/provost-labs/provost-go/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with transition rule files",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint <file>",
	Short: "Validate a transition rule file",
	Long: `Load a YAML transition rule file and run the full graph validation:
rule well-formedness, duplicate detection, reachability from the initial
state, forward-cycle rejection, and terminal-state presence.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := rules.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("lint %s: %w", args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), lintSummary(graph))
		return nil
	},
}

func lintSummary(graph *rules.Graph) string {
	terminals := make([]string, 0)
	for _, t := range graph.Terminals() {
		terminals = append(terminals, string(t))
	}
	sort.Strings(terminals)

	var b strings.Builder
	fmt.Fprintf(&b, "rules: %d\n", len(graph.Rules()))
	fmt.Fprintf(&b, "initial state: %s\n", graph.Initial())
	fmt.Fprintf(&b, "terminal states: %s\n", strings.Join(terminals, ", "))
	b.WriteString("OK\n")
	return b.String()
}

func init() {
	rulesCmd.AddCommand(rulesLintCmd)
	rootCmd.AddCommand(rulesCmd)
}
