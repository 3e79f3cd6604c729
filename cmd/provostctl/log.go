package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/provost-labs/provost-go/internal/platform/env"
	"github.com/provost-labs/provost-go/internal/platform/postgres"
	pgrepo "github.com/provost-labs/provost-go/internal/repo/postgres"
	"github.com/provost-labs/provost-go/internal/rules"
)

var logCmd = &cobra.Command{
	Use:   "log <proposal-id>",
	Short: "Print the workflow log of a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		entries, err := pgrepo.NewWorkflowLogStore(db).ListByProposal(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list workflow log: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no workflow log entries")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "OCCURRED AT", "ACTION", "FROM", "TO", "ACTOR", "ROLE", "COMMENT"})
		for _, entry := range entries {
			t.AppendRow(table.Row{
				entry.ID,
				entry.OccurredAt.Format(time.RFC3339),
				entry.Action,
				entry.FromState,
				entry.ToState,
				entry.ActorID,
				entry.ActorRole,
				entry.Comment,
			})
		}
		t.Render()
		return nil
	},
}

var logVerifyCmd = &cobra.Command{
	Use:   "verify <proposal-id>",
	Short: "Replay the workflow log and check it reconstructs the stored state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		graph, err := rules.LoadFile(env.String("WORKFLOW_RULES_FILE", ""))
		if err != nil {
			return fmt.Errorf("load transition rules: %w", err)
		}

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		proposal, err := pgrepo.NewProposalStore(db).Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load proposal: %w", err)
		}
		entries, err := pgrepo.NewWorkflowLogStore(db).ListByProposal(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list workflow log: %w", err)
		}

		if err := verifyReplay(graph, proposal, entries); err != nil {
			return fmt.Errorf("verify %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries replay to %s\n", len(entries), proposal.State)
		return nil
	},
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return db, nil
}

func init() {
	logCmd.AddCommand(logVerifyCmd)
	rootCmd.AddCommand(logCmd)
}
