package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/provost-labs/provost-go/internal/repo"
)

// TxRunner executes a function inside one database transaction. The stores
// passed to fn are bound to that transaction, so a row lock taken by
// GetForUpdate holds until commit or rollback.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	if db == nil {
		return nil
	}
	return &TxRunner{db: db}
}

func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context, s repo.Stores) error) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("tx runner not initialized")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, txStores{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txStores struct {
	tx *sql.Tx
}

func (s txStores) Proposals() repo.ProposalRepository {
	return NewProposalStore(s.tx)
}

func (s txStores) WorkflowLog() repo.WorkflowLogStore {
	return NewWorkflowLogStore(s.tx)
}
