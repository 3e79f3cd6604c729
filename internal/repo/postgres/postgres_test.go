package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
)

func TestConstructorsRejectNilDB(t *testing.T) {
	if NewProposalStore(nil) != nil {
		t.Fatal("expected nil proposal store")
	}
	if NewWorkflowLogStore(nil) != nil {
		t.Fatal("expected nil workflow log store")
	}
	if NewIdempotencyStore(nil) != nil {
		t.Fatal("expected nil idempotency store")
	}
	if NewUnitDirectory(nil) != nil {
		t.Fatal("expected nil unit directory")
	}
	if NewTxRunner(nil) != nil {
		t.Fatal("expected nil tx runner")
	}
}

func TestUninitializedStoresReturnErrors(t *testing.T) {
	ctx := context.Background()
	var proposals *ProposalStore
	if _, err := proposals.Get(ctx, "prop-1"); err == nil {
		t.Fatal("expected error from uninitialized proposal store")
	}
	var logStore *WorkflowLogStore
	if _, err := logStore.ListByProposal(ctx, "prop-1"); err == nil {
		t.Fatal("expected error from uninitialized workflow log store")
	}
	var idem *IdempotencyStore
	if _, err := idem.Get(ctx, "key", "SUBMIT", "user-1"); err == nil {
		t.Fatal("expected error from uninitialized idempotency store")
	}
	var dir *UnitDirectory
	if _, err := dir.SchoolOffice(ctx); err == nil {
		t.Fatal("expected error from uninitialized unit directory")
	}
}

func TestComputeIntegritySHA256Deterministic(t *testing.T) {
	entry := domain.WorkflowLogEntry{
		ProposalID: "prop-1",
		Action:     domain.ActionSubmit,
		FromState:  domain.StateDraft,
		ToState:    domain.StateFacultyReview,
		ActorID:    "user-owner",
		ActorRole:  domain.RoleOwner,
		OccurredAt: time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
		Comment:    "initial submission",
		RequestID:  "req-1",
	}

	first, err := computeIntegritySHA256(entry)
	if err != nil {
		t.Fatalf("compute integrity: %v", err)
	}
	second, err := computeIntegritySHA256(entry)
	if err != nil {
		t.Fatalf("compute integrity: %v", err)
	}
	if first != second {
		t.Fatalf("integrity hash not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}

	entry.Comment = "amended"
	changed, err := computeIntegritySHA256(entry)
	if err != nil {
		t.Fatalf("compute integrity: %v", err)
	}
	if changed == first {
		t.Fatal("expected hash to change when entry content changes")
	}
}

func TestNullHelpers(t *testing.T) {
	if nullIfEmpty("  ").Valid {
		t.Fatal("blank string should map to NULL")
	}
	if v := nullIfEmpty(" x "); !v.Valid || v.String != "x" {
		t.Fatalf("unexpected null string: %+v", v)
	}
	if nullString(nil).Valid {
		t.Fatal("nil pointer should map to NULL")
	}
	if nullTime(nil).Valid {
		t.Fatal("nil time should map to NULL")
	}
	now := time.Now()
	if got := nullTime(&now); !got.Valid || !got.Time.Equal(now.UTC()) {
		t.Fatalf("unexpected null time: %+v", got)
	}
}
