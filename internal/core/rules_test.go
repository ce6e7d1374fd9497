package core_test

import (
	"context"
	"errors"
	"testing"

	"spatialcore/internal/core"
	"spatialcore/internal/infra/persistence/memory"
	"spatialcore/pkg/domain"
)

func newStoreWithDefaults() *memory.Store {
	return memory.NewStore(core.NewDefaultRulesEngine())
}

func TestConcordanceRangeRuleBlocksOutOfRangeScore(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithDefaults()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateRun(domain.RunRecord{ID: "r1", Dataset: "d", Units: 10, Labeled: 10, Concordance: 1.5})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if _, ok := store.GetRun("r1"); ok {
		t.Fatalf("blocked run must not persist")
	}
}

func TestAnnotationCoverageRuleWarnsOnSparseLabels(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithDefaults()

	res, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateRun(domain.RunRecord{ID: "r1", Dataset: "d", Units: 100, Labeled: 20, Concordance: 0.5})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	warned := false
	for _, v := range res.Warnings() {
		if v.Rule == "annotation_coverage" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected coverage warning, got %+v", res.Violations)
	}
	if _, ok := store.GetRun("r1"); !ok {
		t.Fatalf("warn severity must not block commit")
	}
}

func TestDatasetReuseRuleLogsRepeatRuns(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithDefaults()

	mustCreate := func(id string) domain.Result {
		t.Helper()
		res, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateRun(domain.RunRecord{ID: id, Dataset: "section_a", Units: 10, Labeled: 10, Concordance: 0.8})
			return err
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		return res
	}

	first := mustCreate("r1")
	for _, v := range first.Violations {
		if v.Rule == "dataset_reuse" {
			t.Fatalf("first run must not log reuse: %+v", v)
		}
	}

	second := mustCreate("r2")
	logged := false
	for _, v := range second.Violations {
		if v.Rule == "dataset_reuse" && v.Severity == core.SeverityLog {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("expected reuse log entry, got %+v", second.Violations)
	}
}
