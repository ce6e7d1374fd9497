package core

import (
	"context"
	"fmt"

	"spatialcore/pkg/domain"
)

// NewDatasetReuseRule returns the rule noting when a run targets a dataset
// that already has a persisted run. Repeat runs are legitimate; the log entry
// keeps the history discoverable.
func NewDatasetReuseRule() domain.Rule {
	return datasetReuseRule{}
}

type datasetReuseRule struct{}

func (datasetReuseRule) Name() string { return "dataset_reuse" }

func (datasetReuseRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRun || change.Action != domain.ActionCreate {
			continue
		}
		run, ok := view.FindRun(change.ID)
		if !ok || run.Dataset == "" {
			continue
		}
		for _, other := range view.ListRuns() {
			if other.ID == run.ID || other.Dataset != run.Dataset {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "dataset_reuse",
				Severity: domain.SeverityLog,
				Entity:   run.ID,
				Message:  fmt.Sprintf("dataset %s already scored by run %s", run.Dataset, other.ID),
			})
			break
		}
	}
	return res, nil
}
