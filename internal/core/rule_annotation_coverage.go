package core

import (
	"context"
	"fmt"

	"spatialcore/pkg/domain"
)

// NewAnnotationCoverageRule returns the rule warning when fewer than half of
// a run's units carry an expert label. Low coverage makes the concordance
// score unrepresentative of the section.
func NewAnnotationCoverageRule() domain.Rule {
	return annotationCoverageRule{}
}

type annotationCoverageRule struct{}

func (annotationCoverageRule) Name() string { return "annotation_coverage" }

func (annotationCoverageRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRun || change.Action == domain.ActionDelete {
			continue
		}
		run, ok := view.FindRun(change.ID)
		if !ok || run.Units == 0 {
			continue
		}
		if run.Labeled*2 < run.Units {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "annotation_coverage",
				Severity: domain.SeverityWarn,
				Entity:   run.ID,
				Message:  fmt.Sprintf("run %s labels only %d of %d units", run.ID, run.Labeled, run.Units),
			})
		}
	}
	return res, nil
}
