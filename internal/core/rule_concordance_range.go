package core

import (
	"context"
	"fmt"
	"math"

	"spatialcore/pkg/domain"
)

// NewConcordanceRangeRule returns the in-transaction rule rejecting run
// records whose concordance score falls outside the ARI range [-1, 1].
func NewConcordanceRangeRule() domain.Rule {
	return concordanceRangeRule{}
}

type concordanceRangeRule struct{}

func (concordanceRangeRule) Name() string { return "concordance_range" }

func (concordanceRangeRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRun || change.Action == domain.ActionDelete {
			continue
		}
		run, ok := view.FindRun(change.ID)
		if !ok {
			continue
		}
		score := run.Concordance
		if math.IsNaN(score) || score < -1 || score > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "concordance_range",
				Severity: domain.SeverityBlock,
				Entity:   run.ID,
				Message:  fmt.Sprintf("run %s concordance %v outside [-1, 1]", run.ID, score),
			})
		}
	}
	return res, nil
}
