package domain

import (
	"context"
	"fmt"
	"strings"
)

// Violation describes a single rule finding attached to a run or unit.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Entity   string   `json:"entity,omitempty"`
	Message  string   `json:"message"`
}

// Result aggregates violations produced by rule evaluation.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends the violations of other into the result.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// Blocking reports whether any violation carries block severity.
func (r Result) Blocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the subset of violations with warn severity.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations abort a transaction.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	parts := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", v.Rule, v.Message))
	}
	return "rule violations: " + strings.Join(parts, "; ")
}

// RuleView provides read-only access to persisted runs for rule evaluation.
type RuleView interface {
	ListRuns() []RunRecord
	FindRun(id string) (RunRecord, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in registration order.
func (e *RulesEngine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
