package core

import "spatialcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Barcode            = domain.Barcode
	Position           = domain.Position
	Unit               = domain.Unit
	AnnotationSet      = domain.AnnotationSet
	Partition          = domain.Partition
	MarkerRecord       = domain.MarkerRecord
	RunRecord          = domain.RunRecord
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityRun = domain.EntityRun
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine re-exports the domain constructor.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
