package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateRun(RunRecord) (RunRecord, error)
	UpdateRun(id string, mutator func(*RunRecord) error) (RunRecord, error)
	DeleteRun(id string) error
	FindRun(id string) (RunRecord, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListRuns() []RunRecord
	FindRun(id string) (RunRecord, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetRun(id string) (RunRecord, bool)
	ListRuns() []RunRecord
}
