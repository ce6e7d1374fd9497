// Package memory implements the in-memory persistent store used directly in
// tests and embedded by the durable SQLite and Postgres stores.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"spatialcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	runs map[string]domain.RunRecord
}

// Snapshot is the serializable form of the full store state.
type Snapshot struct {
	Runs []domain.RunRecord `json:"runs,omitempty"`
}

func newMemoryState() memoryState {
	return memoryState{runs: make(map[string]domain.RunRecord)}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{Runs: make([]domain.RunRecord, 0, len(state.runs))}
	for _, run := range state.runs {
		s.Runs = append(s.Runs, run.Clone())
	}
	sort.Slice(s.Runs, func(i, j int) bool { return s.Runs[i].ID < s.Runs[j].ID })
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, run := range s.Runs {
		state.runs[run.ID] = run.Clone()
	}
	return state
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for id, run := range s.runs {
		out.runs[id] = run.Clone()
	}
	return out
}

// Store keeps all run records in process memory guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured engine for integration points.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider; tests use it for deterministic stamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// ListRuns returns all run records within the snapshot ordered by ID.
func (v transactionView) ListRuns() []domain.RunRecord {
	out := make([]domain.RunRecord, 0, len(v.state.runs))
	for _, run := range v.state.runs {
		out = append(out, run.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindRun returns the run with the given ID from the snapshot.
func (v transactionView) FindRun(id string) (domain.RunRecord, bool) {
	run, ok := v.state.runs[id]
	if !ok {
		return domain.RunRecord{}, false
	}
	return run.Clone(), true
}

// RunInTransaction clones state, applies fn, evaluates rules, and commits when
// no blocking violation is found.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.Blocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetRun returns the committed run with the given ID.
func (s *Store) GetRun(id string) (domain.RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.state.runs[id]
	if !ok {
		return domain.RunRecord{}, false
	}
	return run.Clone(), true
}

// ListRuns returns all committed runs ordered by ID.
func (s *Store) ListRuns() []domain.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RunRecord, 0, len(s.state.runs))
	for _, run := range s.state.runs {
		out = append(out, run.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// FindRun returns the run with the given ID from the transactional state.
func (tx *transaction) FindRun(id string) (domain.RunRecord, bool) {
	run, ok := tx.state.runs[id]
	if !ok {
		return domain.RunRecord{}, false
	}
	return run.Clone(), true
}

// CreateRun stores a new run record, assigning an ID when absent.
func (tx *transaction) CreateRun(r domain.RunRecord) (domain.RunRecord, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.runs[r.ID]; exists {
		return domain.RunRecord{}, fmt.Errorf("run %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.runs[r.ID] = r.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityRun, Action: domain.ActionCreate, ID: r.ID})
	return r.Clone(), nil
}

// UpdateRun mutates a run record using the provided mutator function.
func (tx *transaction) UpdateRun(id string, mutator func(*domain.RunRecord) error) (domain.RunRecord, error) {
	current, ok := tx.state.runs[id]
	if !ok {
		return domain.RunRecord{}, fmt.Errorf("run %q not found", id)
	}
	if err := mutator(&current); err != nil {
		return domain.RunRecord{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.runs[id] = current.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityRun, Action: domain.ActionUpdate, ID: id})
	return current.Clone(), nil
}

// DeleteRun removes a run record from the transaction state.
func (tx *transaction) DeleteRun(id string) error {
	if _, ok := tx.state.runs[id]; !ok {
		return fmt.Errorf("run %q not found", id)
	}
	delete(tx.state.runs, id)
	tx.recordChange(domain.Change{Entity: domain.EntityRun, Action: domain.ActionDelete, ID: id})
	return nil
}
