package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// MetricsRecorder aggregates operation timings and outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type datasetContextKey struct{}

// WithDataset tags the context with the dataset under analysis so exporters
// can attribute stage observations to it.
func WithDataset(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, datasetContextKey{}, name)
}

// DatasetFromContext returns the dataset name set by WithDataset, if any.
func DatasetFromContext(ctx context.Context) string {
	name, _ := ctx.Value(datasetContextKey{}).(string)
	return name
}

// Tracer opens spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a single traced operation.
type TraceSpan interface {
	End(err error)
}

// AuditStatus describes the outcome recorded in an audit entry.
type AuditStatus string

const (
	AuditStatusStarted   AuditStatus = "started"
	AuditStatusSucceeded AuditStatus = "succeeded"
	AuditStatusFailed    AuditStatus = "failed"
)

// AuditEntry captures one audited service operation.
type AuditEntry struct {
	ID         string         `json:"id"`
	Operation  string         `json:"operation"`
	Actor      string         `json:"actor,omitempty"`
	Status     AuditStatus    `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AuditLogger records audit entries for pipeline and export operations.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MemoryAuditLog retains audit entries in process memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLog constructs an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

// Record appends the entry, stamping ID and time when absent.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of all recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
