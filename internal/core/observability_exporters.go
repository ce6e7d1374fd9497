package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// StageSnapshot aggregates the outcomes observed for one pipeline stage.
type StageSnapshot struct {
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	TotalMS   float64 `json:"duration_ms_total"`
	LastMS    float64 `json:"last_duration_ms"`
}

// PipelineMetricsSnapshot is the expvar-published view of pipeline metrics.
// Every stage from PipelineStages is always present, zero-valued until
// observed, so dashboards see the full pipeline shape from the first scrape.
// Non-stage operations (exports, deletions) appear once observed.
type PipelineMetricsSnapshot struct {
	Stages     map[string]StageSnapshot `json:"stages"`
	RecordedAt time.Time                `json:"recorded_at"`
}

// ExpvarMetricsRecorder publishes per-stage pipeline timings and outcome
// counters via expvar, for deployments that prefer process-local metrics
// over a scrape endpoint.
type ExpvarMetricsRecorder struct {
	name   string
	mu     sync.Mutex
	stages map[string]*StageSnapshot
}

// NewExpvarMetricsRecorder constructs a recorder pre-seeded with the pipeline
// stages and publishes it under the supplied name. When name is empty, a
// unique identifier is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("pipeline_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:   name,
		stages: make(map[string]*StageSnapshot, len(PipelineStages())),
	}
	for _, stage := range PipelineStages() {
		rec.stages[stage] = &StageSnapshot{}
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated stage metrics.
func (r *ExpvarMetricsRecorder) Snapshot() PipelineMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	stages := make(map[string]StageSnapshot, len(r.stages))
	for stage, snap := range r.stages {
		stages[stage] = *snap
	}
	return PipelineMetricsSnapshot{
		Stages:     stages,
		RecordedAt: time.Now().UTC(),
	}
}

// Observe records one stage outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	snap, ok := r.stages[operation]
	if !ok {
		snap = &StageSnapshot{}
		r.stages[operation] = snap
	}
	if success {
		snap.Completed++
	} else {
		snap.Failed++
	}
	snap.TotalMS += ms
	snap.LastMS = ms
	r.mu.Unlock()
}

// JSONTraceEntry is one serialized stage span. Dataset carries the section
// under analysis when the span context was tagged via WithDataset.
type JSONTraceEntry struct {
	Stage      string    `json:"stage"`
	Dataset    string    `json:"dataset,omitempty"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes stage spans to a writer and retains them for
// inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to the
// writer. The tracer retains all encoded spans for later inspection via
// Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{
		enc: enc,
	}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface, capturing the dataset tag from ctx.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:  t,
		stage:   operation,
		dataset: DatasetFromContext(ctx),
		started: time.Now().UTC(),
	}
	return ctx, span
}

type jsonTraceSpan struct {
	tracer  *JSONTraceTracer
	stage   string
	dataset string
	started time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Stage:      s.stage,
		Dataset:    s.dataset,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
