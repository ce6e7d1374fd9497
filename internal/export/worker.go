package export

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"spatialcore/internal/blob"
	"spatialcore/internal/core"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored run artifact.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	out := r
	out.Formats = append([]Format(nil), r.Formats...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

// Input represents an enqueue request for the worker.
type Input struct {
	RunID       string
	Formats     []Format
	Prefix      string // artifact key prefix, defaults to runs/<run id>
	RequestedBy string
	Reason      string
}

// Scheduler queues run export requests and exposes status.
type Scheduler interface {
	Enqueue(ctx context.Context, input Input) (Record, error)
	Get(id string) (Record, bool)
}

// ResultSource resolves completed run results for rendering.
type ResultSource interface {
	RunResult(id string) (core.RunResult, bool)
}

// Worker renders and stores run artifacts asynchronously.
type Worker struct {
	source ResultSource
	store  blob.Store
	runs   core.PersistentStore
	audit  core.AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

const queueCapacity = 32

// NewWorker constructs an export worker. The run store is optional; when set,
// completed exports append their artifact keys to the persisted run record.
func NewWorker(source ResultSource, store blob.Store, runs core.PersistentStore, audit core.AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		runs:   runs,
		audit:  audit,
		queue:  make(chan task, queueCapacity),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("export source not configured")
	}
	if strings.TrimSpace(input.RunID) == "" {
		return Record{}, fmt.Errorf("run id required")
	}
	if _, ok := w.source.RunResult(input.RunID); !ok {
		return Record{}, fmt.Errorf("run %s has no result to export", input.RunID)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV, FormatPNG}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		switch format {
		case FormatJSON, FormatCSV, FormatPNG:
		default:
			return Record{}, fmt.Errorf("unknown export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		RunID:       input.RunID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return Record{}, fmt.Errorf("export queue full")
	}

	w.recordAudit(ctx, record, core.AuditStatusStarted, nil)

	return queuedSnapshot, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	result, ok := w.source.RunResult(t.input.RunID)
	if !ok {
		w.fail(t.id, fmt.Sprintf("run %s result missing", t.input.RunID))
		return
	}

	w.updateStatus(t.id, StatusRunning, "")

	prefix := t.input.Prefix
	if prefix == "" {
		prefix = "runs/" + t.input.RunID
	}
	prefix = strings.TrimSuffix(prefix, "/")

	record, ok := w.Get(t.id)
	if !ok {
		return
	}
	var artifacts []Artifact
	for _, format := range record.Formats {
		rendered, err := w.materialize(format, prefix, result)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		for _, artifact := range rendered {
			stored, err := w.put(artifact)
			if err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifacts = append(artifacts, stored)
		}
	}

	if w.runs != nil {
		keys := make([]string, len(artifacts))
		for i, artifact := range artifacts {
			keys[i] = artifact.Key
		}
		if _, err := w.runs.RunInTransaction(w.ctx, func(tx core.Transaction) error {
			_, err := tx.UpdateRun(t.input.RunID, func(run *core.RunRecord) error {
				run.ArtifactKeys = append(run.ArtifactKeys, keys...)
				return nil
			})
			return err
		}); err != nil {
			w.fail(t.id, fmt.Sprintf("record artifact keys failed: %v", err))
			return
		}
	}

	w.complete(t.id, artifacts)
}

type renderedArtifact struct {
	Artifact Artifact
	Payload  []byte
}

func (w *Worker) materialize(format Format, prefix string, result core.RunResult) ([]renderedArtifact, error) {
	now := time.Now().UTC()
	switch format {
	case FormatJSON:
		payload, err := renderSummaryJSON(result)
		if err != nil {
			return nil, fmt.Errorf("render summary json: %w", err)
		}
		return []renderedArtifact{{
			Artifact: Artifact{Key: prefix + "/summary.json", Format: FormatJSON, ContentType: "application/json", SizeBytes: int64(len(payload)), CreatedAt: now},
			Payload:  payload,
		}}, nil
	case FormatCSV:
		payload, err := renderUnitsCSV(result)
		if err != nil {
			return nil, fmt.Errorf("render units csv: %w", err)
		}
		return []renderedArtifact{{
			Artifact: Artifact{Key: prefix + "/units.csv", Format: FormatCSV, ContentType: "text/csv", SizeBytes: int64(len(payload)), CreatedAt: now},
			Payload:  payload,
		}}, nil
	case FormatPNG:
		payload, err := renderClusterMap(result)
		if err != nil {
			return nil, fmt.Errorf("render cluster map: %w", err)
		}
		out := []renderedArtifact{{
			Artifact: Artifact{Key: prefix + "/cluster_map.png", Format: FormatPNG, ContentType: "image/png", SizeBytes: int64(len(payload)), CreatedAt: now},
			Payload:  payload,
		}}
		if len(result.Markers) > 0 {
			volcano, err := renderVolcano(result)
			if err != nil {
				return nil, fmt.Errorf("render volcano: %w", err)
			}
			out = append(out, renderedArtifact{
				Artifact: Artifact{Key: prefix + "/volcano.png", Format: FormatPNG, ContentType: "image/png", SizeBytes: int64(len(volcano)), CreatedAt: now},
				Payload:  volcano,
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown export format %s", format)
	}
}

// put stores one rendered artifact. Re-exporting a run replaces the stale
// artifact under the same key.
func (w *Worker) put(rendered renderedArtifact) (Artifact, error) {
	artifact := rendered.Artifact
	if w.store == nil {
		return artifact, nil
	}
	opts := blob.PutOptions{ContentType: artifact.ContentType}
	info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(rendered.Payload), opts)
	if errors.Is(err, blob.ErrExists) {
		if _, err = w.store.Delete(w.ctx, artifact.Key); err != nil {
			return Artifact{}, err
		}
		info, err = w.store.Put(w.ctx, artifact.Key, bytes.NewReader(rendered.Payload), opts)
	}
	if err != nil {
		return Artifact{}, err
	}
	if info.Size > 0 {
		artifact.SizeBytes = info.Size
	}
	artifact.URL = info.URL
	return artifact, nil
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var snapshot Record
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		snapshot = record.copy()
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, snapshot, core.AuditStatusStarted, nil)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var snapshot Record
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		snapshot = record.copy()
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, snapshot, core.AuditStatusSucceeded, map[string]any{"artifacts": len(artifacts)})
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var snapshot Record
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		snapshot = record.copy()
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, snapshot, core.AuditStatusFailed, map[string]any{"error": reason})
}

func (w *Worker) recordAudit(ctx context.Context, record Record, status core.AuditStatus, extra map[string]any) {
	if w.audit == nil || record.ID == "" {
		return
	}
	metadata := map[string]any{
		"export_id": record.ID,
		"run_id":    record.RunID,
		"status":    string(record.Status),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	w.audit.Record(ctx, core.AuditEntry{
		Operation:  "artifact_export",
		Actor:      record.RequestedBy,
		Status:     status,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	})
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

var _ Scheduler = (*Worker)(nil)
