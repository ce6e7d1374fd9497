package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spatialcore/internal/annotate"
	"spatialcore/internal/concordance"
	"spatialcore/internal/ingest"
	"spatialcore/internal/markers"
)

// Pipeline stage names, in execution order. Metrics and trace spans are
// keyed by these.
const (
	StageIngestDataset     = "ingest_dataset"
	StageIngestAnnotations = "ingest_annotations"
	StageReconcileLabels   = "reconcile_labels"
	StageAssignClusters    = "assign_clusters"
	StageScoreConcordance  = "score_concordance"
	StageSummarizeMarkers  = "summarize_markers"
	StagePersistRun        = "persist_run"
)

// PipelineStages returns the stage names in execution order.
func PipelineStages() []string {
	return []string{
		StageIngestDataset,
		StageIngestAnnotations,
		StageReconcileLabels,
		StageAssignClusters,
		StageScoreConcordance,
		StageSummarizeMarkers,
		StagePersistRun,
	}
}

// Service orchestrates a full reconciliation run: ingest, canonicalize, join,
// filter, score, summarize, persist. The active partitions are passed
// explicitly between stages; the service holds no grouping state of its own.
type Service struct {
	store      PersistentStore
	table      annotate.RuleTable
	vocab      annotate.Vocabulary
	thresholds markers.Thresholds
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditLogger

	mu      sync.RWMutex
	results map[string]RunResult
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithAuditLogger attaches an audit logger to the service.
func WithAuditLogger(audit AuditLogger) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

// WithRuleTable overrides the default label canonicalization rule table.
func WithRuleTable(table annotate.RuleTable) ServiceOption {
	return func(s *Service) { s.table = table }
}

// WithVocabulary overrides the default canonical label vocabulary.
func WithVocabulary(vocab annotate.Vocabulary) ServiceOption {
	return func(s *Service) { s.vocab = vocab }
}

// WithThresholds overrides the default marker significance thresholds.
func WithThresholds(t markers.Thresholds) ServiceOption {
	return func(s *Service) { s.thresholds = t }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		table:      annotate.DefaultRuleTable(),
		vocab:      annotate.DefaultVocabulary(),
		thresholds: markers.DefaultThresholds(),
		results:    make(map[string]RunResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// RunInput names the file inputs for one pipeline run.
type RunInput struct {
	DatasetDir  string
	Annotations string
	Clusters    string
	Markers     string // optional differential marker CSV
	Columns     annotate.ReaderOptions
	Actor       string
}

// RunResult bundles everything a completed run produced.
type RunResult struct {
	Record    RunRecord
	Units     []Unit
	Expert    Partition
	Clusters  Partition
	Summaries []markers.Summary
	Markers   []MarkerRecord
	Result    Result
}

// Run executes the full pipeline and persists the outcome.
func (s *Service) Run(ctx context.Context, input RunInput) (RunResult, error) {
	result, err := s.run(ctx, input)
	if s.audit != nil {
		status := AuditStatusSucceeded
		metadata := map[string]any{"dataset": result.Record.Dataset}
		if err != nil {
			status = AuditStatusFailed
			metadata["error"] = err.Error()
		} else {
			metadata["run_id"] = result.Record.ID
			metadata["concordance"] = result.Record.Concordance
		}
		s.audit.Record(ctx, AuditEntry{
			Operation:  "pipeline_run",
			Actor:      input.Actor,
			Status:     status,
			Metadata:   metadata,
			OccurredAt: time.Now().UTC(),
		})
	}
	return result, err
}

func (s *Service) run(ctx context.Context, input RunInput) (RunResult, error) {
	dataset := ingest.Dataset{Dir: input.DatasetDir}
	ctx = WithDataset(ctx, dataset.Name())

	var set AnnotationSet
	if err := s.observe(ctx, StageIngestDataset, func(context.Context) error {
		var err error
		set, err = dataset.Load()
		return err
	}); err != nil {
		return RunResult{Record: RunRecord{Dataset: dataset.Name()}}, fmt.Errorf("ingest dataset: %w", err)
	}

	var rows []annotate.Annotation
	if err := s.observe(ctx, StageIngestAnnotations, func(context.Context) error {
		var err error
		rows, err = annotate.ReadAnnotationsFile(input.Annotations, input.Columns)
		return err
	}); err != nil {
		return RunResult{Record: RunRecord{Dataset: dataset.Name()}}, fmt.Errorf("ingest annotations: %w", err)
	}

	var violations []Violation
	if err := s.observe(ctx, StageReconcileLabels, func(context.Context) error {
		joined, err := annotate.Join(set, rows)
		if err != nil {
			return err
		}
		set, violations = annotate.CanonicalizeUnits(joined, s.table, s.vocab)
		return nil
	}); err != nil {
		return RunResult{Record: RunRecord{Dataset: dataset.Name()}}, fmt.Errorf("reconcile labels: %w", err)
	}

	working := annotate.FilterLabeled(set)

	if err := s.observe(ctx, StageAssignClusters, func(context.Context) error {
		assignments, err := ingest.ClusterFile{Path: input.Clusters}.Assignments()
		if err != nil {
			return err
		}
		working, err = ingest.AssignClusters(working, assignments)
		return err
	}); err != nil {
		return RunResult{Record: RunRecord{Dataset: dataset.Name()}}, fmt.Errorf("assign clusters: %w", err)
	}

	expert := working.LabelPartition("expert")
	auto := working.ClusterPartition("clusters")

	var score float64
	if err := s.observe(ctx, StageScoreConcordance, func(context.Context) error {
		var err error
		score, err = concordance.AdjustedRandIndex(expert, auto)
		return err
	}); err != nil {
		return RunResult{Record: RunRecord{Dataset: dataset.Name()}}, fmt.Errorf("score concordance: %w", err)
	}

	var summaries []markers.Summary
	var flagged []MarkerRecord
	if input.Markers != "" {
		if err := s.observe(ctx, StageSummarizeMarkers, func(context.Context) error {
			records, err := ingest.MarkerFile{Path: input.Markers}.Markers()
			if err != nil {
				return err
			}
			flagged = markers.Flag(records, s.thresholds)
			summaries = markers.Summarize(records, s.thresholds)
			return nil
		}); err != nil {
			return RunResult{Record: RunRecord{Dataset: dataset.Name()}}, fmt.Errorf("summarize markers: %w", err)
		}
	}

	record := RunRecord{
		Dataset:       dataset.Name(),
		Units:         set.Len(),
		Labeled:       working.Len(),
		Concordance:   score,
		ExpertGroups:  expert.Categories(),
		ClusterGroups: auto.Categories(),
		Warnings:      violations,
	}

	var ruleResult Result
	if err := s.observe(ctx, StagePersistRun, func(opCtx context.Context) error {
		res, err := s.store.RunInTransaction(opCtx, func(tx Transaction) error {
			created, err := tx.CreateRun(record)
			if err != nil {
				return err
			}
			record = created
			return nil
		})
		ruleResult = res
		return err
	}); err != nil {
		return RunResult{Record: record}, fmt.Errorf("persist run: %w", err)
	}

	result := RunResult{
		Record:    record,
		Units:     working.Clone().Units,
		Expert:    expert,
		Clusters:  auto,
		Summaries: summaries,
		Markers:   flagged,
		Result:    ruleResult,
	}
	s.mu.Lock()
	s.results[record.ID] = result
	s.mu.Unlock()
	return result, nil
}

// observe wraps one pipeline stage with metrics and tracing.
func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	opCtx := ctx
	var span TraceSpan
	if s.tracer != nil {
		opCtx, span = s.tracer.Start(ctx, operation)
	}
	start := time.Now()
	err := fn(opCtx)
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	if span != nil {
		span.End(err)
	}
	return err
}

// GetRun returns the persisted run record with the given ID.
func (s *Service) GetRun(id string) (RunRecord, bool) {
	return s.store.GetRun(id)
}

// ListRuns returns all persisted run records.
func (s *Service) ListRuns() []RunRecord {
	return s.store.ListRuns()
}

// DeleteRun removes a persisted run and its cached result.
func (s *Service) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteRun(id)
	}); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.results, id)
	s.mu.Unlock()
	return nil
}

// RunResult returns the in-memory result bundle for a completed run. Export
// rendering needs the unit and marker detail that the persisted record drops.
func (s *Service) RunResult(id string) (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	return result, ok
}
