package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spatialcore/internal/core"
)

func TestExpvarRecorderPreseedsPipelineStages(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	snap := rec.Snapshot()
	for _, stage := range core.PipelineStages() {
		s, ok := snap.Stages[stage]
		if !ok {
			t.Fatalf("stage %s missing from fresh snapshot", stage)
		}
		if s.Completed != 0 || s.Failed != 0 || s.TotalMS != 0 {
			t.Fatalf("stage %s should start zeroed, got %+v", stage, s)
		}
	}

	ctx := context.Background()
	rec.Observe(ctx, core.StageScoreConcordance, true, 20*time.Millisecond)
	rec.Observe(ctx, core.StageScoreConcordance, false, 10*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	s := rec.Snapshot().Stages[core.StageScoreConcordance]
	if s.Completed != 1 || s.Failed != 1 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.TotalMS != 30 || s.LastMS != 10 {
		t.Fatalf("unexpected timings %+v", s)
	}

	rec.Observe(ctx, "artifact_export", true, time.Millisecond)
	if _, ok := rec.Snapshot().Stages["artifact_export"]; !ok {
		t.Fatalf("non-stage operation should appear once observed")
	}
}

func TestJSONTracerTagsDataset(t *testing.T) {
	var buf bytes.Buffer
	tracer := core.NewJSONTracer(&buf)

	ctx := core.WithDataset(context.Background(), "section_a")
	_, span := tracer.Start(ctx, core.StageIngestDataset)
	span.End(nil)

	_, span = tracer.Start(context.Background(), core.StagePersistRun)
	span.End(errors.New("store offline"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Stage != core.StageIngestDataset || entries[0].Dataset != "section_a" || entries[0].Status != "success" {
		t.Fatalf("unexpected first span %+v", entries[0])
	}
	if entries[1].Dataset != "" || entries[1].Status != "error" || entries[1].Error != "store offline" {
		t.Fatalf("unexpected second span %+v", entries[1])
	}
	if !strings.Contains(buf.String(), `"dataset":"section_a"`) {
		t.Fatalf("expected dataset tag in encoded span: %s", buf.String())
	}
}
