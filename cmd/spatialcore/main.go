// Command spatialcore runs the full annotation reconciliation pipeline for
// one configured section: ingest, canonicalize, score, summarize, export,
// persist. It prints the concordance score and the ranked marker summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"spatialcore/internal/annotate"
	"spatialcore/internal/blob"
	"spatialcore/internal/config"
	"spatialcore/internal/core"
	"spatialcore/internal/export"
	"spatialcore/internal/markers"
)

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("spatialcore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		skipExport bool
		actor      string
	)
	fs.StringVar(&configPath, "config", "run.yaml", "path to run configuration yaml")
	fs.BoolVar(&skipExport, "no-export", false, "skip artifact rendering and upload")
	fs.StringVar(&actor, "actor", "", "actor recorded in the audit trail")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(configPath, skipExport, actor, stdout); err != nil {
		fmt.Fprintf(stderr, "run failed: %v\n", err)
		return 1
	}
	return 0
}

func run(configPath string, skipExport bool, actor string, stdout io.Writer) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	table := annotate.DefaultRuleTable()
	if len(cfg.LabelRules) > 0 {
		table, err = table.MergeRules(cfg.LabelRules)
		if err != nil {
			return fmt.Errorf("label rules: %w", err)
		}
	}
	vocab := annotate.DefaultVocabulary()
	if len(cfg.Vocabulary) > 0 {
		vocab = annotate.NewVocabulary(cfg.Vocabulary...)
	}
	thresholds := markers.Thresholds{
		MaxAdjustedP:     cfg.Significance.MaxAdjustedP,
		MinAbsFoldChange: cfg.Significance.MinAbsFoldChange,
		TopPerGroup:      cfg.Significance.TopPerGroup,
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	audit := core.NewMemoryAuditLog()
	svc := core.NewService(store,
		core.WithRuleTable(table),
		core.WithVocabulary(vocab),
		core.WithThresholds(thresholds),
		core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")),
		core.WithAuditLogger(audit),
	)

	markerPath := cfg.ExpertMarkers
	if markerPath == "" {
		markerPath = cfg.ClusterMarkers
	}
	result, err := svc.Run(ctx, core.RunInput{
		DatasetDir:  cfg.Dataset,
		Annotations: cfg.Annotations,
		Clusters:    cfg.Clusters,
		Markers:     markerPath,
		Columns: annotate.ReaderOptions{
			BarcodeColumn: cfg.Columns.Barcode,
			LabelColumn:   cfg.Columns.Label,
		},
		Actor: actor,
	})
	if err != nil {
		return err
	}

	printRun(stdout, result)

	if skipExport {
		return nil
	}
	return exportArtifacts(ctx, cfg, svc, store, audit, result, stdout)
}

func printRun(stdout io.Writer, result core.RunResult) {
	record := result.Record
	fmt.Fprintf(stdout, "run %s dataset %s\n", record.ID, record.Dataset)
	fmt.Fprintf(stdout, "units %d labeled %d\n", record.Units, record.Labeled)
	fmt.Fprintf(stdout, "adjusted rand index %.4f\n", record.Concordance)
	for _, warning := range record.Warnings {
		fmt.Fprintf(stdout, "warning [%s] %s\n", warning.Rule, warning.Message)
	}
	for _, summary := range result.Summaries {
		fmt.Fprintf(stdout, "markers %s:\n", summary.Group)
		for rank, record := range summary.Records {
			fmt.Fprintf(stdout, "  %d. %s log2FC=%.2f padj=%.3g\n", rank+1, record.Feature, record.Log2FoldChange, record.AdjustedP)
		}
	}
}

func exportArtifacts(ctx context.Context, cfg config.Config, svc *core.Service, store core.PersistentStore, audit core.AuditLogger, result core.RunResult, stdout io.Writer) error {
	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	worker := export.NewWorker(svc, blobStore, store, audit)
	worker.Start()
	defer func() { _ = worker.Stop(ctx) }()

	formats := make([]export.Format, 0, len(cfg.Export.Formats))
	for _, format := range cfg.Export.Formats {
		formats = append(formats, export.Format(format))
	}
	queued, err := worker.Enqueue(ctx, export.Input{
		RunID:   result.Record.ID,
		Formats: formats,
		Prefix:  cfg.Export.Prefix,
	})
	if err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}

	record, err := waitForExport(ctx, worker, queued.ID)
	if err != nil {
		return err
	}
	for _, artifact := range record.Artifacts {
		line := fmt.Sprintf("artifact %s (%d bytes)", artifact.Key, artifact.SizeBytes)
		if url, err := blobStore.PresignURL(ctx, artifact.Key, blob.SignedURLOptions{}); err == nil && url != "" {
			line += " " + url
		} else if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			return fmt.Errorf("sign artifact url: %w", err)
		}
		fmt.Fprintln(stdout, line)
	}

	prefix := cfg.Export.Prefix
	if prefix == "" {
		prefix = "runs/" + result.Record.ID
	}
	stored, err := blobStore.List(ctx, strings.TrimSuffix(prefix, "/")+"/")
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	fmt.Fprintf(stdout, "stored %d artifacts under %s/\n", len(stored), strings.TrimSuffix(prefix, "/"))
	return nil
}

func waitForExport(ctx context.Context, worker *export.Worker, id string) (export.Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(time.Minute)
	for {
		select {
		case <-ctx.Done():
			return export.Record{}, ctx.Err()
		case <-timeout:
			return export.Record{}, fmt.Errorf("export %s timed out", id)
		case <-ticker.C:
			record, ok := worker.Get(id)
			if !ok {
				return export.Record{}, fmt.Errorf("export %s missing", id)
			}
			switch record.Status {
			case export.StatusSucceeded:
				return record, nil
			case export.StatusFailed:
				return export.Record{}, fmt.Errorf("export failed: %s", record.Error)
			}
		}
	}
}
