package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spatialcore/internal/config"
)

const sampleYAML = `
dataset: ./data/section_a
annotations: ./data/annotations.csv
clusters: ./data/clusters.csv
expert_markers: ./data/expert_markers.csv
columns:
  barcode: spot
  label: region
label_rules:
  chondrocytes: chondrocyte
significance:
  max_adjusted_p: 0.01
  top_per_group: 3
export:
  formats: [json, png]
  prefix: section-a
`

func TestParse(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Dataset != "./data/section_a" {
		t.Fatalf("unexpected dataset: %q", cfg.Dataset)
	}
	if cfg.Columns.Barcode != "spot" || cfg.Columns.Label != "region" {
		t.Fatalf("unexpected columns: %+v", cfg.Columns)
	}
	if cfg.LabelRules["chondrocytes"] != "chondrocyte" {
		t.Fatalf("unexpected label rules: %v", cfg.LabelRules)
	}
	if cfg.Significance.MaxAdjustedP != 0.01 || cfg.Significance.TopPerGroup != 3 {
		t.Fatalf("unexpected significance: %+v", cfg.Significance)
	}
	if len(cfg.Export.Formats) != 2 || cfg.Export.Formats[1] != "png" {
		t.Fatalf("unexpected export: %+v", cfg.Export)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := config.Parse(strings.NewReader("datset: typo\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	missing := cfg
	missing.Clusters = ""
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for missing clusters")
	}

	badFormat := cfg
	badFormat.Export.Formats = []string{"svg"}
	if err := badFormat.Validate(); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SPATIALCORE_DATASET", "/srv/visium/section_b")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dataset != "/srv/visium/section_b" {
		t.Fatalf("env override not applied: %q", cfg.Dataset)
	}
}
