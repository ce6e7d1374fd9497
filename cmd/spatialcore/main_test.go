package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeRunFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	datasetDir := filepath.Join(dir, "section_a")
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(datasetDir, "barcodes.tsv"), "BC1\nBC2\nBC3\nBC4\n")
	writeFile(t, filepath.Join(datasetDir, "tissue_positions.csv"),
		"barcode,in_tissue,array_row,array_col,pxl_row,pxl_col\n"+
			"BC1,1,0,0,10,20\nBC2,1,0,1,10,30\nBC3,1,1,0,20,20\nBC4,1,1,1,20,30\n")
	writeFile(t, filepath.Join(dir, "annotations.csv"),
		"barcode,label\nBC1,chondrocyte\nBC2,chondrocyte\nBC3,hypertrophic\nBC4,hypertrophic\n")
	writeFile(t, filepath.Join(dir, "clusters.csv"),
		"Barcode,Cluster\nBC1,c1\nBC2,c1\nBC3,c2\nBC4,c2\n")
	writeFile(t, filepath.Join(dir, "markers.csv"),
		"gene,cluster,avg_log2FC,p_val_adj\nCol2a1,chondrocyte,2.0,0.000001\n")

	configPath := filepath.Join(dir, "run.yaml")
	writeFile(t, configPath,
		"dataset: "+datasetDir+"\n"+
			"annotations: "+filepath.Join(dir, "annotations.csv")+"\n"+
			"clusters: "+filepath.Join(dir, "clusters.csv")+"\n"+
			"expert_markers: "+filepath.Join(dir, "markers.csv")+"\n")
	return configPath
}

func TestCLIRunsPipeline(t *testing.T) {
	t.Setenv("SPATIALCORE_STORAGE_DRIVER", "memory")
	t.Setenv("SPATIALCORE_BLOB_DRIVER", "memory")
	configPath := writeRunFixture(t)

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-config", configPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("cli exit %d: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "adjusted rand index 1.0000") {
		t.Fatalf("expected perfect concordance in output:\n%s", out)
	}
	if !strings.Contains(out, "markers chondrocyte:") || !strings.Contains(out, "Col2a1") {
		t.Fatalf("expected marker summary in output:\n%s", out)
	}
	if !strings.Contains(out, "artifact ") {
		t.Fatalf("expected exported artifacts in output:\n%s", out)
	}
	if !strings.Contains(out, "stored 4 artifacts under runs/") {
		t.Fatalf("expected stored-artifact listing in output:\n%s", out)
	}
}

func TestCLISkipsExport(t *testing.T) {
	t.Setenv("SPATIALCORE_STORAGE_DRIVER", "memory")
	configPath := writeRunFixture(t)

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-config", configPath, "-no-export"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("cli exit %d: %s", code, stderr.String())
	}
	if strings.Contains(stdout.String(), "artifact ") {
		t.Fatalf("expected no artifacts:\n%s", stdout.String())
	}
}

func TestCLIMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "run failed") {
		t.Fatalf("expected failure message, got %q", stderr.String())
	}
}

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-definitely-not-a-flag"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for flag error, got %d", code)
	}
}
