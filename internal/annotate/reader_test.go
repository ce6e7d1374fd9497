package annotate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spatialcore/internal/annotate"
)

func TestReadAnnotations(t *testing.T) {
	csv := "barcode,label\nAAA-1,chondrocytes\nAAC-1,\nAAG-1,superficial\n"
	rows, err := annotate.ReadAnnotations(strings.NewReader(csv), annotate.ReaderOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Barcode != "AAA-1" || rows[0].RawLabel != "chondrocytes" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].RawLabel != "" {
		t.Fatalf("expected empty label preserved, got %q", rows[1].RawLabel)
	}
}

func TestReadAnnotationsCustomColumns(t *testing.T) {
	csv := "spot,region,extra\nAAA-1,hypertrophic,9\n"
	rows, err := annotate.ReadAnnotations(strings.NewReader(csv), annotate.ReaderOptions{
		BarcodeColumn: "spot",
		LabelColumn:   "region",
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0].RawLabel != "hypertrophic" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReadAnnotationsMissingColumn(t *testing.T) {
	if _, err := annotate.ReadAnnotations(strings.NewReader("barcode\nAAA-1\n"), annotate.ReaderOptions{}); err == nil {
		t.Fatalf("expected error for missing label column")
	}
	if _, err := annotate.ReadAnnotations(strings.NewReader("label\nx\n"), annotate.ReaderOptions{}); err == nil {
		t.Fatalf("expected error for missing barcode column")
	}
}

func TestReadAnnotationsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annotations.csv")
	if err := os.WriteFile(path, []byte("barcode,label\nAAA-1,chondrocyte\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	rows, err := annotate.ReadAnnotationsFile(path, annotate.ReaderOptions{})
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, err := annotate.ReadAnnotationsFile(filepath.Join(dir, "missing.csv"), annotate.ReaderOptions{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
