package annotate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"spatialcore/pkg/domain"
)

// ReaderOptions configures annotation CSV parsing.
type ReaderOptions struct {
	BarcodeColumn string // default "barcode"
	LabelColumn   string // default "label"
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.BarcodeColumn == "" {
		o.BarcodeColumn = "barcode"
	}
	if o.LabelColumn == "" {
		o.LabelColumn = "label"
	}
	return o
}

// ReadAnnotations parses an expert annotation CSV from r. The first record is
// a header naming at least the barcode and label columns; label cells may be
// empty, which marks the unit unlabeled.
func ReadAnnotations(r io.Reader, opts ReaderOptions) ([]Annotation, error) {
	opts = opts.withDefaults()
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read annotation header: %w", err)
	}
	barcodeIdx, labelIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case opts.BarcodeColumn:
			barcodeIdx = i
		case opts.LabelColumn:
			labelIdx = i
		}
	}
	if barcodeIdx < 0 {
		return nil, fmt.Errorf("annotation header missing column %q", opts.BarcodeColumn)
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("annotation header missing column %q", opts.LabelColumn)
	}

	var rows []Annotation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read annotation row: %w", err)
		}
		if barcodeIdx >= len(record) || labelIdx >= len(record) {
			return nil, fmt.Errorf("annotation row %d is short", len(rows)+2)
		}
		rows = append(rows, Annotation{
			Barcode:  domain.Barcode(strings.TrimSpace(record[barcodeIdx])),
			RawLabel: strings.TrimSpace(record[labelIdx]),
		})
	}
	return rows, nil
}

// ReadAnnotationsFile opens path and parses it via ReadAnnotations, releasing
// the file handle on all exit paths.
func ReadAnnotationsFile(path string, opts ReaderOptions) ([]Annotation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadAnnotations(file, opts)
}
