// Package ingest loads the tabular inputs of an analysis run: the spatial
// dataset's barcodes and spot positions, automated cluster assignments, and
// differential expression test tables. All readers release their file
// handles on every exit path and fail fast on malformed input.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"spatialcore/pkg/domain"
)

// Well-known file names inside a Visium-style dataset directory.
const (
	BarcodesFile  = "barcodes.tsv"
	PositionsFile = "tissue_positions.csv"
)

// ReadBarcodes parses one barcode per line; the file defines unit order.
func ReadBarcodes(r io.Reader) ([]domain.Barcode, error) {
	scanner := bufio.NewScanner(r)
	var out []domain.Barcode
	seen := make(map[domain.Barcode]struct{})
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		barcode := domain.Barcode(line)
		if _, dup := seen[barcode]; dup {
			return nil, fmt.Errorf("duplicate barcode %s", barcode)
		}
		seen[barcode] = struct{}{}
		out = append(out, barcode)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan barcodes: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("barcode list is empty")
	}
	return out, nil
}

// ReadPositions parses the spot position table. Both the headered
// tissue_positions.csv layout and the legacy headerless
// tissue_positions_list.csv layout are accepted; columns are
// barcode, in_tissue, array_row, array_col, pxl_row, pxl_col.
func ReadPositions(r io.Reader) (map[domain.Barcode]domain.Position, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6
	out := make(map[domain.Barcode]domain.Position)
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read position row: %w", err)
		}
		if first {
			first = false
			if record[0] == "barcode" {
				continue
			}
		}
		barcode := domain.Barcode(strings.TrimSpace(record[0]))
		if _, dup := out[barcode]; dup {
			return nil, fmt.Errorf("duplicate position barcode %s", barcode)
		}
		inTissue, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("position in_tissue for %s: %w", barcode, err)
		}
		row, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("position array_row for %s: %w", barcode, err)
		}
		col, err := strconv.Atoi(strings.TrimSpace(record[3]))
		if err != nil {
			return nil, fmt.Errorf("position array_col for %s: %w", barcode, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
		if err != nil {
			return nil, fmt.Errorf("position pxl_row for %s: %w", barcode, err)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
		if err != nil {
			return nil, fmt.Errorf("position pxl_col for %s: %w", barcode, err)
		}
		out[barcode] = domain.Position{InTissue: inTissue != 0, Row: row, Col: col, X: x, Y: y}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("position table is empty")
	}
	return out, nil
}

// Dataset is a file-backed spatial dataset provider rooted at a Visium-style
// directory containing BarcodesFile and PositionsFile.
type Dataset struct {
	Dir string
}

// Name returns the dataset identifier derived from the directory name.
func (d Dataset) Name() string {
	return filepath.Base(filepath.Clean(d.Dir))
}

// Load reads barcodes and positions and assembles the ordered unit set.
// Every barcode must have a position row.
func (d Dataset) Load() (domain.AnnotationSet, error) {
	barcodes, err := readFileWith(filepath.Join(d.Dir, BarcodesFile), ReadBarcodes)
	if err != nil {
		return domain.AnnotationSet{}, err
	}
	positions, err := readFileWith(filepath.Join(d.Dir, PositionsFile), ReadPositions)
	if err != nil {
		return domain.AnnotationSet{}, err
	}
	set := domain.AnnotationSet{Units: make([]domain.Unit, 0, len(barcodes))}
	for _, barcode := range barcodes {
		position, ok := positions[barcode]
		if !ok {
			return domain.AnnotationSet{}, fmt.Errorf("barcode %s has no position row", barcode)
		}
		set.Units = append(set.Units, domain.Unit{Barcode: barcode, Position: position})
	}
	return set, nil
}

// readFileWith opens path and applies parse, releasing the handle on all
// exit paths.
func readFileWith[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	file, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = file.Close() }()
	out, err := parse(file)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}
