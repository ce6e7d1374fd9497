package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"spatialcore/pkg/domain"
)

// ReadMarkers parses a differential expression test table in the layout the
// external library's marker test emits: a header naming at least the gene,
// cluster (group), avg_log2FC, and p_val_adj columns, one record per
// (group, feature) pair.
func ReadMarkers(r io.Reader) ([]domain.MarkerRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read marker header: %w", err)
	}
	geneIdx, groupIdx, foldIdx, padjIdx := -1, -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "gene":
			geneIdx = i
		case "cluster", "group":
			groupIdx = i
		case "avg_log2FC":
			foldIdx = i
		case "p_val_adj":
			padjIdx = i
		}
	}
	if geneIdx < 0 || groupIdx < 0 || foldIdx < 0 || padjIdx < 0 {
		return nil, fmt.Errorf("marker header must name gene, cluster, avg_log2FC, and p_val_adj columns")
	}
	var out []domain.MarkerRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read marker row: %w", err)
		}
		fold, err := strconv.ParseFloat(strings.TrimSpace(record[foldIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("avg_log2FC for %s: %w", record[geneIdx], err)
		}
		padj, err := strconv.ParseFloat(strings.TrimSpace(record[padjIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("p_val_adj for %s: %w", record[geneIdx], err)
		}
		if padj < 0 || padj > 1 {
			return nil, fmt.Errorf("p_val_adj for %s out of [0,1]: %v", record[geneIdx], padj)
		}
		out = append(out, domain.MarkerRecord{
			Group:          strings.TrimSpace(record[groupIdx]),
			Feature:        strings.TrimSpace(record[geneIdx]),
			Log2FoldChange: fold,
			AdjustedP:      padj,
		})
	}
	return out, nil
}

// MarkerFile is a file-backed differential test record provider for one
// partition definition.
type MarkerFile struct {
	Path string
}

// Markers loads the differential test records.
func (m MarkerFile) Markers() ([]domain.MarkerRecord, error) {
	return readFileWith(m.Path, ReadMarkers)
}
