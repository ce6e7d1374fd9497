package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"spatialcore/pkg/domain"
)

// ReadClusters parses an automated cluster assignment table with a
// "Barcode,Cluster" header, as emitted by the clustering stage of the
// external analysis library.
func ReadClusters(r io.Reader) (map[domain.Barcode]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read cluster header: %w", err)
	}
	barcodeIdx, clusterIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "barcode":
			barcodeIdx = i
		case "cluster":
			clusterIdx = i
		}
	}
	if barcodeIdx < 0 || clusterIdx < 0 {
		return nil, fmt.Errorf("cluster header must name Barcode and Cluster columns")
	}
	out := make(map[domain.Barcode]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read cluster row: %w", err)
		}
		barcode := domain.Barcode(strings.TrimSpace(record[barcodeIdx]))
		cluster := strings.TrimSpace(record[clusterIdx])
		if cluster == "" {
			return nil, fmt.Errorf("barcode %s has empty cluster assignment", barcode)
		}
		if _, dup := out[barcode]; dup {
			return nil, fmt.Errorf("duplicate cluster barcode %s", barcode)
		}
		out[barcode] = cluster
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("cluster table is empty")
	}
	return out, nil
}

// ClusterFile is a file-backed cluster assignment provider.
type ClusterFile struct {
	Path string
}

// Assignments loads the barcode→cluster mapping.
func (c ClusterFile) Assignments() (map[domain.Barcode]string, error) {
	return readFileWith(c.Path, ReadClusters)
}

// AssignClusters attaches cluster ids to every unit of the set. The provider
// contract is total over the unit set, so a unit without an assignment is an
// error; surplus assignments for filtered-out barcodes are ignored.
func AssignClusters(set domain.AnnotationSet, assignments map[domain.Barcode]string) (domain.AnnotationSet, error) {
	out := set.Clone()
	for i := range out.Units {
		cluster, ok := assignments[out.Units[i].Barcode]
		if !ok {
			return domain.AnnotationSet{}, fmt.Errorf("unit %s has no cluster assignment", out.Units[i].Barcode)
		}
		out.Units[i].Cluster = cluster
	}
	return out, nil
}
