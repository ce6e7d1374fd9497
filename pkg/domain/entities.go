// Package domain defines the core value entities, partitions, and rule
// evaluation primitives used by spatialcore.
package domain

import (
	"sort"
	"time"
)

// Barcode uniquely identifies one spatial capture spot.
type Barcode string

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityRun identifies a persisted analysis run record.
	EntityRun EntityType = "run"
)

// Severity grades a rule violation.
type Severity string

// Canonical violation severities, ordered from most to least restrictive.
const (
	// SeverityBlock aborts the enclosing transaction.
	SeverityBlock Severity = "block"
	// SeverityWarn surfaces the violation without aborting.
	SeverityWarn Severity = "warn"
	// SeverityLog records the violation for operator review only.
	SeverityLog Severity = "log"
)

// Action identifies the mutation kind captured in a Change record.
type Action string

// Canonical mutation actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Position holds the spatial placement of a spot on the tissue section.
type Position struct {
	InTissue bool    `json:"in_tissue"`
	Row      int     `json:"array_row"`
	Col      int     `json:"array_col"`
	X        float64 `json:"pxl_x"`
	Y        float64 `json:"pxl_y"`
}

// Unit is one spatial capture location together with its annotation state.
// RawLabel preserves the expert input verbatim; Label is the canonical form
// after typo/synonym correction, where the empty string means unlabeled.
type Unit struct {
	Barcode  Barcode  `json:"barcode"`
	RawLabel string   `json:"raw_label,omitempty"`
	Label    string   `json:"label,omitempty"`
	Cluster  string   `json:"cluster,omitempty"`
	Position Position `json:"position"`
}

// Labeled reports whether the unit carries a usable canonical label.
func (u Unit) Labeled() bool { return u.Label != "" }

// AnnotationSet is an ordered collection of units under analysis. Order is
// preserved from ingestion so downstream consumers can rely on stable output.
type AnnotationSet struct {
	Units []Unit `json:"units"`
}

// Len returns the number of units in the set.
func (s AnnotationSet) Len() int { return len(s.Units) }

// Barcodes returns unit identifiers in set order.
func (s AnnotationSet) Barcodes() []Barcode {
	out := make([]Barcode, len(s.Units))
	for i, u := range s.Units {
		out[i] = u.Barcode
	}
	return out
}

// Find returns the unit with the given barcode.
func (s AnnotationSet) Find(barcode Barcode) (Unit, bool) {
	for _, u := range s.Units {
		if u.Barcode == barcode {
			return u, true
		}
	}
	return Unit{}, false
}

// Clone returns a deep copy of the set.
func (s AnnotationSet) Clone() AnnotationSet {
	if len(s.Units) == 0 {
		return AnnotationSet{}
	}
	units := make([]Unit, len(s.Units))
	copy(units, s.Units)
	return AnnotationSet{Units: units}
}

// LabelPartition derives the expert-label partition over the labeled units.
func (s AnnotationSet) LabelPartition(name string) Partition {
	assignments := make(map[Barcode]string, len(s.Units))
	for _, u := range s.Units {
		assignments[u.Barcode] = u.Label
	}
	return Partition{Name: name, Assignments: assignments}
}

// ClusterPartition derives the automated-cluster partition over the units.
func (s AnnotationSet) ClusterPartition(name string) Partition {
	assignments := make(map[Barcode]string, len(s.Units))
	for _, u := range s.Units {
		assignments[u.Barcode] = u.Cluster
	}
	return Partition{Name: name, Assignments: assignments}
}

// Partition assigns every covered barcode to exactly one category label.
type Partition struct {
	Name        string             `json:"name"`
	Assignments map[Barcode]string `json:"assignments"`
}

// Len returns the number of assigned units.
func (p Partition) Len() int { return len(p.Assignments) }

// Category returns the label assigned to barcode.
func (p Partition) Category(barcode Barcode) (string, bool) {
	category, ok := p.Assignments[barcode]
	return category, ok
}

// Categories returns the distinct category labels in lexical order.
func (p Partition) Categories() []string {
	seen := make(map[string]struct{}, len(p.Assignments))
	for _, category := range p.Assignments {
		seen[category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the partition.
func (p Partition) Clone() Partition {
	cloned := Partition{Name: p.Name}
	if p.Assignments != nil {
		cloned.Assignments = make(map[Barcode]string, len(p.Assignments))
		for k, v := range p.Assignments {
			cloned.Assignments[k] = v
		}
	}
	return cloned
}

// MarkerRecord is one feature's differential test result within one group
// comparison. Records are immutable after creation except for the derived
// Significant flag and the normalized feature name.
type MarkerRecord struct {
	Group          string  `json:"group"`
	Feature        string  `json:"feature"`
	Log2FoldChange float64 `json:"log2_fold_change"`
	AdjustedP      float64 `json:"p_val_adj"`
	Significant    bool    `json:"significant,omitempty"`
}

// RunRecord captures the persisted outcome of one pipeline run.
type RunRecord struct {
	ID            string      `json:"id"`
	Dataset       string      `json:"dataset"`
	Units         int         `json:"units"`
	Labeled       int         `json:"labeled"`
	Concordance   float64     `json:"concordance"`
	ExpertGroups  []string    `json:"expert_groups,omitempty"`
	ClusterGroups []string    `json:"cluster_groups,omitempty"`
	Warnings      []Violation `json:"warnings,omitempty"`
	ArtifactKeys  []string    `json:"artifact_keys,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the run record.
func (r RunRecord) Clone() RunRecord {
	cloned := r
	cloned.ExpertGroups = append([]string(nil), r.ExpertGroups...)
	cloned.ClusterGroups = append([]string(nil), r.ClusterGroups...)
	cloned.Warnings = append([]Violation(nil), r.Warnings...)
	cloned.ArtifactKeys = append([]string(nil), r.ArtifactKeys...)
	return cloned
}

// Change records a mutation observed within a transaction for rule evaluation.
type Change struct {
	Entity EntityType `json:"entity"`
	Action Action     `json:"action"`
	ID     string     `json:"id"`
}
