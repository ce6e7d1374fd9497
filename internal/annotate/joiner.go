package annotate

import (
	"fmt"

	"spatialcore/pkg/domain"
)

// Annotation is one row of the expert annotation source before joining.
type Annotation struct {
	Barcode  domain.Barcode
	RawLabel string
}

// AlignmentError reports that the annotation source cannot be aligned 1:1
// with the dataset's unit set. It is structural: no safe default exists, so
// callers must abort the run.
type AlignmentError struct {
	Reason  string
	Barcode domain.Barcode
	Units   int
	Rows    int
}

func (e AlignmentError) Error() string {
	switch {
	case e.Barcode != "":
		return fmt.Sprintf("annotation alignment: %s (barcode %s)", e.Reason, e.Barcode)
	case e.Units != 0 || e.Rows != 0:
		return fmt.Sprintf("annotation alignment: %s (%d units, %d annotation rows)", e.Reason, e.Units, e.Rows)
	default:
		return fmt.Sprintf("annotation alignment: %s", e.Reason)
	}
}

// Join attaches raw expert labels to units by explicit barcode key join.
// Every anomaly is loud: a row count mismatch, a duplicate annotation
// barcode, or a unit without a matching row yields an AlignmentError. Row
// order of the annotation source is irrelevant; only keys matter.
func Join(set domain.AnnotationSet, rows []Annotation) (domain.AnnotationSet, error) {
	if len(rows) != set.Len() {
		return domain.AnnotationSet{}, AlignmentError{
			Reason: "annotation row count does not match unit count",
			Units:  set.Len(),
			Rows:   len(rows),
		}
	}
	byBarcode := make(map[domain.Barcode]string, len(rows))
	for _, row := range rows {
		if _, dup := byBarcode[row.Barcode]; dup {
			return domain.AnnotationSet{}, AlignmentError{
				Reason:  "duplicate annotation barcode",
				Barcode: row.Barcode,
			}
		}
		byBarcode[row.Barcode] = row.RawLabel
	}
	out := set.Clone()
	for i := range out.Units {
		raw, ok := byBarcode[out.Units[i].Barcode]
		if !ok {
			return domain.AnnotationSet{}, AlignmentError{
				Reason:  "unit has no annotation row",
				Barcode: out.Units[i].Barcode,
			}
		}
		out.Units[i].RawLabel = raw
	}
	return out, nil
}

// FilterLabeled returns the structural subset of units whose canonical label
// is non-empty. Auxiliary per-unit data travels with the retained units;
// nothing of a removed unit survives, so downstream length invariants hold
// without masking.
func FilterLabeled(set domain.AnnotationSet) domain.AnnotationSet {
	out := domain.AnnotationSet{Units: make([]domain.Unit, 0, set.Len())}
	for _, u := range set.Units {
		if u.Labeled() {
			out.Units = append(out.Units, u)
		}
	}
	if len(out.Units) == 0 {
		out.Units = nil
	}
	return out
}
