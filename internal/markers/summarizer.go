// Package markers ranks differential expression test records per region and
// selects the entries worth flagging on a volcano plot.
package markers

import (
	"fmt"
	"regexp"
	"sort"

	"spatialcore/pkg/domain"
)

// Thresholds gate which records count as significant.
type Thresholds struct {
	MaxAdjustedP     float64 // default 0.05
	MinAbsFoldChange float64 // default 0.5
	TopPerGroup      int     // default 5
}

// DefaultThresholds returns the poster's significance gate.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxAdjustedP: 0.05, MinAbsFoldChange: 0.5, TopPerGroup: 5}
}

func (t Thresholds) withDefaults() Thresholds {
	if t.MaxAdjustedP == 0 {
		t.MaxAdjustedP = 0.05
	}
	if t.MinAbsFoldChange == 0 {
		t.MinAbsFoldChange = 0.5
	}
	if t.TopPerGroup == 0 {
		t.TopPerGroup = 5
	}
	return t
}

// MissingGroupError reports a summary request for a group absent from the
// supplied records.
type MissingGroupError struct {
	Group string
}

func (e MissingGroupError) Error() string {
	return fmt.Sprintf("no differential test records for group %q", e.Group)
}

var duplicateSuffix = regexp.MustCompile(`\.\d+$`)

// NormalizeFeature strips the trailing ".<digits>" disambiguation suffix that
// upstream tooling appends to duplicated feature names.
func NormalizeFeature(name string) string {
	return duplicateSuffix.ReplaceAllString(name, "")
}

// Summary holds the ranked significant records for one group, rank 1 first.
type Summary struct {
	Group   string                `json:"group"`
	Records []domain.MarkerRecord `json:"records"`
}

// Summarize normalizes feature names, flags significance, and selects the
// top-K records per group ordered by ascending adjusted significance. Sorting
// is stable so ties keep their input order. Input records are not mutated.
func Summarize(records []domain.MarkerRecord, thresholds Thresholds) []Summary {
	thresholds = thresholds.withDefaults()

	byGroup := make(map[string][]domain.MarkerRecord)
	var groups []string
	for _, record := range records {
		record.Feature = NormalizeFeature(record.Feature)
		record.Significant = record.AdjustedP < thresholds.MaxAdjustedP &&
			abs(record.Log2FoldChange) > thresholds.MinAbsFoldChange
		if _, seen := byGroup[record.Group]; !seen {
			groups = append(groups, record.Group)
		}
		byGroup[record.Group] = append(byGroup[record.Group], record)
	}
	sort.Strings(groups)

	summaries := make([]Summary, 0, len(groups))
	for _, group := range groups {
		significant := make([]domain.MarkerRecord, 0, len(byGroup[group]))
		for _, record := range byGroup[group] {
			if record.Significant {
				significant = append(significant, record)
			}
		}
		sort.SliceStable(significant, func(i, j int) bool {
			return significant[i].AdjustedP < significant[j].AdjustedP
		})
		if len(significant) > thresholds.TopPerGroup {
			significant = significant[:thresholds.TopPerGroup]
		}
		summaries = append(summaries, Summary{Group: group, Records: significant})
	}
	return summaries
}

// SummarizeGroup returns the summary for a single group or a
// MissingGroupError when the group contributed no records at all.
func SummarizeGroup(records []domain.MarkerRecord, group string, thresholds Thresholds) (Summary, error) {
	present := false
	for _, record := range records {
		if record.Group == group {
			present = true
			break
		}
	}
	if !present {
		return Summary{}, MissingGroupError{Group: group}
	}
	for _, summary := range Summarize(records, thresholds) {
		if summary.Group == group {
			return summary, nil
		}
	}
	return Summary{}, MissingGroupError{Group: group}
}

// Flag annotates every record with its normalized feature name and
// significance flag without ranking or truncation, for volcano rendering.
func Flag(records []domain.MarkerRecord, thresholds Thresholds) []domain.MarkerRecord {
	thresholds = thresholds.withDefaults()
	out := make([]domain.MarkerRecord, len(records))
	for i, record := range records {
		record.Feature = NormalizeFeature(record.Feature)
		record.Significant = record.AdjustedP < thresholds.MaxAdjustedP &&
			abs(record.Log2FoldChange) > thresholds.MinAbsFoldChange
		out[i] = record
	}
	return out
}

// Groups returns the distinct group labels present in records, sorted.
func Groups(records []domain.MarkerRecord) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		seen[record.Group] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for group := range seen {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
