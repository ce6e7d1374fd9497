package markers_test

import (
	"errors"
	"testing"

	"spatialcore/internal/markers"
	"spatialcore/pkg/domain"
)

func TestNormalizeFeature(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Col10a1.1", "Col10a1"},
		{"Col10a1", "Col10a1"},
		{"Sox9.12", "Sox9"},
		{"Gene.v2", "Gene.v2"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := markers.NormalizeFeature(tc.in); got != tc.want {
			t.Errorf("NormalizeFeature(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSummarizeSelectsTopFive(t *testing.T) {
	records := []domain.MarkerRecord{
		{Group: "chondrocyte", Feature: "G1", Log2FoldChange: 1.2, AdjustedP: 0.001},
		{Group: "chondrocyte", Feature: "G2", Log2FoldChange: -0.9, AdjustedP: 0.002},
		{Group: "chondrocyte", Feature: "G3", Log2FoldChange: 0.8, AdjustedP: 0.003},
		{Group: "chondrocyte", Feature: "G4", Log2FoldChange: 0.7, AdjustedP: 0.004},
		{Group: "chondrocyte", Feature: "G5", Log2FoldChange: 2.0, AdjustedP: 0.005},
		{Group: "chondrocyte", Feature: "G6", Log2FoldChange: 1.5, AdjustedP: 0.006},
		{Group: "chondrocyte", Feature: "weak_fc", Log2FoldChange: 0.2, AdjustedP: 0.0001},
		{Group: "chondrocyte", Feature: "weak_p", Log2FoldChange: 3.0, AdjustedP: 0.2},
		{Group: "chondrocyte", Feature: "border_p", Log2FoldChange: 1.0, AdjustedP: 0.05},
		{Group: "chondrocyte", Feature: "border_fc", Log2FoldChange: 0.5, AdjustedP: 0.001},
	}
	summaries := markers.Summarize(records, markers.DefaultThresholds())
	if len(summaries) != 1 {
		t.Fatalf("expected one group, got %d", len(summaries))
	}
	top := summaries[0].Records
	if len(top) != 5 {
		t.Fatalf("expected 5 records, got %d", len(top))
	}
	wantOrder := []string{"G1", "G2", "G3", "G4", "G5"}
	for i, record := range top {
		if record.Feature != wantOrder[i] {
			t.Errorf("rank %d = %s, want %s", i+1, record.Feature, wantOrder[i])
		}
		if !record.Significant {
			t.Errorf("rank %d not flagged significant", i+1)
		}
		if record.AdjustedP >= 0.05 {
			t.Errorf("rank %d fails significance gate: padj %v", i+1, record.AdjustedP)
		}
	}
}

func TestSummarizeStableTies(t *testing.T) {
	records := []domain.MarkerRecord{
		{Group: "g", Feature: "first", Log2FoldChange: 1, AdjustedP: 0.01},
		{Group: "g", Feature: "second", Log2FoldChange: 1, AdjustedP: 0.01},
		{Group: "g", Feature: "third", Log2FoldChange: 1, AdjustedP: 0.01},
	}
	summaries := markers.Summarize(records, markers.Thresholds{})
	got := summaries[0].Records
	if got[0].Feature != "first" || got[1].Feature != "second" || got[2].Feature != "third" {
		t.Fatalf("tie order not stable: %+v", got)
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	records := []domain.MarkerRecord{{Group: "g", Feature: "Col10a1.1", Log2FoldChange: 1, AdjustedP: 0.01}}
	_ = markers.Summarize(records, markers.Thresholds{})
	if records[0].Feature != "Col10a1.1" || records[0].Significant {
		t.Fatalf("input records mutated: %+v", records[0])
	}
}

func TestSummarizeGroup(t *testing.T) {
	records := []domain.MarkerRecord{
		{Group: "hypertrophic", Feature: "Col10a1.1", Log2FoldChange: 2.5, AdjustedP: 0.0001},
		{Group: "superficial", Feature: "Prg4", Log2FoldChange: 1.8, AdjustedP: 0.001},
	}
	summary, err := markers.SummarizeGroup(records, "hypertrophic", markers.Thresholds{})
	if err != nil {
		t.Fatalf("summarize group: %v", err)
	}
	if len(summary.Records) != 1 || summary.Records[0].Feature != "Col10a1" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	_, err = markers.SummarizeGroup(records, "dermal", markers.Thresholds{})
	var missing markers.MissingGroupError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingGroupError, got %v", err)
	}
	if missing.Group != "dermal" {
		t.Fatalf("unexpected group in error: %s", missing.Group)
	}
}

func TestFlag(t *testing.T) {
	records := []domain.MarkerRecord{
		{Group: "g", Feature: "A.2", Log2FoldChange: -0.8, AdjustedP: 0.01},
		{Group: "g", Feature: "B", Log2FoldChange: 0.3, AdjustedP: 0.01},
	}
	flagged := markers.Flag(records, markers.Thresholds{})
	if len(flagged) != 2 {
		t.Fatalf("flag must keep all records, got %d", len(flagged))
	}
	if flagged[0].Feature != "A" || !flagged[0].Significant {
		t.Fatalf("unexpected first record: %+v", flagged[0])
	}
	if flagged[1].Significant {
		t.Fatalf("weak fold change must not be significant")
	}
}

func TestGroups(t *testing.T) {
	records := []domain.MarkerRecord{
		{Group: "b"}, {Group: "a"}, {Group: "b"},
	}
	groups := markers.Groups(records)
	if len(groups) != 2 || groups[0] != "a" || groups[1] != "b" {
		t.Fatalf("unexpected groups: %v", groups)
	}
}
