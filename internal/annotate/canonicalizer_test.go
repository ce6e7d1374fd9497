package annotate_test

import (
	"testing"

	"spatialcore/internal/annotate"
	"spatialcore/pkg/domain"
)

func TestCanonicalizeRules(t *testing.T) {
	table := annotate.DefaultRuleTable()
	cases := []struct {
		raw  string
		want string
	}{
		{"chondrocytes", "chondrocyte"},
		{"pre-osteo", "pre-osteoblast"},
		{"pre-osteoblasr", "pre-osteoblast"},
		{"secondary hypertophic", "secondary hypertrophic"},
		{"superficial", "superficial"},
		{"hypertrophic", "hypertrophic"},
		{"", ""},
		{"never seen", "never seen"},
	}
	for _, tc := range cases {
		if got := table.Canonicalize(tc.raw); got != tc.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	table := annotate.DefaultRuleTable()
	inputs := []string{"chondrocytes", "pre-osteoblasr", "secondary hypertophic", "superficial", "", "mystery"}
	for _, raw := range inputs {
		once := table.Canonicalize(raw)
		twice := table.Canonicalize(once)
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %q: %q then %q", raw, once, twice)
		}
	}
}

func TestMergeRulesRejectsConflicts(t *testing.T) {
	table := annotate.DefaultRuleTable()
	if _, err := table.MergeRules(map[string]string{"chondrocytes": "osteoblast"}); err == nil {
		t.Fatalf("expected conflict error for re-mapped source label")
	}
	merged, err := table.MergeRules(map[string]string{"chondrocytes": "chondrocyte", "sup": "superficial"})
	if err != nil {
		t.Fatalf("merge identical + new rule: %v", err)
	}
	if got := merged.Canonicalize("sup"); got != "superficial" {
		t.Fatalf("merged rule not applied: got %q", got)
	}
}

func TestNewRuleTableRejectsEmptySource(t *testing.T) {
	if _, err := annotate.NewRuleTable(map[string]string{"": "chondrocyte"}); err == nil {
		t.Fatalf("expected error for empty source label")
	}
}

func TestCanonicalizeUnitsFlagsUnknownLabels(t *testing.T) {
	set := domain.AnnotationSet{Units: []domain.Unit{
		{Barcode: "AAA", RawLabel: "chondrocytes"},
		{Barcode: "AAC", RawLabel: "dermal"},
		{Barcode: "AAG", RawLabel: ""},
		{Barcode: "AAT", RawLabel: "dermal"},
	}}
	out, violations := annotate.CanonicalizeUnits(set, annotate.DefaultRuleTable(), annotate.DefaultVocabulary())

	if out.Units[0].Label != "chondrocyte" {
		t.Fatalf("expected corrected label, got %q", out.Units[0].Label)
	}
	if out.Units[1].Label != "dermal" {
		t.Fatalf("unknown label must pass through, got %q", out.Units[1].Label)
	}
	if out.Units[2].Label != "" {
		t.Fatalf("empty label must stay empty, got %q", out.Units[2].Label)
	}
	if len(violations) != 1 {
		t.Fatalf("expected one violation per distinct unknown label, got %d", len(violations))
	}
	v := violations[0]
	if v.Severity != domain.SeverityWarn || v.Entity != "dermal" {
		t.Fatalf("unexpected violation: %+v", v)
	}
	// input set untouched
	if set.Units[0].Label != "" {
		t.Fatalf("input set mutated")
	}
}

func TestVocabularyLabels(t *testing.T) {
	vocab := annotate.NewVocabulary("b", "a", "")
	if vocab.Contains("") {
		t.Fatalf("empty string must never be a vocabulary member")
	}
	labels := vocab.Labels()
	if len(labels) != 2 || labels[0] != "a" || labels[1] != "b" {
		t.Fatalf("unexpected labels: %v", labels)
	}
}
