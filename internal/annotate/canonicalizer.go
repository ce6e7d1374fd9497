// Package annotate reconciles expert-provided tissue-region annotations with
// the spatial dataset's unit set: canonicalizing label spellings, joining
// labels onto units by barcode, and filtering out unlabeled units.
package annotate

import (
	"fmt"
	"sort"

	"spatialcore/pkg/domain"
)

// Vocabulary is the fixed set of canonical region labels accepted without
// correction. The empty string is not a member; it denotes "unlabeled".
type Vocabulary map[string]struct{}

// NewVocabulary builds a vocabulary from the provided canonical labels.
func NewVocabulary(labels ...string) Vocabulary {
	v := make(Vocabulary, len(labels))
	for _, label := range labels {
		if label == "" {
			continue
		}
		v[label] = struct{}{}
	}
	return v
}

// DefaultVocabulary returns the growth-plate region vocabulary used by the
// reference annotation set.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary(
		"chondrocyte",
		"pre-osteoblast",
		"secondary hypertrophic",
		"superficial",
		"hypertrophic",
		"pre-hypertrophic",
	)
}

// Contains reports whether label is a canonical vocabulary entry.
func (v Vocabulary) Contains(label string) bool {
	_, ok := v[label]
	return ok
}

// Labels returns the vocabulary entries in lexical order.
func (v Vocabulary) Labels() []string {
	out := make([]string, 0, len(v))
	for label := range v {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// RuleTable maps raw expert label spellings to canonical vocabulary entries.
// Construction rejects duplicate source labels so a raw spelling can never
// resolve to two targets.
type RuleTable struct {
	rules map[string]string
}

// NewRuleTable builds a rule table from source→canonical pairs.
func NewRuleTable(rules map[string]string) (RuleTable, error) {
	table := RuleTable{rules: make(map[string]string, len(rules))}
	for source, canonical := range rules {
		if source == "" {
			return RuleTable{}, fmt.Errorf("empty source label cannot be mapped")
		}
		table.rules[source] = canonical
	}
	return table, nil
}

// MergeRules overlays additional source→canonical pairs, rejecting sources
// already present with a different target.
func (t RuleTable) MergeRules(rules map[string]string) (RuleTable, error) {
	merged := make(map[string]string, len(t.rules)+len(rules))
	for source, canonical := range t.rules {
		merged[source] = canonical
	}
	for source, canonical := range rules {
		if existing, ok := merged[source]; ok && existing != canonical {
			return RuleTable{}, fmt.Errorf("conflicting rule for %q: %q vs %q", source, existing, canonical)
		}
		if source == "" {
			return RuleTable{}, fmt.Errorf("empty source label cannot be mapped")
		}
		merged[source] = canonical
	}
	return RuleTable{rules: merged}, nil
}

// DefaultRuleTable returns the correction rules observed in the reference
// annotation set: plural and typo forms collapsed onto vocabulary entries.
func DefaultRuleTable() RuleTable {
	table, err := NewRuleTable(map[string]string{
		"chondrocytes":          "chondrocyte",
		"pre-osteo":             "pre-osteoblast",
		"pre-osteoblasr":        "pre-osteoblast",
		"secondary hypertophic": "secondary hypertrophic",
	})
	if err != nil {
		panic(err)
	}
	return table
}

// Canonicalize maps a raw label to its canonical form. The function is total
// over strings: unmapped labels (including the empty string, which denotes an
// unlabeled unit) pass through unchanged.
func (t RuleTable) Canonicalize(raw string) string {
	if canonical, ok := t.rules[raw]; ok {
		return canonical
	}
	return raw
}

// CanonicalizeUnits rewrites every unit's canonical label from its raw label
// and reports a warn-severity violation per distinct label that is neither
// mapped by the rule table nor already in the vocabulary. Unknown labels are
// retained, not dropped.
func CanonicalizeUnits(set domain.AnnotationSet, table RuleTable, vocab Vocabulary) (domain.AnnotationSet, []domain.Violation) {
	out := set.Clone()
	unknown := make(map[string]struct{})
	for i := range out.Units {
		canonical := table.Canonicalize(out.Units[i].RawLabel)
		out.Units[i].Label = canonical
		if canonical != "" && !vocab.Contains(canonical) {
			unknown[canonical] = struct{}{}
		}
	}
	if len(unknown) == 0 {
		return out, nil
	}
	labels := make([]string, 0, len(unknown))
	for label := range unknown {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	violations := make([]domain.Violation, 0, len(labels))
	for _, label := range labels {
		violations = append(violations, domain.Violation{
			Rule:     "annotation_vocabulary",
			Severity: domain.SeverityWarn,
			Entity:   label,
			Message:  fmt.Sprintf("label %q is outside the canonical vocabulary; passed through unchanged", label),
		})
	}
	return out, violations
}
