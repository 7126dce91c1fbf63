// Package pattern explains each output field of an example set in terms of
// the input fields.
//
// For every output leaf the Detector proposes candidates of eight kinds,
// scores each by how many examples confirm it and retains the strongest.
// Targets are scored independently of each other.
package pattern

import (
	"fmt"
	"strings"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/schema"
)

// Kind classifies how an output field derives from input fields.
type Kind string

const (
	KindDirectCopy           Kind = "direct_copy"
	KindRename               Kind = "rename"
	KindTypeConversion       Kind = "type_conversion"
	KindBooleanNormalization Kind = "boolean_normalization"
	KindValueMapping         Kind = "value_mapping"
	KindConcatenation        Kind = "concatenation"
	KindSubstring            Kind = "substring"
	KindUnclassified         Kind = "unclassified"
)

// Precedence orders kinds when confidence is equal. Lower wins.
func (k Kind) Precedence() int {
	switch k {
	case KindDirectCopy:
		return 1
	case KindRename:
		return 2
	case KindTypeConversion:
		return 3
	case KindBooleanNormalization:
		return 4
	case KindValueMapping:
		return 5
	case KindConcatenation:
		return 6
	case KindSubstring:
		return 7
	default:
		return 8
	}
}

// Confidence bucket.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Rank orders buckets: high is 3, low is 1.
func (c Confidence) Rank() int {
	switch c {
	case High:
		return 3
	case Medium:
		return 2
	default:
		return 1
	}
}

func (c Confidence) demote() Confidence {
	switch c {
	case High:
		return Medium
	default:
		return Low
	}
}

// bucket scores confirmed out of observed examples. A single confirmation
// is low no matter how few examples were observed.
func bucket(confirmed, observed int) Confidence {
	switch {
	case confirmed <= 1:
		return Low
	case confirmed == observed:
		return High
	case 2*confirmed > observed:
		return Medium
	default:
		return Low
	}
}

// Notes attached to patterns.
const (
	NoteOverfitRisk = "overfit_risk"
	NoteMixedType   = "mixed_type"
	NoteNoCandidate = "no_candidate"
	NoteNoValues    = "no_values"
)

// Evidence is one confirming example: the source values in source order
// and the output value they produced.
type Evidence struct {
	ExampleID string        `json:"example_id"`
	Inputs    []interface{} `json:"inputs,omitempty"`
	Output    interface{}   `json:"output"`
}

// MappingEntry is one row of a value or boolean mapping table.
type MappingEntry struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// Params carries the kind-specific details a generator needs.
type Params struct {
	Separator    string         `json:"separator,omitempty"`
	Mapping      []MappingEntry `json:"mapping,omitempty"`
	SourceKind   schema.Kind    `json:"source_kind,omitempty"`
	TargetKind   schema.Kind    `json:"target_kind,omitempty"`
	TargetType   string         `json:"target_type,omitempty"` // string, int64, float64, bool
	TargetLayout string         `json:"target_layout,omitempty"`

	// substring
	Mode      string `json:"mode,omitempty"` // extract or embed
	Rule      string `json:"rule,omitempty"` // split, prefix, suffix, wrap, contains
	Delimiter string `json:"delimiter,omitempty"`
	Index     *int   `json:"index,omitempty"` // negative counts from the end
	Prefix    string `json:"prefix,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
}

// Alternative is a competing candidate that tied with the retained one.
type Alternative struct {
	Kind        Kind       `json:"kind"`
	SourcePaths []string   `json:"source_paths"`
	Confidence  Confidence `json:"confidence"`
	Similarity  float64    `json:"similarity"`
}

// Pattern is the retained explanation for one output field.
type Pattern struct {
	TargetPath      string        `json:"target_path"`
	Kind            Kind          `json:"kind"`
	SourcePaths     []string      `json:"source_paths"`
	Confidence      Confidence    `json:"confidence"`
	Confirmed       int           `json:"confirmed"`
	Observed        int           `json:"observed"`
	Evidence        []Evidence    `json:"evidence,omitempty"`
	Counterexamples []string      `json:"counterexamples,omitempty"`
	Params          Params        `json:"params"`
	Ambiguous       bool          `json:"ambiguous"`
	NeedsReview     bool          `json:"needs_review"`
	Notes           []string      `json:"notes,omitempty"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
}

// Accepted reports whether the pattern may drive generation without a
// human confirming it. Low confidence and unclassified patterns never are.
func (p *Pattern) Accepted() bool {
	return !p.NeedsReview
}

// HasNote reports whether note is attached.
func (p *Pattern) HasNote(note string) bool {
	for _, n := range p.Notes {
		if n == note {
			return true
		}
	}
	return false
}

// Describe renders the pattern as a one-line summary.
func (p *Pattern) Describe() string {
	src := strings.Join(p.SourcePaths, ", ")
	switch p.Kind {
	case KindUnclassified:
		return fmt.Sprintf("%s: NEEDS_REVIEW (no derivation found)", p.TargetPath)
	case KindConcatenation:
		return fmt.Sprintf("%s <- concatenation(%s, separator=%q) [%s]", p.TargetPath, src, p.Params.Separator, p.Confidence)
	default:
		return fmt.Sprintf("%s <- %s(%s) [%s]", p.TargetPath, p.Kind, src, p.Confidence)
	}
}

// AmbiguityWarning reports a target whose best candidates tie on
// confidence and precedence. It is never fatal.
type AmbiguityWarning struct {
	TargetPath string
	Retained   Alternative
	Tied       []Alternative
}

func (w *AmbiguityWarning) Error() string {
	names := make([]string, 0, len(w.Tied)+1)
	names = append(names, strings.Join(w.Retained.SourcePaths, "+"))
	for _, t := range w.Tied {
		names = append(names, strings.Join(t.SourcePaths, "+"))
	}
	return fmt.Sprintf("target %s: %d %s %s candidates tie (%s)",
		w.TargetPath, len(names), w.Retained.Confidence, w.Retained.Kind, strings.Join(names, ", "))
}

// Unwrap lets errors.Is match ErrPatternAmbiguity.
func (w *AmbiguityWarning) Unwrap() error { return errors.ErrPatternAmbiguity }

// Result holds one pattern per output leaf, sorted by target path.
type Result struct {
	Patterns []Pattern          `json:"patterns"`
	Warnings []*AmbiguityWarning `json:"-"`
}

// Lookup returns the pattern for target.
func (r *Result) Lookup(target string) (*Pattern, bool) {
	for i := range r.Patterns {
		if r.Patterns[i].TargetPath == target {
			return &r.Patterns[i], true
		}
	}
	return nil, false
}

// Unresolved returns the patterns that need a human decision.
func (r *Result) Unresolved() []Pattern {
	var out []Pattern
	for _, p := range r.Patterns {
		if p.NeedsReview {
			out = append(out, p)
		}
	}
	return out
}
