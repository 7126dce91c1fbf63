// Package specification renders an analysis into the document handed to
// the code generation backend.
//
// A Specification is derived entirely from its inputs. Builders sort
// everything they emit, so the same analysis always renders the same text.
package specification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/internal/value"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/pattern"
	"github.com/teranos/exemplar/schema"
	"github.com/teranos/exemplar/validator"
)

// Contract is what every implementation must satisfy.
type Contract struct {
	Package       string   `json:"package"`
	InterfaceName string   `json:"interface"`
	MethodName    string   `json:"method"`
	Signature     string   `json:"signature"`
	Requirements  []string `json:"requirements"`
}

// Unresolved is a target field the implementation must not guess.
type Unresolved struct {
	TargetPath string `json:"target_path"`
	Reason     string `json:"reason"`
}

// WorkedExample is one example rendered as literal values.
type WorkedExample struct {
	ID          string `json:"example_id"`
	Description string `json:"description,omitempty"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// Note is a human-authored, non-authoritative description.
type Note struct {
	Target      string   `json:"target"`
	Sources     []string `json:"sources,omitempty"`
	Description string   `json:"description"`
}

// Specification is the complete document.
type Specification struct {
	Name            string                `json:"name"`
	Contract        Contract              `json:"contract"`
	InputSchema     *schema.Schema        `json:"input_schema"`
	OutputSchema    *schema.Schema        `json:"output_schema"`
	Patterns        []pattern.Pattern     `json:"ranked_patterns"`
	Unresolved      []Unresolved          `json:"unresolved_fields"`
	WorkedExamples  []WorkedExample       `json:"worked_examples"`
	Notes           []Note                `json:"notes,omitempty"`
	Warnings        []string              `json:"warnings,omitempty"`
	PriorViolations []validator.Violation `json:"prior_violations,omitempty"`
}

// WithViolations returns a copy carrying vs after any earlier violations.
// The receiver is not modified.
func (s *Specification) WithViolations(vs []validator.Violation) *Specification {
	cp := *s
	cp.PriorViolations = make([]validator.Violation, 0, len(s.PriorViolations)+len(vs))
	cp.PriorViolations = append(cp.PriorViolations, s.PriorViolations...)
	cp.PriorViolations = append(cp.PriorViolations, vs...)
	return &cp
}

// JSON encodes the specification.
func (s *Specification) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode specification")
	}
	return data, nil
}

// Input is everything an analysis produced.
type Input struct {
	Name         string
	Examples     []*example.Example
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
	Patterns     *pattern.Result
	Notes        []example.TransformationNote
	// TargetSchema maps output paths to expected kinds. It is only cross-checked.
	TargetSchema map[string]string
}

// Options names the contract.
type Options struct {
	Package       string // default "transform"
	InterfaceName string // default "Transformer"
	MethodName    string // default "Transform"
}

// Builder produces specifications.
type Builder struct {
	opts Options
	log  *zap.SugaredLogger
}

// NewBuilder creates a builder. log may be nil.
func NewBuilder(opts Options, log *zap.SugaredLogger) *Builder {
	if opts.Package == "" {
		opts.Package = "transform"
	}
	if opts.InterfaceName == "" {
		opts.InterfaceName = "Transformer"
	}
	if opts.MethodName == "" {
		opts.MethodName = "Transform"
	}
	return &Builder{opts: opts, log: logger.Nop(log)}
}

// Build assembles the specification.
func (b *Builder) Build(in Input) (*Specification, error) {
	if in.InputSchema == nil || in.OutputSchema == nil || in.Patterns == nil {
		return nil, errors.New("specification needs both schemas and a pattern result")
	}

	spec := &Specification{
		Name:         in.Name,
		Contract:     b.contract(),
		InputSchema:  in.InputSchema,
		OutputSchema: in.OutputSchema,
		Patterns:     rank(in.Patterns.Patterns),
	}

	for _, p := range spec.Patterns {
		if reason := unresolvedReason(p); reason != "" {
			spec.Unresolved = append(spec.Unresolved, Unresolved{TargetPath: p.TargetPath, Reason: reason})
		}
	}
	sort.Slice(spec.Unresolved, func(i, j int) bool { return spec.Unresolved[i].TargetPath < spec.Unresolved[j].TargetPath })

	for _, ex := range in.Examples {
		spec.WorkedExamples = append(spec.WorkedExamples, WorkedExample{
			ID:          ex.ID,
			Description: ex.Description,
			Input:       value.Format(ex.Input),
			Output:      value.Format(ex.Output),
		})
	}

	for _, n := range in.Notes {
		spec.Notes = append(spec.Notes, Note{Target: n.Target, Sources: n.Sources, Description: n.Description})
	}

	spec.Warnings = append(spec.Warnings, crossCheck(in.OutputSchema, in.TargetSchema)...)
	for _, p := range in.InputSchema.MixedPaths() {
		spec.Warnings = append(spec.Warnings, "input field "+p+" holds values of several kinds")
	}
	for _, p := range in.OutputSchema.MixedPaths() {
		spec.Warnings = append(spec.Warnings, "output field "+p+" holds values of several kinds")
	}
	for _, w := range in.Patterns.Warnings {
		spec.Warnings = append(spec.Warnings, w.Error())
	}

	b.log.Debugw("specification built",
		logger.FieldProject, in.Name,
		logger.FieldCount, len(spec.Patterns),
		"unresolved", len(spec.Unresolved))
	return spec, nil
}

func (b *Builder) contract() Contract {
	return Contract{
		Package:       b.opts.Package,
		InterfaceName: b.opts.InterfaceName,
		MethodName:    b.opts.MethodName,
		Signature:     b.opts.MethodName + "(ctx context.Context, in Input) (Output, error)",
		Requirements: []string{
			"accept exactly one Input record conforming to the input schema",
			"return exactly one Output record conforming to the output schema",
			"return an error for any field listed as unresolved instead of guessing its value",
			"receive collaborators (loggers, clients) through a constructor, never package state",
		},
	}
}

// rank orders patterns by confidence, then target path.
func rank(ps []pattern.Pattern) []pattern.Pattern {
	out := append([]pattern.Pattern(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence.Rank() != out[j].Confidence.Rank() {
			return out[i].Confidence.Rank() > out[j].Confidence.Rank()
		}
		return out[i].TargetPath < out[j].TargetPath
	})
	return out
}

func unresolvedReason(p pattern.Pattern) string {
	switch {
	case p.Kind == pattern.KindUnclassified && p.HasNote(pattern.NoteNoValues):
		return "no example provides a value"
	case p.Kind == pattern.KindUnclassified:
		return "no derivation explains the examples"
	case p.Ambiguous:
		tied := []string{strings.Join(p.SourcePaths, " + ")}
		for _, alt := range p.Alternatives {
			tied = append(tied, strings.Join(alt.SourcePaths, " + "))
		}
		return fmt.Sprintf("%s is ambiguous between %s", p.Kind, strings.Join(tied, ", "))
	case p.NeedsReview:
		return "only low-confidence evidence for " + string(p.Kind)
	}
	return ""
}

// crossCheck compares the inferred output schema with declared kinds.
func crossCheck(out *schema.Schema, declared map[string]string) []string {
	paths := make([]string, 0, len(declared))
	for p := range declared {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var warnings []string
	for _, p := range paths {
		f, ok := out.Lookup(p)
		switch {
		case !ok:
			warnings = append(warnings, "declared target field "+p+" never appears in the examples")
		case string(f.Kind) != declared[p]:
			warnings = append(warnings, "declared target field "+p+" is "+declared[p]+" but examples infer "+string(f.Kind))
		}
	}
	return warnings
}
