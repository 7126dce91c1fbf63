package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/pattern"
	"github.com/teranos/exemplar/schema"
	"github.com/teranos/exemplar/specification"
	"github.com/teranos/exemplar/tabular"
)

// InsufficientExamplesError aborts a run that has too few usable examples.
// It unwraps to errors.ErrInsufficientExamples.
type InsufficientExamplesError struct {
	Project  string
	Usable   int
	Required int
	// Skipped holds why each discarded example was rejected.
	Skipped []error
}

func (e *InsufficientExamplesError) Error() string {
	return fmt.Sprintf("project %s: %d usable examples, at least %d required (%d skipped)",
		e.Project, e.Usable, e.Required, len(e.Skipped))
}

// Unwrap lets errors.Is match ErrInsufficientExamples.
func (e *InsufficientExamplesError) Unwrap() error { return errors.ErrInsufficientExamples }

// Analysis is everything derived from a project's examples.
type Analysis struct {
	Project  *example.Project
	Examples []*example.Example
	// Skipped holds the examples that could not be used.
	Skipped      []error
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
	// SourceSchema is the collaborator table's schema, nil without one.
	SourceSchema  *schema.Schema
	Patterns      *pattern.Result
	Specification *specification.Specification
}

// Analyze loads a project descriptor and analyzes its examples.
func (p *Pipeline) Analyze(ctx context.Context, projectPath string) (*Analysis, error) {
	proj, err := example.LoadProject(projectPath)
	if err != nil {
		return nil, err
	}
	return p.AnalyzeProject(ctx, proj)
}

// AnalyzeProject runs inference, detection and specification building for
// an already loaded project.
func (p *Pipeline) AnalyzeProject(ctx context.Context, proj *example.Project) (*Analysis, error) {
	ctx = logger.WithProject(ctx, proj.Name)
	log := logger.WithContext(ctx, p.logger)

	if err := proj.CheckVersion(p.version); err != nil {
		return nil, err
	}

	loaded := example.LoadAll(proj.Examples)
	a := &Analysis{Project: proj, Skipped: loaded.Skipped}
	for _, err := range loaded.Skipped {
		log.Warnw("example skipped", logger.FieldError, err)
	}

	var ins, outs []schema.Record
	for _, ex := range loaded.Examples {
		in := schema.Record{ID: ex.ID, Value: ex.Input}
		out := schema.Record{ID: ex.ID, Value: ex.Output}
		if err := firstError(p.inferencer.Check(in), p.inferencer.Check(out)); err != nil {
			log.Warnw("example skipped", logger.FieldExampleID, ex.ID, logger.FieldError, err)
			a.Skipped = append(a.Skipped, errors.Wrapf(err, "example %s", ex.ID))
			continue
		}
		a.Examples = append(a.Examples, ex)
		ins = append(ins, in)
		outs = append(outs, out)
	}

	if len(a.Examples) < p.minExamples() {
		return nil, &InsufficientExamplesError{
			Project:  proj.Name,
			Usable:   len(a.Examples),
			Required: p.minExamples(),
			Skipped:  a.Skipped,
		}
	}

	var err error
	if a.InputSchema, err = p.inferencer.Infer(ins); err != nil {
		return nil, errors.Wrap(err, "infer input schema")
	}
	if a.OutputSchema, err = p.inferencer.Infer(outs); err != nil {
		return nil, errors.Wrap(err, "infer output schema")
	}

	var sourceWarnings []string
	if proj.Collaborator != nil {
		a.SourceSchema, err = p.sourceSchema(ctx, proj.Collaborator)
		if err != nil {
			return nil, errors.Wrapf(err, "collaborator %s", proj.Collaborator.Kind)
		}
		sourceWarnings = crossCheckSource(a.InputSchema, a.SourceSchema)
	}

	if a.Patterns, err = p.detector.Detect(a.Examples, a.InputSchema, a.OutputSchema); err != nil {
		return nil, errors.Wrap(err, "detect patterns")
	}
	for _, w := range a.Patterns.Warnings {
		log.Infow("ambiguous pattern", logger.FieldTargetPath, w.TargetPath, "detail", w.Error())
	}

	builder := specification.NewBuilder(specification.Options{
		Package:       proj.Package,
		InterfaceName: p.cfg.Validator.InterfaceName,
		MethodName:    p.cfg.Validator.MethodName,
	}, p.logger.Named("specification"))
	a.Specification, err = builder.Build(specification.Input{
		Name:         proj.Name,
		Examples:     a.Examples,
		InputSchema:  a.InputSchema,
		OutputSchema: a.OutputSchema,
		Patterns:     a.Patterns,
		Notes:        proj.Transformations,
		TargetSchema: proj.TargetSchema,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build specification")
	}
	a.Specification.Warnings = append(a.Specification.Warnings, sourceWarnings...)

	log.Infow("analysis complete",
		logger.FieldCount, len(a.Examples),
		"skipped", len(a.Skipped),
		"patterns", len(a.Patterns.Patterns),
		"unresolved", len(a.Specification.Unresolved))
	return a, nil
}

func (p *Pipeline) sourceSchema(ctx context.Context, cfg *tabular.Config) (*schema.Schema, error) {
	src, err := tabular.New(*cfg)
	if err != nil {
		return nil, err
	}
	table, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return p.inferencer.InferTable(table)
}

// crossCheckSource reports top-level input fields the collaborator never
// produces. It only warns.
func crossCheckSource(input, source *schema.Schema) []string {
	columns := make(map[string]bool)
	for _, f := range source.Fields {
		columns[topLevel(f.Path)] = true
	}
	missing := make(map[string]bool)
	for _, f := range input.Fields {
		if top := topLevel(f.Path); !columns[top] {
			missing[top] = true
		}
	}
	var warnings []string
	for name := range missing {
		warnings = append(warnings, fmt.Sprintf("input field %s is not a column of the collaborator source", name))
	}
	sort.Strings(warnings)
	return warnings
}

func topLevel(path string) string {
	for i, r := range path {
		if r == '.' || r == '[' {
			return path[:i]
		}
	}
	return path
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
