// Package pipeline wires the stages together: examples are analyzed into a
// specification, the specification is generated into validated code, and
// the code is written as artifacts.
//
// Artifacts are written only after validation passes. A cancelled or
// failed run leaves the output directory untouched.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/am"
	"github.com/teranos/exemplar/artifact"
	"github.com/teranos/exemplar/codegen"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/pattern"
	"github.com/teranos/exemplar/schema"
	"github.com/teranos/exemplar/validator"
)

// DefaultMinExamples is the smallest usable example set.
const DefaultMinExamples = 2

// Options wires a Pipeline.
type Options struct {
	Config *am.Config
	// Backend is required by Generate and RunBatch, not by Analyze.
	Backend codegen.Backend
	// Tracker records runs and backend usage. Optional.
	Tracker *tracker.UsageTracker
	// Version is the running binary's version, checked against a
	// project's requires constraint.
	Version string
	// Clock stamps artifact backups. Defaults to time.Now.
	Clock func() time.Time
	// Sleep overrides the backoff wait between backend retries.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pipeline runs analyses and generations. It holds no per-run state and
// is safe for concurrent use.
type Pipeline struct {
	cfg        *am.Config
	inferencer *schema.Inferencer
	detector   *pattern.Detector
	validator  *validator.Validator
	writer     *artifact.Writer
	backend    codegen.Backend
	tracker    *tracker.UsageTracker
	version    string
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.SugaredLogger
}

// New creates a pipeline. log may be nil.
func New(opts Options, log *zap.SugaredLogger) *Pipeline {
	cfg := opts.Config
	if cfg == nil {
		cfg = &am.Config{}
	}
	log = logger.Nop(log)
	return &Pipeline{
		cfg: cfg,
		inferencer: schema.NewInferencer(schema.Options{
			SampleLimit:      cfg.Detection.SampleLimit,
			MixedSampleLimit: cfg.Detection.MixedSampleLimit,
		}, log.Named("schema")),
		detector: pattern.NewDetector(pattern.Options{
			MaxMappingValues: cfg.Detection.MaxMappingValues,
		}, log.Named("pattern")),
		validator: validator.New(ValidatorConfig(cfg), log.Named("validator")),
		writer: artifact.NewWriter(artifact.Options{
			BackupTimeFormat: cfg.Artifacts.BackupTimeFormat,
			GitCheckpoint:    cfg.Artifacts.GitCheckpoint,
			AuthorName:       cfg.Artifacts.AuthorName,
			AuthorEmail:      cfg.Artifacts.AuthorEmail,
			Clock:            opts.Clock,
		}, log.Named("artifact")),
		backend: opts.Backend,
		tracker: opts.Tracker,
		version: opts.Version,
		sleep:   opts.Sleep,
		logger:  log,
	}
}

// ValidatorConfig maps the validator section of cfg.
func ValidatorConfig(cfg *am.Config) validator.Config {
	v := cfg.Validator
	return validator.Config{
		InterfaceName:            v.InterfaceName,
		MethodName:               v.MethodName,
		MethodParams:             v.MethodParams,
		MethodResults:            v.MethodResults,
		MaxCyclomatic:            v.MaxCyclomatic,
		MaxFunctionLines:         v.MaxFunctionLines,
		MaxFileLines:             v.MaxFileLines,
		DeniedImports:            v.DeniedImports,
		AllowedImports:           v.AllowedImports,
		CollaboratorConstructors: v.CollaboratorConstructors,
	}
}

// Validator returns the pipeline's constraint validator.
func (p *Pipeline) Validator() *validator.Validator { return p.validator }

func (p *Pipeline) minExamples() int {
	if p.cfg.Detection.MinExamples > 0 {
		return p.cfg.Detection.MinExamples
	}
	return DefaultMinExamples
}

// outputDir is where a project's artifacts go: the descriptor's
// output_dir, else the configured default under the project directory.
func (p *Pipeline) outputDir(proj *example.Project) string {
	if proj.OutputDir != "" {
		return proj.OutputDir
	}
	dir := p.cfg.Artifacts.OutputDir
	if dir == "" {
		dir = "generated"
	}
	if filepath.IsAbs(dir) {
		return filepath.Join(dir, proj.Name)
	}
	return proj.Resolve(dir)
}
