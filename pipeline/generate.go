package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/artifact"
	"github.com/teranos/exemplar/codegen"
	"github.com/teranos/exemplar/db"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/logger"
)

// SpecificationFile is the rendered specification written next to the code.
const SpecificationFile = "SPECIFICATION.md"

// Result is one completed generation.
type Result struct {
	RunID    string
	Analysis *Analysis
	Outcome  *codegen.Outcome
	Written  *artifact.WriteResult
}

// Generate runs the full pipeline for the project at projectPath.
func (p *Pipeline) Generate(ctx context.Context, projectPath string) (*Result, error) {
	proj, err := example.LoadProject(projectPath)
	if err != nil {
		return nil, err
	}
	return p.GenerateProject(ctx, proj)
}

// GenerateProject analyzes proj, generates and validates an implementation,
// and writes it. Nothing is written unless validation passes.
func (p *Pipeline) GenerateProject(ctx context.Context, proj *example.Project) (*Result, error) {
	if p.backend == nil {
		return nil, errors.WithHint(errors.New("no code generation backend configured"),
			"set backend.provider in am.toml or export an API key")
	}

	analysis, err := p.AnalyzeProject(ctx, proj)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(logger.WithProject(ctx, proj.Name), runID)
	log := logger.WithContext(ctx, p.logger)

	p.startRun(ctx, &tracker.Run{
		ID:         runID,
		Project:    proj.Name,
		StartedAt:  time.Now(),
		Patterns:   len(analysis.Patterns.Patterns),
		Unresolved: len(analysis.Specification.Unresolved),
	})

	orch := codegen.NewOrchestrator(p.backend, p.validator, p.orchestratorOptions(proj.Name), p.logger.Named("codegen"))
	outcome, err := orch.GenerateRun(ctx, runID, analysis.Specification)
	if err != nil {
		p.finishRun(ctx, runID, runStatus(ctx, err), attemptsOf(err), err)
		return nil, errors.Wrapf(err, "generate %s", proj.Name)
	}

	written, err := p.writer.Write(ctx, p.outputDir(proj), artifacts(outcome))
	if err != nil {
		p.finishRun(ctx, runID, runStatus(ctx, err), outcome.Attempts, err)
		return nil, errors.Wrapf(err, "write artifacts for %s", proj.Name)
	}
	p.finishRun(ctx, runID, tracker.RunStatusSucceeded, outcome.Attempts, nil)

	log.Infow("generation complete",
		logger.FieldAttempt, outcome.Attempts,
		logger.FieldPath, written.Dir,
		logger.FieldCount, len(written.Written),
		"backups", len(written.Backups))
	return &Result{RunID: runID, Analysis: analysis, Outcome: outcome, Written: written}, nil
}

func artifacts(o *codegen.Outcome) []artifact.Artifact {
	arts := []artifact.Artifact{
		{Name: codegen.FileImplementation, Kind: artifact.KindImplementation, Content: []byte(o.Implementation.Source)},
	}
	if o.Implementation.DataModel != "" {
		arts = append(arts, artifact.Artifact{Name: codegen.FileDataModel, Kind: artifact.KindDataModel, Content: []byte(o.Implementation.DataModel)})
	}
	if o.Implementation.Tests != "" {
		arts = append(arts, artifact.Artifact{Name: codegen.FileTests, Kind: artifact.KindTests, Content: []byte(o.Implementation.Tests)})
	}
	return append(arts, artifact.Artifact{
		Name:    SpecificationFile,
		Kind:    artifact.KindSpecification,
		Content: []byte(o.Specification.Render()),
	})
}

func (p *Pipeline) orchestratorOptions(project string) codegen.Options {
	opts := codegen.Options{
		MaxAttempts: p.cfg.Generation.MaxAttempts,
		CallRetries: p.cfg.Generation.CallRetries,
		CallTimeout: p.cfg.BackendTimeout(),
		BackoffBase: p.cfg.BackoffBase(),
		BackoffMax:  p.cfg.BackoffMax(),
		Project:     project,
		Sleep:       p.sleep,
	}
	if p.tracker != nil && p.cfg.Database.TrackUsage {
		opts.Usage = p.tracker
	}
	return opts
}

func (p *Pipeline) startRun(ctx context.Context, run *tracker.Run) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.StartRun(context.WithoutCancel(ctx), run); err != nil {
		p.recordFailed(run.ID, err)
	}
}

func (p *Pipeline) finishRun(ctx context.Context, id, status string, attempts int, runErr error) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.FinishRun(context.WithoutCancel(ctx), id, status, attempts, time.Now(), runErr); err != nil {
		p.recordFailed(id, err)
	}
}

// recordFailed logs a tracking error. A closed database means the process
// is shutting down, so that case is only logged at debug level.
func (p *Pipeline) recordFailed(id string, err error) {
	if db.IsDatabaseClosed(err) {
		p.logger.Debugw("usage database closed, run not recorded", logger.FieldRunID, id)
		return
	}
	p.logger.Warnw("failed to record run", logger.FieldRunID, id, logger.FieldError, err)
}

func runStatus(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return tracker.RunStatusCancelled
	}
	return tracker.RunStatusFailed
}

// attemptsOf reports how many attempts a failed generation completed.
func attemptsOf(err error) int {
	var vf *codegen.ValidationFailure
	if errors.As(err, &vf) {
		return vf.Attempts
	}
	return 0
}
