package codegen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/specification"
	"github.com/teranos/exemplar/validator"
)

// Generated file names, relative to the output directory.
const (
	FileImplementation = "transform.go"
	FileDataModel      = "model.go"
	FileTests          = "transform_test.go"
)

// Call phases, as recorded in usage.
const (
	PhasePlan      = "plan"
	PhaseImplement = "implement"
)

const (
	DefaultMaxAttempts = 3
	DefaultCallRetries = 3
	DefaultCallTimeout = 120 * time.Second
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// UsageRecorder receives one record per backend call.
// *tracker.UsageTracker satisfies it.
type UsageRecorder interface {
	TrackUsage(ctx context.Context, usage *tracker.GenerationUsage) error
}

// Options configures an Orchestrator. Zero values take the defaults above.
type Options struct {
	MaxAttempts int
	CallRetries int // tries per backend call, including the first
	CallTimeout time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Project labels usage records.
	Project string
	// Usage is optional.
	Usage UsageRecorder
	// Sleep waits between retries. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome is a validated generation.
type Outcome struct {
	RunID          string
	Attempts       int
	Plan           *Plan
	Implementation *Implementation
	// Validation covers the implementation and data model; TestValidation
	// the tests. Both passed. Warnings are kept for reporting.
	Validation     *validator.Result
	TestValidation *validator.Result
	// Specification is the final specification, including every
	// violation fed back by rejected attempts.
	Specification *specification.Specification
}

// Files returns the generated sources keyed by file name.
func (o *Outcome) Files() map[string][]byte {
	return o.Implementation.files()
}

// ValidationFailure is returned when every attempt was rejected.
// It unwraps to errors.ErrValidationFailure.
type ValidationFailure struct {
	Attempts   int
	Violations []validator.Violation
	// Last is the final rejected implementation.
	Last *Implementation
}

func (e *ValidationFailure) Error() string {
	msg := fmt.Sprintf("generated code failed validation after %d attempts with %d errors", e.Attempts, len(e.Violations))
	if len(e.Violations) > 0 {
		msg += "; first: " + e.Violations[0].String()
	}
	return msg
}

// Unwrap lets errors.Is match ErrValidationFailure.
func (e *ValidationFailure) Unwrap() error { return errors.ErrValidationFailure }

// Orchestrator runs the plan, implement and validate loop.
type Orchestrator struct {
	backend   Backend
	validator *validator.Validator
	opts      Options
	logger    *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator. log may be nil.
func NewOrchestrator(backend Backend, v *validator.Validator, opts Options, log *zap.SugaredLogger) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.CallRetries <= 0 {
		opts.CallRetries = DefaultCallRetries
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Orchestrator{backend: backend, validator: v, opts: opts, logger: logger.Nop(log)}
}

// Generate runs attempts until one validates or MaxAttempts is reached.
// Backend errors end the run at once, after the per-call retries.
func (o *Orchestrator) Generate(ctx context.Context, spec *specification.Specification) (*Outcome, error) {
	return o.GenerateRun(ctx, uuid.NewString(), spec)
}

// GenerateRun is Generate with a caller-chosen run id.
func (o *Orchestrator) GenerateRun(ctx context.Context, runID string, spec *specification.Specification) (*Outcome, error) {
	if spec == nil {
		return nil, errors.New("generate needs a specification")
	}
	log := o.logger.With(logger.FieldRunID, runID)
	current := spec

	var failure *ValidationFailure
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		log.Infow("generation attempt", logger.FieldAttempt, attempt, "max_attempts", o.opts.MaxAttempts)

		var plan *Plan
		err := o.call(ctx, runID, PhasePlan, attempt, func(ctx context.Context) (Usage, error) {
			p, err := o.backend.Plan(ctx, PlanRequest{Specification: current, Attempt: attempt})
			if err != nil {
				return Usage{}, err
			}
			if p == nil {
				return Usage{}, errors.Terminal(errors.New("backend returned no plan"))
			}
			plan = p
			return p.Usage, nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "attempt %d: plan", attempt)
		}

		var impl *Implementation
		err = o.call(ctx, runID, PhaseImplement, attempt, func(ctx context.Context) (Usage, error) {
			im, err := o.backend.Implement(ctx, ImplementRequest{Specification: current, Plan: plan, Attempt: attempt})
			if err != nil {
				return Usage{}, err
			}
			if im == nil {
				return Usage{}, errors.Terminal(errors.New("backend returned no implementation"))
			}
			impl = im
			return im.Usage, nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "attempt %d: implement", attempt)
		}

		module, tests := o.validate(impl)
		rejected := append(module.Errors(), tests.Errors()...)
		if len(rejected) == 0 {
			log.Infow("generation validated",
				logger.FieldAttempt, attempt,
				"warnings", len(module.Warnings())+len(tests.Warnings()))
			return &Outcome{
				RunID:          runID,
				Attempts:       attempt,
				Plan:           plan,
				Implementation: impl,
				Validation:     module,
				TestValidation: tests,
				Specification:  current,
			}, nil
		}

		for _, v := range rejected {
			log.Debugw("violation", logger.FieldRuleID, v.RuleID, logger.FieldFile, v.Location(), "message", v.Message)
		}
		log.Warnw("generation rejected", logger.FieldAttempt, attempt, logger.FieldCount, len(rejected))
		failure = &ValidationFailure{Attempts: attempt, Violations: rejected, Last: impl}
		current = current.WithViolations(rejected)
	}
	return nil, failure
}

// validate checks the implementation and data model as one module and the
// tests with the test profile.
func (o *Orchestrator) validate(impl *Implementation) (module, tests *validator.Result) {
	files := impl.files()
	delete(files, FileTests)
	module = o.validator.Validate(files)

	tests = &validator.Result{Passed: true}
	if impl.Tests != "" {
		tests = o.validator.ValidateTests(map[string][]byte{FileTests: []byte(impl.Tests)})
	}
	return module, tests
}

func (impl *Implementation) files() map[string][]byte {
	files := map[string][]byte{FileImplementation: []byte(impl.Source)}
	if impl.DataModel != "" {
		files[FileDataModel] = []byte(impl.DataModel)
	}
	if impl.Tests != "" {
		files[FileTests] = []byte(impl.Tests)
	}
	return files
}

// call runs fn under the per-call timeout, retrying transient failures
// with exponential backoff. Every try is recorded.
func (o *Orchestrator) call(ctx context.Context, runID, phase string, attempt int, fn func(context.Context) (Usage, error)) error {
	for try := 1; ; try++ {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		start := time.Now()
		usage, err := fn(callCtx)
		cancel()
		o.record(ctx, runID, phase, attempt, start, usage, err)

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Terminal(errors.WithSecondaryError(ctx.Err(), err))
		}
		if !errors.IsTransient(err) || try >= o.opts.CallRetries {
			return err
		}

		wait := backoff(o.opts.BackoffBase, o.opts.BackoffMax, try)
		o.logger.Warnw("transient backend error, retrying",
			logger.FieldRunID, runID,
			logger.FieldPhase, phase,
			logger.FieldAttempt, attempt,
			"try", try,
			"wait", wait,
			logger.FieldError, err)
		if err := o.opts.Sleep(ctx, wait); err != nil {
			return errors.Terminal(err)
		}
	}
}

// backoff is base * 2^(try-1), capped at ceiling.
func backoff(base, ceiling time.Duration, try int) time.Duration {
	d := base
	for i := 1; i < try; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) record(ctx context.Context, runID, phase string, attempt int, start time.Time, u Usage, callErr error) {
	if o.opts.Usage == nil {
		return
	}
	finished := time.Now()
	rec := &tracker.GenerationUsage{
		RunID:             runID,
		Project:           o.opts.Project,
		Phase:             phase,
		Attempt:           attempt,
		ModelProvider:     u.Provider,
		ModelName:         u.Model,
		RequestTimestamp:  start,
		ResponseTimestamp: &finished,
		Success:           callErr == nil,
	}
	if d, ok := o.backend.(Describer); ok {
		if rec.ModelProvider == "" {
			rec.ModelProvider = d.Provider()
		}
		if rec.ModelName == "" {
			rec.ModelName = d.Model()
		}
	}
	if callErr != nil {
		msg := callErr.Error()
		rec.ErrorMessage = &msg
	} else {
		prompt, completion, total, cost := u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.Cost
		rec.PromptTokens = &prompt
		rec.CompletionTokens = &completion
		rec.TokensUsed = &total
		rec.Cost = &cost
	}
	if err := o.opts.Usage.TrackUsage(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warnw("failed to record usage", logger.FieldRunID, runID, logger.FieldError, err)
	}
}
