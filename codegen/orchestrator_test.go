package codegen

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/schema"
	"github.com/teranos/exemplar/specification"
	"github.com/teranos/exemplar/validator"
)

const goodSource = `package transform

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type Mapper struct {
	log *zap.SugaredLogger
}

func NewMapper(log *zap.SugaredLogger) *Mapper {
	return &Mapper{log: log}
}

func (m *Mapper) Transform(ctx context.Context, in Input) (Output, error) {
	if err := ctx.Err(); err != nil {
		m.log.Warnw("transform cancelled", "error", err)
		return Output{}, err
	}
	return Output{FullName: strings.Join([]string{in.FirstName, in.LastName}, " ")}, nil
}
`

const goodModel = `package transform

type Input struct {
	FirstName string ` + "`json:\"first_name\"`" + `
	LastName  string ` + "`json:\"last_name\"`" + `
}

type Output struct {
	FullName string ` + "`json:\"full_name\"`" + `
}
`

const goodTests = `package transform

import (
	"context"
	"testing"
)

func TestTransform(t *testing.T) {
	out, err := NewMapper(nil).Transform(context.Background(), Input{FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatal(err)
	}
	if out.FullName != "Ada Lovelace" {
		t.Fatalf("got %q", out.FullName)
	}
}
`

// unsafeSource imports os/exec, which the validator always rejects.
var unsafeSource = strings.Replace(goodSource, "\"context\"\n", "\"context\"\n\t\"os/exec\"\n", 1) +
	"\nfunc (m *Mapper) shell() *exec.Cmd { return exec.CommandContext(context.Background(), \"true\") }\n"

type step struct {
	plan *Plan
	impl *Implementation
	err  error
}

// fakeBackend replays scripted plan and implement results in order.
type fakeBackend struct {
	mu        sync.Mutex
	plans     []step
	impls     []step
	planReqs  []PlanRequest
	implReqs  []ImplementRequest
	planCalls int
	implCalls int
}

func (f *fakeBackend) Plan(_ context.Context, req PlanRequest) (*Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planReqs = append(f.planReqs, req)
	s := f.plans[min(f.planCalls, len(f.plans)-1)]
	f.planCalls++
	return s.plan, s.err
}

func (f *fakeBackend) Implement(_ context.Context, req ImplementRequest) (*Implementation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.implReqs = append(f.implReqs, req)
	s := f.impls[min(f.implCalls, len(f.impls)-1)]
	f.implCalls++
	return s.impl, s.err
}

func (f *fakeBackend) Provider() string { return "fake" }
func (f *fakeBackend) Model() string    { return "fake-model" }

type memoryRecorder struct {
	mu      sync.Mutex
	records []*tracker.GenerationUsage
}

func (r *memoryRecorder) TrackUsage(_ context.Context, u *tracker.GenerationUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, u)
	return nil
}

func testSpec() *specification.Specification {
	return &specification.Specification{
		Name: "employees",
		Contract: specification.Contract{
			Package:       "transform",
			InterfaceName: "Transformer",
			MethodName:    "Transform",
			Signature:     "Transform(ctx context.Context, in Input) (Output, error)",
		},
		InputSchema:  &schema.Schema{},
		OutputSchema: &schema.Schema{},
	}
}

func okPlan() *Plan {
	return &Plan{
		Steps:         []string{"join first and last name"},
		FieldMappings: []FieldMapping{{Target: "full_name", Sources: []string{"first_name", "last_name"}, Pattern: "concatenation"}},
		Usage:         Usage{Provider: "fake", Model: "fake-model", TotalTokens: 100, Cost: 0.001},
	}
}

func impl(src string) *Implementation {
	return &Implementation{
		Source:    src,
		DataModel: goodModel,
		Tests:     goodTests,
		Usage:     Usage{Provider: "fake", Model: "fake-model", TotalTokens: 900, Cost: 0.01},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newOrchestrator(b Backend, opts Options) *Orchestrator {
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	return NewOrchestrator(b, validator.New(validator.Config{}, nil), opts, nil)
}

func TestGenerate_FirstAttemptPasses(t *testing.T) {
	b := &fakeBackend{
		plans: []step{{plan: okPlan()}},
		impls: []step{{impl: impl(goodSource)}},
	}
	rec := &memoryRecorder{}
	out, err := newOrchestrator(b, Options{Usage: rec, Project: "employees"}).Generate(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Attempts)
	assert.NotEmpty(t, out.RunID)
	assert.True(t, out.Validation.Passed)
	assert.True(t, out.TestValidation.Passed)
	assert.Empty(t, out.Specification.PriorViolations)
	assert.Len(t, out.Files(), 3)
	assert.Same(t, b.planReqs[0].Specification, b.implReqs[0].Specification)
	assert.Equal(t, "join first and last name", b.implReqs[0].Plan.Steps[0])

	require.Len(t, rec.records, 2)
	assert.Equal(t, PhasePlan, rec.records[0].Phase)
	assert.Equal(t, PhaseImplement, rec.records[1].Phase)
	for _, r := range rec.records {
		assert.True(t, r.Success)
		assert.Equal(t, out.RunID, r.RunID)
		assert.Equal(t, "employees", r.Project)
		assert.Equal(t, "fake-model", r.ModelName)
	}
	assert.Equal(t, 900, *rec.records[1].TokensUsed)
}

func TestGenerate_RepairLoopFeedsViolationsBack(t *testing.T) {
	b := &fakeBackend{
		plans: []step{{plan: okPlan()}},
		impls: []step{{impl: impl(unsafeSource)}, {impl: impl(goodSource)}},
	}
	spec := testSpec()
	out, err := newOrchestrator(b, Options{}).Generate(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Attempts)
	require.Len(t, b.implReqs, 2)
	assert.Empty(t, b.implReqs[0].Specification.PriorViolations)

	prior := b.implReqs[1].Specification.PriorViolations
	require.NotEmpty(t, prior)
	for _, v := range prior {
		assert.Equal(t, validator.SeverityError, v.Severity)
	}
	assert.Equal(t, validator.RuleImportSafety, prior[0].RuleID)
	assert.Equal(t, 2, b.planReqs[1].Attempt)

	// The caller's specification is never modified.
	assert.Empty(t, spec.PriorViolations)
	assert.Equal(t, prior, out.Specification.PriorViolations)
}

func TestGenerate_ExhaustsAttempts(t *testing.T) {
	b := &fakeBackend{
		plans: []step{{plan: okPlan()}},
		impls: []step{{impl: impl(unsafeSource)}},
	}
	_, err := newOrchestrator(b, Options{MaxAttempts: 3}).Generate(context.Background(), testSpec())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidationFailure))

	var vf *ValidationFailure
	require.True(t, errors.As(err, &vf))
	assert.Equal(t, 3, vf.Attempts)
	require.NotEmpty(t, vf.Violations)
	assert.Equal(t, validator.RuleImportSafety, vf.Violations[0].RuleID)
	assert.Contains(t, err.Error(), "os/exec")
	assert.Equal(t, 3, b.implCalls)

	// Violations accumulate across attempts.
	assert.Len(t, b.implReqs[2].Specification.PriorViolations, 2*len(vf.Violations))
}

func TestGenerate_TestFilesUseTestProfile(t *testing.T) {
	// Tests carry no Transformer and would fail conformance as a module.
	b := &fakeBackend{
		plans: []step{{plan: okPlan()}},
		impls: []step{{impl: impl(goodSource)}},
	}
	out, err := newOrchestrator(b, Options{}).Generate(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Empty(t, out.TestValidation.ByRule(validator.RuleInterfaceConformance))
}

func TestGenerate_UnsafeTestsAreRejected(t *testing.T) {
	bad := impl(goodSource)
	bad.Tests = strings.Replace(goodTests, "\"testing\"\n", "\"testing\"\n\t\"unsafe\"\n", 1) +
		"\nvar _ = unsafe.Sizeof(0)\n"
	b := &fakeBackend{
		plans: []step{{plan: okPlan()}},
		impls: []step{{impl: bad}},
	}
	_, err := newOrchestrator(b, Options{MaxAttempts: 1}).Generate(context.Background(), testSpec())
	var vf *ValidationFailure
	require.True(t, errors.As(err, &vf))
	assert.Equal(t, FileTests, vf.Violations[0].File)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	b := &fakeBackend{
		plans: []step{
			{err: errors.Transient(errors.New("status 503"))},
			{err: errors.Transient(errors.New("status 429"))},
			{plan: okPlan()},
		},
		impls: []step{{impl: impl(goodSource)}},
	}
	var waits []time.Duration
	rec := &memoryRecorder{}
	o := newOrchestrator(b, Options{
		Usage: rec,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	out, err := o.Generate(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)

	require.Len(t, rec.records, 4)
	assert.False(t, rec.records[0].Success)
	require.NotNil(t, rec.records[0].ErrorMessage)
	assert.Equal(t, "status 503", *rec.records[0].ErrorMessage)
	assert.Equal(t, "fake", rec.records[0].ModelProvider)
	assert.Nil(t, rec.records[0].TokensUsed)
	assert.True(t, rec.records[2].Success)
}

func TestGenerate_TransientRetriesAreBounded(t *testing.T) {
	b := &fakeBackend{
		plans: []step{{err: errors.Transient(errors.New("status 503"))}},
		impls: []step{{impl: impl(goodSource)}},
	}
	_, err := newOrchestrator(b, Options{CallRetries: 3}).Generate(context.Background(), testSpec())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 3, b.planCalls)
	assert.Zero(t, b.implCalls)
}

func TestGenerate_TerminalErrorSurfacesImmediately(t *testing.T) {
	b := &fakeBackend{
		plans: []step{{plan: okPlan()}},
		impls: []step{{err: errors.Terminal(errors.New("status 401"))}},
	}
	_, err := newOrchestrator(b, Options{}).Generate(context.Background(), testSpec())
	require.Error(t, err)
	assert.True(t, errors.IsTerminal(err))
	assert.False(t, errors.Is(err, errors.ErrValidationFailure))
	assert.Equal(t, 1, b.implCalls)
	assert.Contains(t, err.Error(), "attempt 1: implement")
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &fakeBackend{
		plans: []step{{err: errors.Transient(errors.New("status 503"))}},
		impls: []step{{impl: impl(goodSource)}},
	}
	o := newOrchestrator(b, Options{
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	_, err := o.Generate(ctx, testSpec())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.IsTerminal(err))
	assert.Equal(t, 1, b.planCalls)
}

func TestGenerate_EmptyBackendResultIsTerminal(t *testing.T) {
	b := &fakeBackend{plans: []step{{}}, impls: []step{{impl: impl(goodSource)}}}
	_, err := newOrchestrator(b, Options{}).Generate(context.Background(), testSpec())
	require.Error(t, err)
	assert.True(t, errors.IsTerminal(err))
	assert.Contains(t, err.Error(), "backend returned no plan")
	assert.Equal(t, 1, b.planCalls)
	assert.Zero(t, b.implCalls)

	b = &fakeBackend{plans: []step{{plan: okPlan()}}, impls: []step{{}}}
	_, err = newOrchestrator(b, Options{}).Generate(context.Background(), testSpec())
	require.Error(t, err)
	assert.True(t, errors.IsTerminal(err))
	assert.Contains(t, err.Error(), "backend returned no implementation")
	assert.Equal(t, 1, b.implCalls)
}

func TestGenerate_NilSpecification(t *testing.T) {
	_, err := newOrchestrator(&fakeBackend{}, Options{}).Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	base, ceiling := time.Second, 30*time.Second
	assert.Equal(t, time.Second, backoff(base, ceiling, 1))
	assert.Equal(t, 2*time.Second, backoff(base, ceiling, 2))
	assert.Equal(t, 16*time.Second, backoff(base, ceiling, 5))
	assert.Equal(t, 30*time.Second, backoff(base, ceiling, 6))
	assert.Equal(t, 30*time.Second, backoff(base, ceiling, 40))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
