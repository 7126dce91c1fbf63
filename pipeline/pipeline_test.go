package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/ai/tracker"
	"github.com/teranos/exemplar/am"
	"github.com/teranos/exemplar/codegen"
	"github.com/teranos/exemplar/errors"
	testdb "github.com/teranos/exemplar/internal/testing"
	"github.com/teranos/exemplar/pattern"
	"github.com/teranos/exemplar/validator"
)

const employeeExamples = `{"example_id": "emp-1", "description": "engineer", "input": {"employee_id": "E001", "first_name": "Ada", "last_name": "Lovelace", "department": "Engineering", "hire_date": "2020-01-15", "salary": 85000, "is_manager": "Yes"}, "output": {"id": "E001", "full_name": "Ada Lovelace", "dept": "Engineering", "hired": "2020-01-15", "annual_salary_usd": 85000.0, "manager": true}}
{"example_id": "emp-2", "description": "researcher", "input": {"employee_id": "E002", "first_name": "Grace", "last_name": "Hopper", "department": "Research", "hire_date": "2019-03-01", "salary": 92000, "is_manager": "No"}, "output": {"id": "E002", "full_name": "Grace Hopper", "dept": "Research", "hired": "2019-03-01", "annual_salary_usd": 92000.0, "manager": false}}
{"example_id": "emp-3", "description": "engineer", "input": {"employee_id": "E003", "first_name": "Alan", "last_name": "Turing", "department": "Engineering", "hire_date": "2021-07-30", "salary": 78000, "is_manager": "No"}, "output": {"id": "E003", "full_name": "Alan Turing", "dept": "Engineering", "hired": "2021-07-30", "annual_salary_usd": 78000.0, "manager": false}}`

// listInput is valid JSON whose input is not a record.
const listInput = `{"example_id": "emp-bad", "description": "", "input": ["E004", "Bad"], "output": {"id": "E004"}}`

// writeProject lays out a project with the given example documents and
// returns its directory.
func writeProject(t *testing.T, name string, docs []string, extra string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "examples"), 0755))

	var paths []string
	for i, doc := range docs {
		rel := fmt.Sprintf("examples/%02d.json", i+1)
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(doc), 0644))
		paths = append(paths, fmt.Sprintf("%q", rel))
	}
	descriptor := fmt.Sprintf("name = %q\npackage = \"employees\"\nexamples = [%s]\n%s",
		name, strings.Join(paths, ", "), extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exemplar.toml"), []byte(descriptor), 0644))
	return dir
}

func employeeDocs() []string {
	return strings.Split(employeeExamples, "\n")
}

const goodSource = `package employees

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
	return Output{ID: in.EmployeeID, FullName: strings.Join([]string{in.FirstName, in.LastName}, " ")}, nil
}
`

const goodModel = `package employees

type Input struct {
	EmployeeID string
	FirstName  string
	LastName   string
}

type Output struct {
	ID       string
	FullName string
}
`

const goodTests = `package employees

import "testing"

func TestNewMapper(t *testing.T) {
	if NewMapper(nil) == nil {
		t.Fatal("nil mapper")
	}
}
`

// stubBackend returns the same plan and implementation for every call.
type stubBackend struct {
	source string
	calls  atomic.Int32
}

func (b *stubBackend) Plan(_ context.Context, req codegen.PlanRequest) (*codegen.Plan, error) {
	b.calls.Add(1)
	return &codegen.Plan{
		Steps: []string{"map fields"},
		Usage: codegen.Usage{Provider: "stub", Model: "stub-1", TotalTokens: 10},
	}, nil
}

func (b *stubBackend) Implement(_ context.Context, req codegen.ImplementRequest) (*codegen.Implementation, error) {
	b.calls.Add(1)
	src := b.source
	if src == "" {
		src = goodSource
	}
	return &codegen.Implementation{
		Source:    src,
		DataModel: goodModel,
		Tests:     goodTests,
		Usage:     codegen.Usage{Provider: "stub", Model: "stub-1", TotalTokens: 90},
	}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newPipeline(t *testing.T, backend codegen.Backend, tr *tracker.UsageTracker, mutate func(*am.Config)) *Pipeline {
	t.Helper()
	cfg := &am.Config{}
	cfg.Database.TrackUsage = true
	if mutate != nil {
		mutate(cfg)
	}
	clock := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	return New(Options{
		Config:  cfg,
		Backend: backend,
		Tracker: tr,
		Version: "1.2.0",
		Clock:   func() time.Time { return clock },
		Sleep:   noSleep,
	}, nil)
}

func TestAnalyze_Employees(t *testing.T) {
	dir := writeProject(t, "employees", append(employeeDocs(), listInput), "")

	a, err := newPipeline(t, nil, nil, nil).Analyze(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, a.Examples, 3)
	require.Len(t, a.Skipped, 1)
	assert.True(t, errors.Is(a.Skipped[0], errors.ErrSchemaInference))
	assert.Contains(t, a.Skipped[0].Error(), "emp-bad")
	assert.Nil(t, a.SourceSchema)

	full, ok := a.Patterns.Lookup("full_name")
	require.True(t, ok)
	assert.Equal(t, pattern.KindConcatenation, full.Kind)
	assert.Equal(t, pattern.High, full.Confidence)

	spec := a.Specification
	require.NotNil(t, spec)
	assert.Equal(t, "employees", spec.Name)
	assert.Equal(t, "employees", spec.Contract.Package)
	assert.Len(t, spec.WorkedExamples, 3)
	assert.Empty(t, spec.Unresolved)
}

func TestAnalyze_InsufficientExamples(t *testing.T) {
	docs := employeeDocs()
	dir := writeProject(t, "employees", []string{docs[0], listInput, `{"example_id": "broken"`}, "")

	_, err := newPipeline(t, nil, nil, nil).Analyze(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientExamples))

	var ie *InsufficientExamplesError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Usable)
	assert.Equal(t, 2, ie.Required)
	assert.Len(t, ie.Skipped, 2)
	assert.Contains(t, err.Error(), "1 usable examples, at least 2 required")
}

func TestAnalyze_MinExamplesIsConfigurable(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "")
	p := newPipeline(t, nil, nil, func(c *am.Config) { c.Detection.MinExamples = 4 })

	_, err := p.Analyze(context.Background(), dir)
	assert.True(t, errors.Is(err, errors.ErrInsufficientExamples))
}

func TestAnalyze_RequiresNewerVersion(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "")
	descriptor := filepath.Join(dir, "exemplar.toml")
	data, err := os.ReadFile(descriptor)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(descriptor, append([]byte("requires = \">= 9.0\"\n"), data...), 0644))

	_, err = newPipeline(t, nil, nil, nil).Analyze(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestAnalyze_CollaboratorCrossCheck(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(),
		"\n[collaborator]\nkind = \"csv\"\npath = \"data/employees.csv\"\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0755))
	csv := "employee_id,first_name,last_name,department,hire_date,salary\nE010,Edsger,Dijkstra,Research,2018-05-11,99000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "employees.csv"), []byte(csv), 0644))

	a, err := newPipeline(t, nil, nil, nil).Analyze(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, a.SourceSchema)
	_, ok := a.SourceSchema.Lookup("salary")
	assert.True(t, ok)
	assert.Contains(t, a.Specification.Warnings, "input field is_manager is not a column of the collaborator source")
}

func TestGenerate_EndToEnd(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "")
	tr := tracker.NewUsageTracker(testdb.CreateTestDB(t), nil)
	p := newPipeline(t, &stubBackend{}, tr, nil)

	res, err := p.Generate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Outcome.Attempts)

	out := filepath.Join(dir, "generated")
	assert.Equal(t, out, res.Written.Dir)
	for name, want := range map[string]string{
		codegen.FileImplementation: goodSource,
		codegen.FileDataModel:      goodModel,
		codegen.FileTests:          goodTests,
	} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(data), name)
	}
	spec, err := os.ReadFile(filepath.Join(out, SpecificationFile))
	require.NoError(t, err)
	assert.Contains(t, string(spec), "# Specification: employees")

	runs, err := tr.RecentRuns(context.Background(), "employees", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, tracker.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, 6, runs[0].Patterns)

	usage, err := tr.GetRunUsage(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.TotalRequests)
	assert.Equal(t, 100, usage.TotalTokens)
}

func TestGenerate_PreservesPreviousArtifacts(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "output_dir = \"out\"\n")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0755))
	impl := filepath.Join(out, codegen.FileImplementation)
	require.NoError(t, os.WriteFile(impl, []byte("package employees // hand edited\n"), 0644))

	res, err := newPipeline(t, &stubBackend{}, nil, nil).Generate(context.Background(), dir)
	require.NoError(t, err)

	backup, ok := res.Written.Backups[impl]
	require.True(t, ok)
	old, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "package employees // hand edited\n", string(old))

	cur, err := os.ReadFile(impl)
	require.NoError(t, err)
	assert.Equal(t, goodSource, string(cur))
}

func TestGenerate_ValidationFailureWritesNothing(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "")
	unsafe := strings.Replace(goodSource, "\"context\"\n", "\"context\"\n\t\"os/exec\"\n", 1) +
		"\nfunc run() *exec.Cmd { return exec.CommandContext(context.Background(), \"true\") }\n"
	backend := &stubBackend{source: unsafe}
	tr := tracker.NewUsageTracker(testdb.CreateTestDB(t), nil)

	_, err := newPipeline(t, backend, tr, nil).Generate(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidationFailure))

	var vf *codegen.ValidationFailure
	require.True(t, errors.As(err, &vf))
	assert.Equal(t, validator.RuleImportSafety, vf.Violations[0].RuleID)
	assert.Equal(t, int32(6), backend.calls.Load(), "three attempts of plan and implement")

	_, statErr := os.Stat(filepath.Join(dir, "generated"))
	assert.True(t, os.IsNotExist(statErr), "nothing written before validation passes")

	runs, err := tr.RecentRuns(context.Background(), "employees", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, tracker.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 3, runs[0].Attempts)
}

func TestGenerate_NeedsBackend(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "")
	_, err := newPipeline(t, nil, nil, nil).Generate(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no code generation backend")
}

func TestRunBatch(t *testing.T) {
	first := writeProject(t, "first", employeeDocs(), "")
	second := writeProject(t, "second", employeeDocs(), "")
	missing := filepath.Join(t.TempDir(), "missing")

	p := newPipeline(t, &stubBackend{}, nil, func(c *am.Config) { c.Batch.Workers = 2 })
	results := p.RunBatch(context.Background(), []string{first, missing, second})
	require.Len(t, results, 3)

	assert.Equal(t, first, results[0].Project)
	require.NoError(t, results[0].Err)
	assert.FileExists(t, filepath.Join(first, "generated", codegen.FileImplementation))

	assert.Equal(t, missing, results[1].Project)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Result)

	require.NoError(t, results[2].Err)
	assert.NotEqual(t, results[0].Result.RunID, results[2].Result.RunID)
}

func TestRunBatch_Cancelled(t *testing.T) {
	first := writeProject(t, "first", employeeDocs(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newPipeline(t, &stubBackend{}, nil, nil).RunBatch(ctx, []string{first})
	require.Len(t, results, 1)
	assert.True(t, errors.Is(results[0].Err, context.Canceled))
	assert.NoDirExists(t, filepath.Join(first, "generated"))
}

func TestWorkers(t *testing.T) {
	p := newPipeline(t, nil, nil, func(c *am.Config) { c.Batch.Workers = 4 })
	assert.Equal(t, 4, p.workers(10))
	assert.Equal(t, 2, p.workers(2))
}

func TestMemoryWarning(t *testing.T) {
	assert.Empty(t, memoryWarning(40, 8<<30, 4, 90))
	assert.Contains(t, memoryWarning(95, 8<<30, 4, 90), "above the 90% threshold")
	assert.Contains(t, memoryWarning(40, 512<<20, 4, 90), "4 workers may need 1024 MiB")
	assert.Empty(t, memoryWarning(99, 8<<30, 1, 0), "threshold 0 disables the usage check")
}

func TestOutputDir(t *testing.T) {
	dir := writeProject(t, "employees", employeeDocs(), "")
	a, err := newPipeline(t, nil, nil, nil).Analyze(context.Background(), dir)
	require.NoError(t, err)

	abs := t.TempDir()
	p := newPipeline(t, nil, nil, func(c *am.Config) { c.Artifacts.OutputDir = abs })
	assert.Equal(t, filepath.Join(abs, "employees"), p.outputDir(a.Project))
}
