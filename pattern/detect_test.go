package pattern

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/schema"
)

type obj = map[string]interface{}

func ex(id string, in, out obj) *example.Example {
	return &example.Example{ID: id, Input: in, Output: out}
}

func detect(t *testing.T, examples ...*example.Example) *Result {
	t.Helper()
	inf := schema.NewInferencer(schema.Options{}, nil)
	var ins, outs []schema.Record
	for _, e := range examples {
		ins = append(ins, schema.Record{ID: e.ID, Value: e.Input})
		outs = append(outs, schema.Record{ID: e.ID, Value: e.Output})
	}
	inSchema, err := inf.Infer(ins)
	require.NoError(t, err)
	outSchema, err := inf.Infer(outs)
	require.NoError(t, err)

	res, err := NewDetector(Options{}, nil).Detect(examples, inSchema, outSchema)
	require.NoError(t, err)
	return res
}

func employees() []*example.Example {
	return []*example.Example{
		ex("emp-1",
			obj{"employee_id": "E001", "first_name": "Ada", "last_name": "Lovelace", "department": "Engineering", "hire_date": "2020-01-15", "salary": int64(85000), "is_manager": "Yes"},
			obj{"id": "E001", "full_name": "Ada Lovelace", "dept": "Engineering", "hired": "2020-01-15", "annual_salary_usd": 85000.0, "manager": true}),
		ex("emp-2",
			obj{"employee_id": "E002", "first_name": "Grace", "last_name": "Hopper", "department": "Research", "hire_date": "2019-03-01", "salary": int64(92000), "is_manager": "No"},
			obj{"id": "E002", "full_name": "Grace Hopper", "dept": "Research", "hired": "2019-03-01", "annual_salary_usd": 92000.0, "manager": false}),
		ex("emp-3",
			obj{"employee_id": "E003", "first_name": "Alan", "last_name": "Turing", "department": "Engineering", "hire_date": "2021-07-30", "salary": int64(78000), "is_manager": "No"},
			obj{"id": "E003", "full_name": "Alan Turing", "dept": "Engineering", "hired": "2021-07-30", "annual_salary_usd": 78000.0, "manager": false}),
	}
}

func TestDetectEmployees(t *testing.T) {
	res := detect(t, employees()...)

	want := []struct {
		target  string
		kind    Kind
		sources []string
	}{
		{"annual_salary_usd", KindTypeConversion, []string{"salary"}},
		{"dept", KindRename, []string{"department"}},
		{"full_name", KindConcatenation, []string{"first_name", "last_name"}},
		{"hired", KindRename, []string{"hire_date"}},
		{"id", KindRename, []string{"employee_id"}},
		{"manager", KindBooleanNormalization, []string{"is_manager"}},
	}
	require.Len(t, res.Patterns, len(want))
	assert.Empty(t, res.Warnings)

	for i, w := range want {
		p := res.Patterns[i]
		assert.Equal(t, w.target, p.TargetPath)
		assert.Equal(t, w.kind, p.Kind, w.target)
		assert.Equal(t, w.sources, p.SourcePaths, w.target)
		assert.Equal(t, High, p.Confidence, w.target)
		assert.False(t, p.Ambiguous, w.target)
		assert.True(t, p.Accepted(), w.target)
		assert.Len(t, p.Evidence, 3, w.target)
	}

	full, _ := res.Lookup("full_name")
	assert.Equal(t, " ", full.Params.Separator)

	salary, _ := res.Lookup("annual_salary_usd")
	assert.Equal(t, schema.KindFloat, salary.Params.TargetKind)
	assert.Equal(t, "float64", salary.Params.TargetType)

	mgr, _ := res.Lookup("manager")
	assert.Equal(t, []MappingEntry{{From: "No", To: false}, {From: "Yes", To: true}}, mgr.Params.Mapping)
	assert.Equal(t, Evidence{ExampleID: "emp-1", Inputs: []interface{}{"Yes"}, Output: true}, mgr.Evidence[0])
}

func TestDetectDeterministic(t *testing.T) {
	first := detect(t, employees()...)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, detect(t, employees()...))
	}
}

func TestDirectCopyBeatsRename(t *testing.T) {
	res := detect(t,
		ex("a", obj{"name": "x", "alias": "x"}, obj{"name": "x"}),
		ex("b", obj{"name": "y", "alias": "y"}, obj{"name": "y"}),
	)
	p, ok := res.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, KindDirectCopy, p.Kind)
	assert.False(t, p.Ambiguous)
}

func TestAmbiguousRename(t *testing.T) {
	res := detect(t,
		ex("a", obj{"badge": "B1", "code": "B1"}, obj{"ident": "B1"}),
		ex("b", obj{"badge": "B2", "code": "B2"}, obj{"ident": "B2"}),
	)
	p, ok := res.Lookup("ident")
	require.True(t, ok)
	assert.True(t, p.Ambiguous)
	assert.True(t, p.NeedsReview, "a tie is never resolved silently")
	assert.False(t, p.Accepted())
	assert.Equal(t, []string{"badge"}, p.SourcePaths)
	require.Len(t, p.Alternatives, 1)
	assert.Equal(t, []string{"code"}, p.Alternatives[0].SourcePaths)

	require.Len(t, res.Warnings, 1)
	w := res.Warnings[0]
	assert.True(t, errors.Is(w, errors.ErrPatternAmbiguity))
	assert.Equal(t, "ident", w.TargetPath)
	assert.Contains(t, w.Error(), "badge, code")

	require.Len(t, res.Unresolved(), 1)
	assert.Equal(t, "ident", res.Unresolved()[0].TargetPath)
}

func TestConcatenationOrderAndSeparator(t *testing.T) {
	res := detect(t,
		ex("a", obj{"first": "Ada", "last": "Lovelace"}, obj{"display": "Lovelace, Ada"}),
		ex("b", obj{"first": "Grace", "last": "Hopper"}, obj{"display": "Hopper, Grace"}),
	)
	p, _ := res.Lookup("display")
	assert.Equal(t, KindConcatenation, p.Kind)
	assert.Equal(t, []string{"last", "first"}, p.SourcePaths)
	assert.Equal(t, ", ", p.Params.Separator)
	assert.Equal(t, High, p.Confidence)
}

func TestThreeWayConcatenation(t *testing.T) {
	res := detect(t,
		ex("a", obj{"y": int64(2020), "m": "01", "d": "15"}, obj{"date_key": "2020-01-15"}),
		ex("b", obj{"y": int64(2019), "m": "03", "d": "01"}, obj{"date_key": "2019-03-01"}),
	)
	p, _ := res.Lookup("date_key")
	assert.Equal(t, KindConcatenation, p.Kind)
	assert.Equal(t, []string{"y", "m", "d"}, p.SourcePaths)
	assert.Equal(t, "-", p.Params.Separator)
}

func TestValueMapping(t *testing.T) {
	res := detect(t,
		ex("a", obj{"st": "A"}, obj{"status": "Active"}),
		ex("b", obj{"st": "I"}, obj{"status": "Inactive"}),
		ex("c", obj{"st": "A"}, obj{"status": "Active"}),
	)
	p, _ := res.Lookup("status")
	assert.Equal(t, KindValueMapping, p.Kind)
	assert.Equal(t, High, p.Confidence)
	assert.Equal(t, []MappingEntry{{From: "A", To: "Active"}, {From: "I", To: "Inactive"}}, p.Params.Mapping)
}

func TestValueMappingNeedsRepeatedInput(t *testing.T) {
	res := detect(t,
		ex("a", obj{"st": "A"}, obj{"status": "Alpha"}),
		ex("b", obj{"st": "B"}, obj{"status": "Bravo"}),
	)
	p, _ := res.Lookup("status")
	assert.NotEqual(t, KindValueMapping, p.Kind)
}

func TestSubstringExtract(t *testing.T) {
	res := detect(t,
		ex("a", obj{"email": "ada@example.com"}, obj{"user": "ada"}),
		ex("b", obj{"email": "grace@navy.mil"}, obj{"user": "grace"}),
	)
	p, _ := res.Lookup("user")
	assert.Equal(t, KindSubstring, p.Kind)
	assert.Equal(t, "extract", p.Params.Mode)
	assert.Equal(t, "split", p.Params.Rule)
	assert.Equal(t, "@", p.Params.Delimiter)
	require.NotNil(t, p.Params.Index)
	assert.Equal(t, 0, *p.Params.Index)
}

func TestSubstringEmbed(t *testing.T) {
	res := detect(t,
		ex("a", obj{"sku": "A1"}, obj{"label": "SKU-A1-EU"}),
		ex("b", obj{"sku": "B7"}, obj{"label": "SKU-B7-EU"}),
	)
	p, _ := res.Lookup("label")
	assert.Equal(t, KindSubstring, p.Kind)
	assert.Equal(t, "embed", p.Params.Mode)
	assert.Equal(t, "wrap", p.Params.Rule)
	assert.Equal(t, "SKU-", p.Params.Prefix)
	assert.Equal(t, "-EU", p.Params.Suffix)
}

func TestDateConversion(t *testing.T) {
	res := detect(t,
		ex("a", obj{"d": "01/15/2020"}, obj{"day": "2020-01-15"}),
		ex("b", obj{"d": "03/01/2019"}, obj{"day": "2019-03-01"}),
	)
	p, _ := res.Lookup("day")
	assert.Equal(t, KindTypeConversion, p.Kind)
	assert.Equal(t, "2006-01-02", p.Params.TargetLayout)
}

func TestUnclassified(t *testing.T) {
	res := detect(t,
		ex("a", obj{"a": "x"}, obj{"b": "unrelated", "c": nil}),
		ex("b", obj{"a": "y"}, obj{"b": "different", "c": nil}),
	)
	b, _ := res.Lookup("b")
	assert.Equal(t, KindUnclassified, b.Kind)
	assert.True(t, b.NeedsReview)
	assert.True(t, b.HasNote(NoteNoCandidate))
	assert.Equal(t, []string{"a", "b"}, b.Counterexamples)

	c, _ := res.Lookup("c")
	assert.Equal(t, KindUnclassified, c.Kind)
	assert.True(t, c.HasNote(NoteNoValues))
	assert.Len(t, res.Unresolved(), 2)
}

// A lone confirming example is retained but never accepted.
func TestSingleConfirmationNeedsReview(t *testing.T) {
	res := detect(t,
		ex("a", obj{"a": "q1"}, obj{"x": "q1"}),
		ex("b", obj{"a": "m"}, obj{"x": "zz"}),
		ex("c", obj{"a": "n"}, obj{"x": "yy"}),
	)
	p, _ := res.Lookup("x")
	assert.Equal(t, KindRename, p.Kind)
	assert.Equal(t, Low, p.Confidence)
	assert.True(t, p.NeedsReview)
	assert.False(t, p.Accepted())
	assert.True(t, p.HasNote(NoteOverfitRisk))
	assert.Equal(t, []string{"b", "c"}, p.Counterexamples)
	require.Len(t, res.Unresolved(), 1)
	assert.Equal(t, "x", res.Unresolved()[0].TargetPath)
}

func TestMajorityIsMedium(t *testing.T) {
	res := detect(t,
		ex("a", obj{"a": "v1"}, obj{"x": "v1"}),
		ex("b", obj{"a": "v2"}, obj{"x": "v2"}),
		ex("c", obj{"a": "k"}, obj{"x": "zzz"}),
	)
	p, _ := res.Lookup("x")
	assert.Equal(t, Medium, p.Confidence)
	assert.True(t, p.Accepted())
	assert.Equal(t, []string{"c"}, p.Counterexamples)
}

// Mixed kinds demote one bucket instead of failing.
func TestMixedTypeDemotes(t *testing.T) {
	res := detect(t,
		ex("a", obj{"v": int64(1)}, obj{"w": int64(1)}),
		ex("b", obj{"v": "two"}, obj{"w": "two"}),
		ex("c", obj{"v": int64(3)}, obj{"w": int64(3)}),
	)
	p, _ := res.Lookup("w")
	assert.Equal(t, KindRename, p.Kind)
	assert.Equal(t, Medium, p.Confidence)
	assert.True(t, p.HasNote(NoteMixedType))
	assert.Equal(t, 3, p.Confirmed)
}

func TestConfidenceMonotonic(t *testing.T) {
	examples := []*example.Example{
		ex("counter", obj{"a": "k"}, obj{"x": "zzz"}),
		ex("first", obj{"a": "v0"}, obj{"x": "v0"}),
	}
	prev := 0
	for i := 1; i <= 6; i++ {
		p, ok := detect(t, examples...).Lookup("x")
		require.True(t, ok)
		require.Equal(t, KindRename, p.Kind)
		r := p.Confidence.Rank()
		assert.GreaterOrEqual(t, r, prev, "after %d corroborating examples", i)
		prev = r
		examples = append(examples, ex(fmt.Sprintf("more-%d", i), obj{"a": fmt.Sprintf("v%d", i)}, obj{"x": fmt.Sprintf("v%d", i)}))
	}
	assert.Equal(t, Medium.Rank(), prev)
}

func TestBucket(t *testing.T) {
	assert.Equal(t, Low, bucket(1, 1))
	assert.Equal(t, High, bucket(2, 2))
	assert.Equal(t, Medium, bucket(2, 3))
	assert.Equal(t, Low, bucket(2, 4))
	assert.Equal(t, Medium, bucket(3, 4))
	assert.Equal(t, Low, bucket(0, 3))
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("employee_id", []string{"EmployeeID"}))
	assert.Greater(t, nameSimilarity("dept", []string{"department"}), nameSimilarity("dept", []string{"salary"}))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestNilSchema(t *testing.T) {
	_, err := NewDetector(Options{}, nil).Detect(nil, nil, &schema.Schema{})
	assert.Error(t, err)
}
