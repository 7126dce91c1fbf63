package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/tabular"
)

func rec(id string, v map[string]interface{}) Record {
	return Record{ID: id, Value: v}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   interface{}
		want Kind
	}{
		{nil, KindNull},
		{true, KindBoolean},
		{int64(3), KindInteger},
		{85000.0, KindFloat},
		{"42", KindInteger},
		{"-7", KindInteger},
		{"3.14", KindFloat},
		{"Yes", KindBoolean},
		{"n", KindBoolean},
		{"2020-01-15", KindDate},
		{"Jan 2, 2006", KindDate},
		{"01/15/2020", KindDate},
		{"Engineering", KindString},
		{"NaN", KindString},
		{"+5", KindString},
		{map[string]interface{}{}, KindObject},
		{[]interface{}{}, KindList},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.in), "classify %#v", tc.in)
	}
}

func TestInferUnion(t *testing.T) {
	inf := NewInferencer(Options{}, nil)
	s, err := inf.Infer([]Record{
		rec("a", map[string]interface{}{
			"name":   "Ada",
			"salary": int64(85000),
			"items":  []interface{}{map[string]interface{}{"sku": "A1"}},
		}),
		rec("b", map[string]interface{}{
			"name":  "Grace",
			"notes": nil,
			"items": []interface{}{map[string]interface{}{"sku": "B2"}},
		}),
	})
	require.NoError(t, err)

	var paths []string
	for _, f := range s.Fields {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"items", "items[0]", "items[0].sku", "name", "notes", "salary"}, paths)

	name, ok := s.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, KindString, name.Kind)
	assert.False(t, name.Nullable)
	assert.Equal(t, []interface{}{"Ada", "Grace"}, name.Samples)
	assert.Equal(t, 2, name.Present)

	salary, _ := s.Lookup("salary")
	assert.Equal(t, KindInteger, salary.Kind)
	assert.True(t, salary.Nullable, "missing in one record")

	notes, _ := s.Lookup("notes")
	assert.Equal(t, KindNull, notes.Kind)
	assert.True(t, notes.Nullable)

	assert.Equal(t, KindList, s.KindOf("items"))
	assert.Equal(t, KindObject, s.KindOf("items[0]"))
	assert.Equal(t, KindString, s.KindOf("items[0].sku"))
	assert.Equal(t, Kind(""), s.KindOf("missing"))

	for _, f := range s.Leaves() {
		assert.True(t, f.Kind.IsLeaf())
	}
}

func TestInferMixed(t *testing.T) {
	inf := NewInferencer(Options{}, nil)
	s, err := inf.Infer([]Record{
		rec("a", map[string]interface{}{"code": int64(7)}),
		rec("b", map[string]interface{}{"code": "seven"}),
		rec("c", map[string]interface{}{"code": int64(7)}),
	})
	require.NoError(t, err)

	f, ok := s.Lookup("code")
	require.True(t, ok)
	assert.Equal(t, KindMixed, f.Kind)
	assert.Equal(t, []Kind{KindInteger, KindString}, f.Observed)
	assert.Equal(t, []interface{}{int64(7), "seven"}, f.Samples)
	assert.Equal(t, []string{"code"}, s.MixedPaths())
}

func TestInferIntegerAndFloatDisagree(t *testing.T) {
	s, err := NewInferencer(Options{}, nil).Infer([]Record{
		rec("a", map[string]interface{}{"x": int64(1)}),
		rec("b", map[string]interface{}{"x": 1.5}),
	})
	require.NoError(t, err)
	assert.Equal(t, KindMixed, s.KindOf("x"))
}

func TestSamplesBounded(t *testing.T) {
	var records []Record
	for i := 0; i < 12; i++ {
		records = append(records, rec("r", map[string]interface{}{"n": int64(i)}))
	}
	s, err := NewInferencer(Options{SampleLimit: 3}, nil).Infer(records)
	require.NoError(t, err)
	f, _ := s.Lookup("n")
	assert.Equal(t, []interface{}{int64(0), int64(1), int64(2)}, f.Samples)
	assert.Equal(t, 12, f.Present)
}

func TestInferRejectsNonMapping(t *testing.T) {
	_, err := NewInferencer(Options{}, nil).Infer([]Record{
		rec("ok", map[string]interface{}{"a": int64(1)}),
		{ID: "bad", Value: []interface{}{int64(1)}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSchemaInference))

	var ie *InferenceError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "bad", ie.RecordID)
	assert.Contains(t, err.Error(), "list")
}

func TestInferDeterministic(t *testing.T) {
	records := []Record{
		rec("a", map[string]interface{}{"z": "1", "a": map[string]interface{}{"c": true, "b": nil}}),
		rec("b", map[string]interface{}{"m": "2020-01-15", "a": map[string]interface{}{"c": false}}),
	}
	inf := NewInferencer(Options{}, nil)
	first, err := inf.Infer(records)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := inf.Infer(records)
		require.NoError(t, err)
		assert.Equal(t, first.Fields, again.Fields)
	}
}

func TestInferTable(t *testing.T) {
	res := &tabular.Result{
		SourceID: "people.csv",
		Columns:  []string{"age", "name"},
		Rows: []map[string]interface{}{
			{"name": "Ada", "age": "36"},
			{"name": "Grace", "age": nil},
		},
		RowCount: 2,
	}
	s, err := NewInferencer(Options{}, nil).InferTable(res)
	require.NoError(t, err)
	age, ok := s.Lookup("age")
	require.True(t, ok)
	assert.Equal(t, KindInteger, age.Kind)
	assert.True(t, age.Nullable)
	assert.Equal(t, 2, s.Records)
}
