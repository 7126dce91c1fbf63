// Package schema infers structural schemas from example records.
//
// A schema maps every field path seen in any record to its kind, its
// nullability and a bounded set of sample values. Paths use dots for
// nesting and [0] for the first list element. Records are merged by
// union: a path whose kinds disagree across records widens to mixed.
package schema

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/internal/value"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/tabular"
)

// FieldType describes one path.
type FieldType struct {
	Kind     Kind          `json:"kind"`
	Nullable bool          `json:"nullable"`
	Samples  []interface{} `json:"samples,omitempty"`
	// Observed lists the distinct non-null kinds seen, sorted. More than
	// one entry means Kind is mixed.
	Observed []Kind `json:"observed,omitempty"`
	// Present counts records holding a non-null value at the path.
	Present int `json:"present"`
}

// Field is a path with its type.
type Field struct {
	Path string `json:"path"`
	FieldType
}

// Schema is an ordered set of fields, sorted by path.
type Schema struct {
	Fields  []Field `json:"fields"`
	Records int     `json:"records"`

	index map[string]int
}

// Lookup returns the field at path.
func (s *Schema) Lookup(path string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	if s.index == nil {
		s.reindex()
	}
	i, ok := s.index[path]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// KindOf returns the kind at path, or "" when the path is unknown.
func (s *Schema) KindOf(path string) Kind {
	f, ok := s.Lookup(path)
	if !ok {
		return ""
	}
	return f.Kind
}

// Leaves returns the fields holding primitive values.
func (s *Schema) Leaves() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Kind.IsLeaf() {
			out = append(out, f)
		}
	}
	return out
}

// MixedPaths returns the paths whose kinds disagree across records.
func (s *Schema) MixedPaths() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Kind == KindMixed {
			out = append(out, f.Path)
		}
	}
	return out
}

func (s *Schema) reindex() {
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		s.index[f.Path] = i
	}
}

// Record is one side (input or output) of an example.
type Record struct {
	ID    string
	Value interface{}
}

// InferenceError reports a record that is not structured data.
// It unwraps to errors.ErrSchemaInference.
type InferenceError struct {
	RecordID string
	Reason   string
}

func (e *InferenceError) Error() string {
	return "record " + e.RecordID + ": " + e.Reason
}

// Unwrap lets errors.Is match ErrSchemaInference.
func (e *InferenceError) Unwrap() error { return errors.ErrSchemaInference }

// Options bounds sampling.
type Options struct {
	SampleLimit      int // default 5
	MixedSampleLimit int // default 20
}

// Inferencer builds schemas. It holds no per-call state and is safe for
// concurrent use.
type Inferencer struct {
	sampleLimit int
	mixedLimit  int
	log         *zap.SugaredLogger
}

// NewInferencer creates an inferencer. log may be nil.
func NewInferencer(opts Options, log *zap.SugaredLogger) *Inferencer {
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 5
	}
	if opts.MixedSampleLimit <= 0 {
		opts.MixedSampleLimit = 20
	}
	return &Inferencer{
		sampleLimit: opts.SampleLimit,
		mixedLimit:  opts.MixedSampleLimit,
		log:         logger.Nop(log),
	}
}

// Check reports whether rec can be inferred over: its value must be a mapping.
func (inf *Inferencer) Check(rec Record) error {
	switch rec.Value.(type) {
	case map[string]interface{}:
		return nil
	case nil:
		return &InferenceError{RecordID: rec.ID, Reason: "record is empty"}
	case []interface{}:
		return &InferenceError{RecordID: rec.ID, Reason: "record is a list, expected a mapping of fields"}
	default:
		return &InferenceError{RecordID: rec.ID, Reason: "record is a bare " + string(Classify(rec.Value)) + ", expected a mapping of fields"}
	}
}

type accumulator struct {
	kinds    map[Kind]bool
	nullable bool
	present  int
	seen     int // records in which the path exists at all
	samples  []interface{}
	raw      []interface{} // distinct values for mixed diagnostics
	keys     map[string]bool
	rawKeys  map[string]bool
}

// Infer builds the union schema of records. It fails with an
// *InferenceError naming the first record that is not a mapping; callers
// are expected to Check and drop such records beforehand.
func (inf *Inferencer) Infer(records []Record) (*Schema, error) {
	acc := make(map[string]*accumulator)

	for _, rec := range records {
		if err := inf.Check(rec); err != nil {
			return nil, err
		}
		value.Walk(rec.Value, func(path string, v interface{}) {
			a, ok := acc[path]
			if !ok {
				a = &accumulator{kinds: make(map[Kind]bool), keys: make(map[string]bool), rawKeys: make(map[string]bool)}
				acc[path] = a
			}
			a.seen++
			inf.observe(a, v)
		})
	}

	paths := make([]string, 0, len(acc))
	for p := range acc {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s := &Schema{Fields: make([]Field, 0, len(paths)), Records: len(records)}
	for _, p := range paths {
		a := acc[p]
		ft := FieldType{
			Nullable: a.nullable || a.seen < len(records),
			Present:  a.present,
			Observed: sortedKinds(a.kinds),
		}
		switch len(ft.Observed) {
		case 0:
			ft.Kind = KindNull
			ft.Nullable = true
		case 1:
			ft.Kind = ft.Observed[0]
			ft.Samples = a.samples
		default:
			ft.Kind = KindMixed
			ft.Samples = a.raw
			inf.log.Debugw("kinds disagree, widening to mixed", logger.FieldPath, p, "observed", ft.Observed)
		}
		s.Fields = append(s.Fields, Field{Path: p, FieldType: ft})
	}
	s.reindex()

	inf.log.Debugw("schema inferred", logger.FieldCount, len(s.Fields), "records", len(records))
	return s, nil
}

func (inf *Inferencer) observe(a *accumulator, v interface{}) {
	kind := Classify(v)
	if kind == KindNull {
		a.nullable = true
		return
	}
	a.kinds[kind] = true
	a.present++

	if !value.IsPrimitive(v) {
		return
	}
	key := value.Format(v)
	if !a.keys[key] && len(a.samples) < inf.sampleLimit {
		a.keys[key] = true
		a.samples = append(a.samples, v)
	}
	if !a.rawKeys[key] && len(a.raw) < inf.mixedLimit {
		a.rawKeys[key] = true
		a.raw = append(a.raw, v)
	}
}

func sortedKinds(m map[Kind]bool) []Kind {
	out := make([]Kind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InferTable builds a schema over the rows of a tabular result. Rows get
// IDs of the form "<source>#<n>".
func (inf *Inferencer) InferTable(res *tabular.Result) (*Schema, error) {
	rows := res.Records()
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{ID: res.SourceID + "#" + strconv.Itoa(i+1), Value: row}
	}
	s, err := inf.Infer(records)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", res.SourceID)
	}
	return s, nil
}
