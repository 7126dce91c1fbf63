package pattern

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/example"
	"github.com/teranos/exemplar/internal/value"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/schema"
)

// DefaultSeparators are tried, in order, when explaining concatenations.
var DefaultSeparators = []string{" ", ", ", ",", "-", " - "}

// Options tunes detection.
type Options struct {
	MaxMappingValues int      // default 10
	Separators       []string // default DefaultSeparators
}

// Detector proposes and ranks patterns. It is stateless and safe for
// concurrent use.
type Detector struct {
	maxMapping int
	separators []string
	log        *zap.SugaredLogger
}

// NewDetector creates a detector. log may be nil.
func NewDetector(opts Options, log *zap.SugaredLogger) *Detector {
	if opts.MaxMappingValues <= 0 {
		opts.MaxMappingValues = 10
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	}
	return &Detector{
		maxMapping: opts.MaxMappingValues,
		separators: opts.Separators,
		log:        logger.Nop(log),
	}
}

// observation is one example that holds a non-null value at the target.
type observation struct {
	id     string
	inputs map[string]interface{} // primitive, non-null input leaves
	output interface{}
}

// candidate is a proposed derivation with the observations confirming it.
type candidate struct {
	kind      Kind
	sources   []string
	params    Params
	confirmed []bool

	count      int
	confidence Confidence
	notes      []string
}

// Detect returns one pattern per output leaf of out. Examples are the
// usable examples the schemas were inferred from.
func (d *Detector) Detect(examples []*example.Example, in, out *schema.Schema) (*Result, error) {
	if in == nil || out == nil {
		return nil, errors.New("pattern detection needs both input and output schemas")
	}

	leaves := make([][]value.Node, len(examples))
	for i, ex := range examples {
		leaves[i] = value.Leaves(ex.Input)
	}

	res := &Result{}
	for _, target := range out.Leaves() {
		obs := d.observe(examples, leaves, target.Path)
		p, warn := d.detectTarget(target, obs, in)
		res.Patterns = append(res.Patterns, p)
		if warn != nil {
			res.Warnings = append(res.Warnings, warn)
			d.log.Warnw("ambiguous pattern",
				logger.FieldTargetPath, target.Path,
				logger.FieldKind, p.Kind,
				logger.FieldCount, len(warn.Tied)+1)
		}
		d.log.Debugw("pattern retained",
			logger.FieldTargetPath, p.TargetPath,
			logger.FieldKind, p.Kind,
			logger.FieldConfidence, p.Confidence)
	}
	return res, nil
}

func (d *Detector) observe(examples []*example.Example, leaves [][]value.Node, target string) []observation {
	var obs []observation
	for i, ex := range examples {
		v, ok := value.Lookup(ex.Output, target)
		if !ok || v == nil || !value.IsPrimitive(v) {
			continue
		}
		inputs := make(map[string]interface{}, len(leaves[i]))
		for _, n := range leaves[i] {
			if n.Value != nil {
				inputs[n.Path] = n.Value
			}
		}
		obs = append(obs, observation{id: ex.ID, inputs: inputs, output: v})
	}
	return obs
}

func (d *Detector) detectTarget(target schema.Field, obs []observation, in *schema.Schema) (Pattern, *AmbiguityWarning) {
	if len(obs) == 0 {
		return Pattern{
			TargetPath:  target.Path,
			Kind:        KindUnclassified,
			SourcePaths: []string{},
			Confidence:  Low,
			NeedsReview: true,
			Notes:       []string{NoteNoValues},
		}, nil
	}

	var sources []string
	for _, f := range in.Leaves() {
		if f.Kind != schema.KindNull {
			sources = append(sources, f.Path)
		}
	}

	var cands []*candidate
	cands = append(cands, d.exactMatches(target, obs, sources)...)
	cands = append(cands, d.typeConversions(target, obs, sources, in)...)
	cands = append(cands, d.booleanNormalizations(target, obs, sources)...)
	cands = append(cands, d.valueMappings(target, obs, sources)...)
	cands = append(cands, d.concatenations(target, obs, sources)...)
	cands = append(cands, d.substrings(target, obs, sources)...)

	var scored []*candidate
	for _, c := range cands {
		d.score(c, target, obs, in)
		if c.count > 0 {
			scored = append(scored, c)
		}
	}

	if len(scored) == 0 {
		return Pattern{
			TargetPath:      target.Path,
			Kind:            KindUnclassified,
			SourcePaths:     []string{},
			Confidence:      Low,
			Observed:        len(obs),
			Counterexamples: allIDs(obs),
			NeedsReview:     true,
			Notes:           []string{NoteNoCandidate},
		}, nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return less(scored[i], scored[j]) })
	best := scored[0]
	p := d.build(target.Path, best, obs)

	var tied []Alternative
	for _, c := range scored[1:] {
		if c.confidence != best.confidence || c.kind.Precedence() != best.kind.Precedence() {
			break
		}
		tied = append(tied, alternative(target.Path, c))
	}
	if len(tied) == 0 {
		return p, nil
	}

	sort.SliceStable(tied, func(i, j int) bool {
		if tied[i].Similarity != tied[j].Similarity {
			return tied[i].Similarity > tied[j].Similarity
		}
		return lessPaths(tied[i].SourcePaths, tied[j].SourcePaths)
	})
	p.Ambiguous = true
	p.NeedsReview = true
	p.Alternatives = tied
	return p, &AmbiguityWarning{
		TargetPath: target.Path,
		Retained:   alternative(target.Path, best),
		Tied:       tied,
	}
}

func (d *Detector) score(c *candidate, target schema.Field, obs []observation, in *schema.Schema) {
	for i := range obs {
		if c.confirmed[i] {
			c.count++
		}
	}
	c.confidence = bucket(c.count, len(obs))
	if c.count == 1 {
		c.notes = append(c.notes, NoteOverfitRisk)
	}

	mixed := target.Kind == schema.KindMixed
	for _, s := range c.sources {
		if in.KindOf(s) == schema.KindMixed {
			mixed = true
		}
	}
	if mixed {
		c.confidence = c.confidence.demote()
		c.notes = append(c.notes, NoteMixedType)
	}
}

func less(a, b *candidate) bool {
	if a.confidence.Rank() != b.confidence.Rank() {
		return a.confidence.Rank() > b.confidence.Rank()
	}
	if a.kind.Precedence() != b.kind.Precedence() {
		return a.kind.Precedence() < b.kind.Precedence()
	}
	if !equalPaths(a.sources, b.sources) {
		return lessPaths(a.sources, b.sources)
	}
	return paramKey(a.params) < paramKey(b.params)
}

func lessPaths(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func paramKey(p Params) string {
	idx := ""
	if p.Index != nil {
		idx = value.Format(int64(*p.Index))
	}
	return strings.Join([]string{p.Separator, p.Mode, p.Rule, p.Delimiter, idx, p.Prefix, p.Suffix}, "\x00")
}

func alternative(target string, c *candidate) Alternative {
	return Alternative{
		Kind:        c.kind,
		SourcePaths: c.sources,
		Confidence:  c.confidence,
		Similarity:  nameSimilarity(target, c.sources),
	}
}

func (d *Detector) build(target string, c *candidate, obs []observation) Pattern {
	p := Pattern{
		TargetPath:  target,
		Kind:        c.kind,
		SourcePaths: c.sources,
		Confidence:  c.confidence,
		Confirmed:   c.count,
		Observed:    len(obs),
		Params:      c.params,
		NeedsReview: c.confidence == Low,
	}
	for i, o := range obs {
		if !c.confirmed[i] {
			p.Counterexamples = append(p.Counterexamples, o.id)
			continue
		}
		ev := Evidence{ExampleID: o.id, Output: o.output}
		for _, s := range c.sources {
			ev.Inputs = append(ev.Inputs, o.inputs[s])
		}
		p.Evidence = append(p.Evidence, ev)
	}
	if len(c.notes) > 0 {
		p.Notes = append([]string(nil), c.notes...)
		sort.Strings(p.Notes)
	}
	return p
}

func allIDs(obs []observation) []string {
	ids := make([]string, len(obs))
	for i, o := range obs {
		ids[i] = o.id
	}
	return ids
}
