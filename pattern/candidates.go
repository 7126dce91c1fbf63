package pattern

import (
	"sort"
	"strings"

	"github.com/teranos/exemplar/internal/value"
	"github.com/teranos/exemplar/schema"
)

func newCandidate(kind Kind, sources []string, n int) *candidate {
	return &candidate{kind: kind, sources: sources, confirmed: make([]bool, n)}
}

// exactMatches proposes direct_copy and rename.
func (d *Detector) exactMatches(target schema.Field, obs []observation, sources []string) []*candidate {
	var out []*candidate
	for _, s := range sources {
		kind := KindRename
		if s == target.Path {
			kind = KindDirectCopy
		}
		c := newCandidate(kind, []string{s}, len(obs))
		hit := false
		for i, o := range obs {
			if v, ok := o.inputs[s]; ok && value.Equal(v, o.output) {
				c.confirmed[i] = true
				hit = true
			}
		}
		if hit {
			out = append(out, c)
		}
	}
	return out
}

// typeConversions proposes numeric and date conversions. At least one
// confirming example must differ strictly, or the pair is a plain rename.
func (d *Detector) typeConversions(target schema.Field, obs []observation, sources []string, in *schema.Schema) []*candidate {
	var out []*candidate
	for _, s := range sources {
		c := newCandidate(KindTypeConversion, []string{s}, len(obs))
		converted := false
		layout := ""
		for i, o := range obs {
			v, ok := o.inputs[s]
			if !ok {
				continue
			}
			eq, l := convertEqual(v, o.output)
			if !eq {
				continue
			}
			c.confirmed[i] = true
			if !value.Equal(v, o.output) {
				converted = true
			}
			if layout == "" {
				layout = l
			}
		}
		if !converted {
			continue
		}
		c.params = Params{
			SourceKind:   in.KindOf(s),
			TargetKind:   target.Kind,
			TargetType:   goType(firstConfirmed(c, obs)),
			TargetLayout: layout,
		}
		out = append(out, c)
	}
	return out
}

// convertEqual reports whether a and b hold the same number or the same
// instant. For dates it also returns the layout the output is written in.
func convertEqual(a, b interface{}) (bool, string) {
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !(aStr && bStr) {
		af, aok := schema.ParseFloat(a)
		bf, bok := schema.ParseFloat(b)
		if aok && bok {
			return af == bf, ""
		}
	}
	if aStr && bStr {
		at, _, aok := schema.ParseDate(a.(string))
		bt, layout, bok := schema.ParseDate(b.(string))
		if aok && bok && at.Equal(bt) {
			return true, layout
		}
	}
	return false, ""
}

// booleanNormalizations proposes literal to native boolean conversion with
// canonical truthiness.
func (d *Detector) booleanNormalizations(target schema.Field, obs []observation, sources []string) []*candidate {
	var out []*candidate
	for _, s := range sources {
		c := newCandidate(KindBooleanNormalization, []string{s}, len(obs))
		table := make(map[string]MappingEntry)
		for i, o := range obs {
			ob, ok := o.output.(bool)
			if !ok {
				continue
			}
			v, ok := o.inputs[s]
			if !ok {
				continue
			}
			if _, native := v.(bool); native {
				continue
			}
			lit, ok := schema.ParseBoolLiteral(v)
			if !ok || lit != ob {
				continue
			}
			c.confirmed[i] = true
			table[value.Format(v)] = MappingEntry{From: v, To: ob}
		}
		if len(table) == 0 {
			continue
		}
		c.params = Params{Mapping: sortedMapping(table), TargetKind: schema.KindBoolean, TargetType: "bool"}
		out = append(out, c)
	}
	return out
}

// valueMappings proposes discrete lookup tables. An example confirms when
// its input value always maps to the same output and no other input maps
// to that output.
func (d *Detector) valueMappings(target schema.Field, obs []observation, sources []string) []*candidate {
	var out []*candidate
	for _, s := range sources {
		fwd := make(map[string]map[string]bool)
		bwd := make(map[string]map[string]bool)
		keys := make([][2]string, len(obs))
		present := make([]bool, len(obs))
		for i, o := range obs {
			v, ok := o.inputs[s]
			if !ok {
				continue
			}
			ik, ok2 := value.Format(v), value.Format(o.output)
			keys[i] = [2]string{ik, ok2}
			present[i] = true
			if fwd[ik] == nil {
				fwd[ik] = make(map[string]bool)
			}
			if bwd[ok2] == nil {
				bwd[ok2] = make(map[string]bool)
			}
			fwd[ik][ok2] = true
			bwd[ok2][ik] = true
		}

		c := newCandidate(KindValueMapping, []string{s}, len(obs))
		table := make(map[string]MappingEntry)
		identity, canonicalBool := true, true
		count := 0
		for i, o := range obs {
			if !present[i] {
				continue
			}
			ik, ok2 := keys[i][0], keys[i][1]
			if len(fwd[ik]) != 1 || len(bwd[ok2]) != 1 {
				continue
			}
			v := o.inputs[s]
			c.confirmed[i] = true
			count++
			table[ik] = MappingEntry{From: v, To: o.output}
			if !value.Equal(v, o.output) {
				identity = false
			}
			if !isCanonicalBool(v, o.output) {
				canonicalBool = false
			}
		}
		if count == 0 || identity || canonicalBool {
			continue
		}
		if len(table) > d.maxMapping || count <= len(table) {
			continue
		}
		c.params = Params{Mapping: sortedMapping(table), TargetKind: target.Kind, TargetType: goType(firstConfirmed(c, obs))}
		out = append(out, c)
	}
	return out
}

func isCanonicalBool(in, out interface{}) bool {
	ob, ok := out.(bool)
	if !ok {
		return false
	}
	if _, native := in.(bool); native {
		return false
	}
	lit, ok := schema.ParseBoolLiteral(in)
	return ok && lit == ob
}

// concatenations proposes ordered joins of two or three input leaves.
// Orders and separators are discovered from each example's output, then
// every discovery is checked against all examples.
func (d *Detector) concatenations(target schema.Field, obs []observation, sources []string) []*candidate {
	type combo struct {
		sources []string
		sep     string
	}
	found := make(map[string]combo)

	for _, o := range obs {
		s, ok := o.output.(string)
		if !ok || s == "" {
			continue
		}
		for _, sep := range d.separators {
			var walk func(pos int, used []string)
			walk = func(pos int, used []string) {
				for _, src := range sources {
					if contains(used, src) {
						continue
					}
					text, ok := joinable(o.inputs[src])
					if !ok || !strings.HasPrefix(s[pos:], text) {
						continue
					}
					next := append(append([]string(nil), used...), src)
					end := pos + len(text)
					if end == len(s) && len(next) >= 2 {
						found[sep+"\x00"+strings.Join(next, "\x00")] = combo{sources: next, sep: sep}
						continue
					}
					if len(next) < 3 && strings.HasPrefix(s[end:], sep) {
						walk(end+len(sep), next)
					}
				}
			}
			walk(0, nil)
		}
	}

	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*candidate
	for _, k := range keys {
		cb := found[k]
		c := newCandidate(KindConcatenation, cb.sources, len(obs))
		for i, o := range obs {
			parts := make([]string, 0, len(cb.sources))
			for _, src := range cb.sources {
				text, ok := joinable(o.inputs[src])
				if !ok {
					break
				}
				parts = append(parts, text)
			}
			if len(parts) == len(cb.sources) && value.Equal(strings.Join(parts, cb.sep), o.output) {
				c.confirmed[i] = true
			}
		}
		c.params = Params{Separator: cb.sep, TargetKind: target.Kind, TargetType: "string"}
		out = append(out, c)
	}
	return out
}

// joinable returns the text of strings and integers; other values never
// take part in a concatenation.
func joinable(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case int64:
		return value.Text(val), true
	}
	return "", false
}

var splitDelimiters = []string{" ", ",", ";", "|", "/", "-", "_", "@", ".", ":"}

// substrings proposes extraction (output inside input) and embedding
// (input inside output).
func (d *Detector) substrings(target schema.Field, obs []observation, sources []string) []*candidate {
	var out []*candidate
	for _, s := range sources {
		extract := newCandidate(KindSubstring, []string{s}, len(obs))
		embed := newCandidate(KindSubstring, []string{s}, len(obs))
		var extractPairs, embedPairs [][2]string
		for i, o := range obs {
			outText, ok := o.output.(string)
			if !ok || outText == "" {
				continue
			}
			inText, ok := o.inputs[s].(string)
			if !ok || inText == "" || inText == outText {
				continue
			}
			switch {
			case strings.Contains(inText, outText):
				extract.confirmed[i] = true
				extractPairs = append(extractPairs, [2]string{inText, outText})
			case strings.Contains(outText, inText):
				embed.confirmed[i] = true
				embedPairs = append(embedPairs, [2]string{inText, outText})
			}
		}
		if len(extractPairs) > 0 {
			extract.params = extractRule(extractPairs)
			out = append(out, extract)
		}
		if len(embedPairs) > 0 {
			embed.params = embedRule(embedPairs)
			out = append(out, embed)
		}
	}
	return out
}

// extractRule finds a delimiter and index that explains every pair, then
// falls back to prefix, suffix and finally plain containment.
func extractRule(pairs [][2]string) Params {
	for _, delim := range splitDelimiters {
		if idx, ok := splitIndex(pairs, delim, false); ok {
			return Params{Mode: "extract", Rule: "split", Delimiter: delim, Index: &idx, TargetType: "string"}
		}
		if idx, ok := splitIndex(pairs, delim, true); ok {
			return Params{Mode: "extract", Rule: "split", Delimiter: delim, Index: &idx, TargetType: "string"}
		}
	}
	prefix, suffix := true, true
	for _, p := range pairs {
		prefix = prefix && strings.HasPrefix(p[0], p[1])
		suffix = suffix && strings.HasSuffix(p[0], p[1])
	}
	switch {
	case prefix:
		return Params{Mode: "extract", Rule: "prefix", TargetType: "string"}
	case suffix:
		return Params{Mode: "extract", Rule: "suffix", TargetType: "string"}
	}
	return Params{Mode: "extract", Rule: "contains", TargetType: "string"}
}

func splitIndex(pairs [][2]string, delim string, fromEnd bool) (int, bool) {
	idx, set := 0, false
	for _, p := range pairs {
		parts := strings.Split(p[0], delim)
		if len(parts) < 2 {
			return 0, false
		}
		found := -1
		for i, part := range parts {
			if strings.TrimSpace(part) == p[1] {
				found = i
				break
			}
		}
		if found < 0 {
			return 0, false
		}
		if fromEnd {
			found -= len(parts)
		}
		if set && found != idx {
			return 0, false
		}
		idx, set = found, true
	}
	return idx, set
}

func embedRule(pairs [][2]string) Params {
	var prefix, suffix string
	for i, p := range pairs {
		at := strings.Index(p[1], p[0])
		pre, suf := p[1][:at], p[1][at+len(p[0]):]
		if i == 0 {
			prefix, suffix = pre, suf
			continue
		}
		if pre != prefix || suf != suffix {
			return Params{Mode: "embed", Rule: "contains", TargetType: "string"}
		}
	}
	return Params{Mode: "embed", Rule: "wrap", Prefix: prefix, Suffix: suffix, TargetType: "string"}
}

func sortedMapping(table map[string]MappingEntry) []MappingEntry {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]MappingEntry, len(keys))
	for i, k := range keys {
		out[i] = table[k]
	}
	return out
}

func firstConfirmed(c *candidate, obs []observation) interface{} {
	for i, o := range obs {
		if c.confirmed[i] {
			return o.output
		}
	}
	return nil
}

func goType(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case int64:
		return "int64"
	case float64:
		return "float64"
	case bool:
		return "bool"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
