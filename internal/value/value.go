// Package value holds helpers for the canonical value tree produced by
// example loading and tabular readers: map[string]interface{},
// []interface{}, string, int64, float64, bool and nil.
package value

import (
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Normalize converts decoded values into the canonical value tree.
// json.Number values split into int64 (no fraction or exponent) and float64.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[keyString(k)] = Normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case json.Number:
		return ParseNumber(string(val))
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint64:
		if val > 1<<63-1 {
			return float64(val)
		}
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

// ParseNumber converts a numeric literal to int64 or float64, or returns
// the literal unchanged when it is not a number.
func ParseNumber(lit string) interface{} {
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return i
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	return f
}

func keyString(k interface{}) string {
	switch key := k.(type) {
	case string:
		return key
	default:
		return Format(Normalize(key))
	}
}

// IsPrimitive reports whether v is a leaf of the value tree.
func IsPrimitive(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return false
	default:
		return true
	}
}

// Equal is strict equality: same canonical type and same value.
// int64(1) and float64(1) are not Equal.
func Equal(a, b interface{}) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// Format renders a value deterministically. Floats always carry a decimal
// point so 85000.0 never reads as an integer; maps render with sorted keys.
func Format(v interface{}) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(FormatFloat(val))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, item)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		b.WriteByte('{')
		for i, k := range SortedKeys(val) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			writeValue(b, val[k])
		}
		b.WriteByte('}')
	default:
		data, err := json.Marshal(val)
		if err != nil {
			b.WriteString(strconv.Quote("<unrenderable>"))
			return
		}
		b.Write(data)
	}
}

// FormatFloat renders f with the shortest representation that keeps a decimal point.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") { // n: NaN, Inf
		s += ".0"
	}
	return s
}

// Text returns the plain textual form of a primitive, without quoting.
func Text(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Format(v)
}

// SortedKeys returns the keys of m in lexicographic order.
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
