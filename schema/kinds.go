package schema

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred primitive or structural type of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
	KindList    Kind = "list"
	KindObject  Kind = "object"
	KindNull    Kind = "null"
	KindMixed   Kind = "mixed"
)

// IsLeaf reports whether fields of this kind hold primitive values.
func (k Kind) IsLeaf() bool {
	return k != KindList && k != KindObject
}

// DateLayouts are tried in order when classifying strings.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate parses s with the first matching layout in DateLayouts.
func ParseDate(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 6 {
		return time.Time{}, "", false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, true
		}
	}
	return time.Time{}, "", false
}

var boolLiterals = map[string]bool{
	"yes": true, "true": true, "1": true, "y": true,
	"no": false, "false": false, "0": false, "n": false,
}

// ParseBoolLiteral interprets the case-insensitive literal set
// yes/no/true/false/1/0/y/n. Native booleans are not literals.
func ParseBoolLiteral(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case string:
		b, ok := boolLiterals[strings.ToLower(strings.TrimSpace(val))]
		return b, ok
	case int64:
		if val == 0 || val == 1 {
			return val == 1, true
		}
	}
	return false, false
}

// ParseInteger accepts int64 values and base-10 integer strings.
func ParseInteger(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" || strings.HasPrefix(s, "+") {
			return 0, false
		}
		i, err := strconv.ParseInt(s, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// ParseFloat accepts numbers and decimal strings. NaN and infinities are rejected.
func ParseFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" || strings.ContainsAny(s, "xXpP_") {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Classify returns the kind of a single value. Strings are tried as
// integer, float, boolean literal and date before falling back to string.
func Classify(v interface{}) Kind {
	switch val := v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBoolean
	case int64:
		return KindInteger
	case float64:
		return KindFloat
	case map[string]interface{}:
		return KindObject
	case []interface{}:
		return KindList
	case string:
		if _, ok := ParseInteger(val); ok {
			return KindInteger
		}
		if _, ok := ParseFloat(val); ok {
			return KindFloat
		}
		if _, ok := ParseBoolLiteral(val); ok {
			return KindBoolean
		}
		if _, _, ok := ParseDate(val); ok {
			return KindDate
		}
		return KindString
	default:
		return KindString
	}
}
