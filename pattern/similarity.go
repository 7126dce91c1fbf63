package pattern

import (
	"strings"
	"unicode"
)

// levenshtein is the edit distance between a and b over bytes.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// normalizeIdent lowercases the last path segment and drops separators,
// so "Employee_ID" and "employeeId" compare equal.
func normalizeIdent(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	path = strings.ReplaceAll(path, "[0]", "")
	var b strings.Builder
	for _, r := range path {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// nameSimilarity is 1 minus the normalized edit distance between the
// target name and the joined source names.
func nameSimilarity(target string, sources []string) float64 {
	t := normalizeIdent(target)
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = normalizeIdent(s)
	}
	s := strings.Join(parts, "")
	if t == "" && s == "" {
		return 1
	}
	return 1 - float64(levenshtein(t, s))/float64(max(len(t), len(s)))
}
