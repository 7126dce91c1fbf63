package specification

import (
	"fmt"
	"strings"

	"github.com/teranos/exemplar/internal/value"
	"github.com/teranos/exemplar/pattern"
	"github.com/teranos/exemplar/schema"
)

// NeedsReview marks fields that require manual resolution.
const NeedsReview = "NEEDS_REVIEW"

// Render returns the specification as Markdown.
func (s *Specification) Render() string {
	var b strings.Builder

	title := s.Name
	if title == "" {
		title = "transformation"
	}
	fmt.Fprintf(&b, "# Specification: %s\n\n", title)

	b.WriteString("## Contract\n\n")
	fmt.Fprintf(&b, "Package `%s` must declare a type implementing `%s`:\n\n", s.Contract.Package, s.Contract.InterfaceName)
	fmt.Fprintf(&b, "```go\ntype %s interface {\n\t%s\n}\n```\n\n", s.Contract.InterfaceName, s.Contract.Signature)
	for _, r := range s.Contract.Requirements {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\n")

	renderSchema(&b, "Input schema", s.InputSchema)
	renderSchema(&b, "Output schema", s.OutputSchema)

	b.WriteString("## Field patterns\n\n")
	b.WriteString("Ranked by confidence. Fields marked " + NeedsReview + " must not be guessed.\n\n")
	for i := range s.Patterns {
		renderPattern(&b, &s.Patterns[i])
	}
	b.WriteString("\n")

	b.WriteString("## Unresolved fields\n\n")
	if len(s.Unresolved) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for _, u := range s.Unresolved {
			fmt.Fprintf(&b, "- `%s` %s: %s. Return an error naming this field.\n", u.TargetPath, NeedsReview, u.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Worked examples\n\n")
	for _, ex := range s.WorkedExamples {
		fmt.Fprintf(&b, "### %s\n\n", ex.ID)
		if ex.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", ex.Description)
		}
		fmt.Fprintf(&b, "Input:\n\n```json\n%s\n```\n\nOutput:\n\n```json\n%s\n```\n\n", ex.Input, ex.Output)
	}

	if len(s.Notes) > 0 {
		b.WriteString("## Notes\n\n")
		b.WriteString("Human descriptions, for context only. The patterns above take precedence.\n\n")
		for _, n := range s.Notes {
			if len(n.Sources) > 0 {
				fmt.Fprintf(&b, "- `%s` from %s: %s\n", n.Target, strings.Join(n.Sources, ", "), n.Description)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s\n", n.Target, n.Description)
			}
		}
		b.WriteString("\n")
	}

	if len(s.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if len(s.PriorViolations) > 0 {
		b.WriteString("## Violations from previous attempts\n\n")
		b.WriteString("The previous implementation was rejected. Fix every error below.\n\n")
		for _, v := range s.PriorViolations {
			fmt.Fprintf(&b, "- %s %s [%s]: %s", v.Location(), v.Severity, v.RuleID, v.Message)
			if v.SuggestedFix != "" {
				fmt.Fprintf(&b, " (fix: %s)", v.SuggestedFix)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func renderSchema(b *strings.Builder, title string, s *schema.Schema) {
	fmt.Fprintf(b, "## %s\n\n", title)
	b.WriteString("| path | kind | nullable | samples |\n| --- | --- | --- | --- |\n")
	for _, f := range s.Fields {
		samples := make([]string, len(f.Samples))
		for i, v := range f.Samples {
			samples[i] = value.Format(v)
		}
		kind := string(f.Kind)
		if f.Kind == schema.KindMixed {
			parts := make([]string, len(f.Observed))
			for i, k := range f.Observed {
				parts[i] = string(k)
			}
			kind += " (" + strings.Join(parts, "|") + ")"
		}
		fmt.Fprintf(b, "| `%s` | %s | %t | %s |\n", f.Path, kind, f.Nullable, escapeCell(strings.Join(samples, ", ")))
	}
	b.WriteString("\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func renderPattern(b *strings.Builder, p *pattern.Pattern) {
	marker := ""
	if p.NeedsReview {
		marker = " " + NeedsReview
	}
	if p.Ambiguous {
		marker += " AMBIGUOUS"
	}
	fmt.Fprintf(b, "- `%s` [%s, %d/%d examples]%s: %s\n", p.TargetPath, p.Confidence, p.Confirmed, p.Observed, marker, derivation(p))
	for _, alt := range p.Alternatives {
		fmt.Fprintf(b, "  - tied: %s(%s)\n", alt.Kind, strings.Join(alt.SourcePaths, ", "))
	}
	if len(p.Counterexamples) > 0 {
		fmt.Fprintf(b, "  - not explained by: %s\n", strings.Join(p.Counterexamples, ", "))
	}
	if len(p.Notes) > 0 {
		fmt.Fprintf(b, "  - notes: %s\n", strings.Join(p.Notes, ", "))
	}
}

func quoted(paths []string) string {
	q := make([]string, len(paths))
	for i, p := range paths {
		q[i] = "`" + p + "`"
	}
	return strings.Join(q, ", ")
}

func derivation(p *pattern.Pattern) string {
	src := quoted(p.SourcePaths)
	switch p.Kind {
	case pattern.KindDirectCopy:
		return "copy " + src + " unchanged"
	case pattern.KindRename:
		return "copy the value of " + src
	case pattern.KindTypeConversion:
		d := fmt.Sprintf("convert %s to %s", src, p.Params.TargetKind)
		if p.Params.TargetType != "" {
			d += " (Go " + p.Params.TargetType + ")"
		}
		if p.Params.TargetLayout != "" {
			d += fmt.Sprintf(" formatted with layout %q", p.Params.TargetLayout)
		}
		return d
	case pattern.KindBooleanNormalization:
		return "normalize " + src + " to bool: " + mapping(p.Params.Mapping)
	case pattern.KindValueMapping:
		return "map " + src + ": " + mapping(p.Params.Mapping)
	case pattern.KindConcatenation:
		return fmt.Sprintf("join %s with separator %q", src, p.Params.Separator)
	case pattern.KindSubstring:
		return substringRule(src, p.Params)
	default:
		return "no derivation found"
	}
}

func mapping(entries []pattern.MappingEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = value.Format(e.From) + " -> " + value.Format(e.To)
	}
	return strings.Join(parts, ", ")
}

func substringRule(src string, p pattern.Params) string {
	if p.Mode == "embed" {
		if p.Rule == "wrap" {
			return fmt.Sprintf("wrap %s as %q + value + %q", src, p.Prefix, p.Suffix)
		}
		return "output contains " + src
	}
	switch p.Rule {
	case "split":
		return fmt.Sprintf("split %s on %q and take part %d", src, p.Delimiter, *p.Index)
	case "prefix":
		return "a prefix of " + src
	case "suffix":
		return "a suffix of " + src
	default:
		return "a substring of " + src
	}
}
