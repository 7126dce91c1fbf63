package codegen

import (
	"fmt"
	"strings"

	"github.com/teranos/exemplar/specification"
)

const planSystemPrompt = `You are a senior Go engineer planning a data transformation.
You receive a specification derived from paired input/output examples.
Respond with a single JSON object and nothing else:
{
  "steps": ["ordered implementation steps"],
  "field_mappings": [
    {"target": "output.path", "sources": ["input.path"], "pattern": "pattern kind", "notes": "conversion details"}
  ],
  "edge_cases": ["inputs the implementation must handle"]
}
Plan one field mapping per output field. Fields marked NEEDS_REVIEW get a
mapping whose notes say the implementation returns an error naming the field.`

const implementSystemPrompt = `You are a senior Go engineer writing production code.
Write a Go package that satisfies the contract in the specification.
Rules:
- Input and Output are named struct types in the data model file, with json tags.
- Dependencies are injected through a constructor. No package-level state, no init functions.
- Exported functions never take or return interface{} or any.
- Do not import os/exec, syscall, unsafe, plugin, net or net/http.
- Keep every function small. Cyclomatic complexity stays at or below 10.
- Log through an injected *zap.SugaredLogger, never fmt.Print or the log package.
- Every error is returned or logged.
- Tests use the standard testing package and cover every worked example.
Respond with a single JSON object and nothing else:
{"implementation": "<Go source>", "data_model": "<Go source>", "tests": "<Go test source>"}`

// buildPlanPrompt renders the user prompt for the plan phase.
func buildPlanPrompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt %d.\n\n", req.Attempt)
	b.WriteString(req.Specification.Render())
	b.WriteString("\nReturn the plan as JSON.\n")
	return b.String()
}

// buildImplementPrompt renders the user prompt for the implementation phase.
func buildImplementPrompt(req ImplementRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt %d.\n\n", req.Attempt)
	b.WriteString(req.Specification.Render())
	if req.Plan != nil {
		renderPlan(&b, req.Plan)
	}
	fmt.Fprintf(&b, "\nAll three files belong to package %s.\n", packageName(req.Specification))
	b.WriteString("Return the implementation as JSON.\n")
	return b.String()
}

func renderPlan(b *strings.Builder, p *Plan) {
	b.WriteString("\n## Plan\n\n")
	for i, s := range p.Steps {
		fmt.Fprintf(b, "%d. %s\n", i+1, s)
	}
	if len(p.FieldMappings) > 0 {
		b.WriteString("\nField mappings:\n\n")
		for _, m := range p.FieldMappings {
			fmt.Fprintf(b, "- `%s`", m.Target)
			if len(m.Sources) > 0 {
				fmt.Fprintf(b, " from %s", strings.Join(m.Sources, ", "))
			}
			if m.Pattern != "" {
				fmt.Fprintf(b, " (%s)", m.Pattern)
			}
			if m.Notes != "" {
				fmt.Fprintf(b, ": %s", m.Notes)
			}
			b.WriteString("\n")
		}
	}
	if len(p.EdgeCases) > 0 {
		b.WriteString("\nEdge cases:\n\n")
		for _, e := range p.EdgeCases {
			fmt.Fprintf(b, "- %s\n", e)
		}
	}
}

func packageName(s *specification.Specification) string {
	if s.Contract.Package == "" {
		return "transform"
	}
	return s.Contract.Package
}
