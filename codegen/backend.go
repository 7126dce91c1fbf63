// Package codegen drives a code generation backend from a specification to
// an implementation that passes the constraint validator.
//
// Every attempt asks the backend for a plan, then for the implementation,
// then validates it. Rejected attempts feed their violations back into the
// specification for the next attempt.
package codegen

import (
	"context"
	"time"

	"github.com/teranos/exemplar/specification"
)

// Backend produces plans and implementations. Implementations must be
// safe for concurrent use; batch runs share one backend.
type Backend interface {
	Plan(ctx context.Context, req PlanRequest) (*Plan, error)
	Implement(ctx context.Context, req ImplementRequest) (*Implementation, error)
}

// Describer is implemented by backends that can name the model behind them.
// Usage records for failed calls use it.
type Describer interface {
	Provider() string
	Model() string
}

// PlanRequest asks for a transformation plan.
type PlanRequest struct {
	Specification *specification.Specification
	Attempt       int
}

// Plan is the backend's outline of the transformation.
type Plan struct {
	Steps         []string       `json:"steps"`
	FieldMappings []FieldMapping `json:"field_mappings"`
	EdgeCases     []string       `json:"edge_cases"`
	Usage         Usage          `json:"-"`
}

// FieldMapping is one planned output field.
type FieldMapping struct {
	Target  string   `json:"target"`
	Sources []string `json:"sources,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Notes   string   `json:"notes,omitempty"`
}

// ImplementRequest asks for source code following a plan.
type ImplementRequest struct {
	Specification *specification.Specification
	Plan          *Plan
	Attempt       int
}

// Implementation is the generated module.
type Implementation struct {
	Source    string `json:"implementation"`
	DataModel string `json:"data_model"`
	Tests     string `json:"tests"`
	Usage     Usage  `json:"-"`
}

// Usage describes one backend call.
type Usage struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	Latency          time.Duration
}
