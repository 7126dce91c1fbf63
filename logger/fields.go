package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across the pipeline.
// Use these constants instead of raw strings.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"
	FieldProject   = "project"

	// Components
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldProvider  = "provider"
	FieldModel     = "model"

	// Examples and schemas
	FieldExampleID  = "example_id"
	FieldPath       = "path"
	FieldTargetPath = "target_path"
	FieldKind       = "kind"
	FieldConfidence = "confidence"

	// Generation
	FieldAttempt = "attempt"
	FieldPhase   = "phase"
	FieldRuleID  = "rule_id"
	FieldTokens  = "tokens"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount      = "count"
	FieldTotalCount = "total_count"
	FieldWorkers    = "workers"

	// Files
	FieldFile   = "file"
	FieldLine   = "line"
	FieldBackup = "backup"
)

type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	requestIDKey contextKey = "logger_request_id"
	projectKey   contextKey = "logger_project"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithRequestID adds a backend request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithProject adds a project name to the context for logging
func WithProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, projectKey, project)
}

// RunIDFromContext returns the run ID stored by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// FieldsFromContext extracts logging fields from context as key-value pairs
// suitable for Infow/Errorw.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if project, ok := ctx.Value(projectKey).(string); ok && project != "" {
		fields = append(fields, FieldProject, project)
	}

	return fields
}

// WithContext decorates base with the fields carried by ctx.
func WithContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = Nop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a pipeline component.
//
//	inferencer := schema.NewInferencer(logger.ComponentLogger("schema"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
