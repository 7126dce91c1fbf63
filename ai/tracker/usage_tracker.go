// Package tracker records backend usage and generation runs in SQLite.
package tracker

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// GenerationUsage is one backend call made while generating code
type GenerationUsage struct {
	ID                int64      `json:"id"`
	RunID             string     `json:"run_id"`
	Project           string     `json:"project"`
	Phase             string     `json:"phase"` // plan or implement
	Attempt           int        `json:"attempt"`
	ModelProvider     string     `json:"model_provider"`
	ModelName         string     `json:"model_name"`
	ModelConfig       *string    `json:"model_config,omitempty"`
	RequestTimestamp  time.Time  `json:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty"`
	PromptTokens      *int       `json:"prompt_tokens,omitempty"`
	CompletionTokens  *int       `json:"completion_tokens,omitempty"`
	TokensUsed        *int       `json:"tokens_used,omitempty"`
	Cost              *float64   `json:"cost,omitempty"`
	Success           bool       `json:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
}

// ModelConfig is the request configuration stored alongside usage
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UsageTracker writes and aggregates usage records
type UsageTracker struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewUsageTracker creates a tracker over a migrated database
func NewUsageTracker(db *sql.DB, log *zap.SugaredLogger) *UsageTracker {
	return &UsageTracker{db: db, logger: logger.Nop(log)}
}

// TrackUsage records one backend call
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *GenerationUsage) error {
	query := `
		INSERT INTO generation_usage (
			run_id, project, phase, attempt, model_provider, model_name,
			model_config, request_timestamp, response_timestamp,
			prompt_tokens, completion_tokens, tokens_used, cost,
			success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := t.db.ExecContext(ctx, query,
		usage.RunID, usage.Project, usage.Phase, usage.Attempt,
		usage.ModelProvider, usage.ModelName, usage.ModelConfig,
		usage.RequestTimestamp, usage.ResponseTimestamp,
		usage.PromptTokens, usage.CompletionTokens, usage.TokensUsed, usage.Cost,
		usage.Success, usage.ErrorMessage,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record %s usage for run %s", usage.Phase, usage.RunID)
	}
	if id, err := res.LastInsertId(); err == nil {
		usage.ID = id
	}
	t.logger.Debugw("usage recorded",
		logger.FieldRunID, usage.RunID,
		logger.FieldPhase, usage.Phase,
		logger.FieldAttempt, usage.Attempt,
		"success", usage.Success)
	return nil
}

// UsageStats represents aggregated usage statistics
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

const statsColumns = `
	COUNT(*),
	COUNT(CASE WHEN success = 1 THEN 1 END),
	COALESCE(SUM(COALESCE(tokens_used, 0)), 0),
	COALESCE(SUM(COALESCE(cost, 0)), 0),
	COUNT(DISTINCT model_name)`

// GetUsageStats aggregates every call made since the given time
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	query := `SELECT` + statsColumns + ` FROM generation_usage WHERE request_timestamp >= ?`
	stats, err := t.scanStats(t.db.QueryRowContext(ctx, query, since))
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate usage")
	}
	return stats, nil
}

// GetRunUsage aggregates the calls made by one run
func (t *UsageTracker) GetRunUsage(ctx context.Context, runID string) (*UsageStats, error) {
	query := `SELECT` + statsColumns + ` FROM generation_usage WHERE run_id = ?`
	stats, err := t.scanStats(t.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate usage for run %s", runID)
	}
	return stats, nil
}

func (t *UsageTracker) scanStats(row *sql.Row) (*UsageStats, error) {
	var stats UsageStats
	if err := row.Scan(&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels); err != nil {
		return nil, err
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// ModelBreakdown represents usage statistics for a specific model
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCost         float64  `json:"total_cost"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// GetModelBreakdown returns successful usage grouped by model, most expensive first
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model_name,
			model_provider,
			COUNT(*),
			SUM(COALESCE(tokens_used, 0)),
			SUM(COALESCE(cost, 0)),
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END)
		FROM generation_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY SUM(COALESCE(cost, 0)) DESC, model_name ASC`

	rows, err := t.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query model breakdown")
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}
	return breakdown, errors.Wrap(rows.Err(), "failed to iterate model breakdown")
}

// NewModelConfig serializes request settings, or returns nil when none are set
func NewModelConfig(temperature *float64, maxTokens *int) *string {
	if temperature == nil && maxTokens == nil {
		return nil
	}
	data, err := json.Marshal(ModelConfig{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
