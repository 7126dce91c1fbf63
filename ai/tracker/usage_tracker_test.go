package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exemplar/errors"
	testdb "github.com/teranos/exemplar/internal/testing"
	"github.com/teranos/exemplar/internal/util"
)

func usage(runID, phase, model string, tokens int, cost float64, success bool, at time.Time) *GenerationUsage {
	done := at.Add(1500 * time.Millisecond)
	u := &GenerationUsage{
		RunID:             runID,
		Project:           "employees",
		Phase:             phase,
		Attempt:           1,
		ModelProvider:     "openrouter",
		ModelName:         model,
		ModelConfig:       NewModelConfig(util.Ptr(0.2), util.Ptr(8192)),
		RequestTimestamp:  at,
		ResponseTimestamp: &done,
		Success:           success,
	}
	if success {
		u.TokensUsed = util.Ptr(tokens)
		u.Cost = util.Ptr(cost)
	} else {
		u.ErrorMessage = util.Ptr("status 503")
	}
	return u
}

func TestTrackUsage_AndStats(t *testing.T) {
	ctx := context.Background()
	tr := NewUsageTracker(testdb.CreateTestDB(t), nil)
	now := time.Now().UTC()

	first := usage("run-1", "plan", "anthropic/claude-sonnet-4", 1000, 0.01, true, now)
	require.NoError(t, tr.TrackUsage(ctx, first))
	assert.NotZero(t, first.ID)
	require.NoError(t, tr.TrackUsage(ctx, usage("run-1", "implement", "anthropic/claude-sonnet-4", 3000, 0.04, true, now)))
	require.NoError(t, tr.TrackUsage(ctx, usage("run-1", "implement", "openai/gpt-4o", 0, 0, false, now)))
	require.NoError(t, tr.TrackUsage(ctx, usage("run-2", "plan", "openai/gpt-4o", 500, 0.002, true, now)))

	stats, err := tr.GetUsageStats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRequests)
	assert.Equal(t, 3, stats.SuccessfulRequests)
	assert.Equal(t, 4500, stats.TotalTokens)
	assert.InDelta(t, 0.052, stats.TotalCost, 1e-9)
	assert.Equal(t, 2, stats.UniqueModels)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)

	run, err := tr.GetRunUsage(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, run.TotalRequests)
	assert.Equal(t, 4000, run.TotalTokens)

	breakdown, err := tr.GetModelBreakdown(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "anthropic/claude-sonnet-4", breakdown[0].ModelName)
	assert.Equal(t, 2, breakdown[0].RequestCount)
	require.NotNil(t, breakdown[0].AvgResponseTimeMs)
	assert.InDelta(t, 1500, *breakdown[0].AvgResponseTimeMs, 5)
}

func TestGetUsageStats_Empty(t *testing.T) {
	tr := NewUsageTracker(testdb.CreateTestDB(t), nil)
	stats, err := tr.GetUsageStats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.SuccessRate)
}

func TestRuns_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tr := NewUsageTracker(testdb.CreateTestDB(t), nil)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, tr.StartRun(ctx, &Run{ID: "r1", Project: "employees", StartedAt: start, Patterns: 6}))
	require.NoError(t, tr.StartRun(ctx, &Run{ID: "r2", Project: "employees", StartedAt: start.Add(time.Minute), Patterns: 6, Unresolved: 1}))
	require.NoError(t, tr.StartRun(ctx, &Run{ID: "r3", Project: "orders", StartedAt: start.Add(2 * time.Minute)}))

	require.NoError(t, tr.FinishRun(ctx, "r1", RunStatusSucceeded, 1, start.Add(30*time.Second), nil))
	require.NoError(t, tr.FinishRun(ctx, "r2", RunStatusFailed, 3, start.Add(2*time.Minute), errors.New("validation failed")))

	runs, err := tr.RecentRuns(ctx, "employees", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, 3, runs[0].Attempts)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "validation failed", *runs[0].ErrorMessage)
	assert.Equal(t, RunStatusSucceeded, runs[1].Status)
	assert.Nil(t, runs[1].ErrorMessage)
	require.NotNil(t, runs[1].FinishedAt)

	all, err := tr.RecentRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, RunStatusRunning, all[0].Status)
}

func TestFinishRun_Unknown(t *testing.T) {
	tr := NewUsageTracker(testdb.CreateTestDB(t), nil)
	err := tr.FinishRun(context.Background(), "missing", RunStatusFailed, 0, time.Now(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never started")
}

func TestTrackUsage_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO generation_usage").
		WillReturnError(errors.New("disk I/O error"))

	tr := NewUsageTracker(db, nil)
	err = tr.TrackUsage(context.Background(), usage("run-9", "plan", "m", 1, 0, true, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetModelBreakdown_ScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"model_name", "model_provider", "count", "tokens", "cost", "avg"}).
		AddRow("m", "p", "not-a-number", 1, 0.1, nil)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err = NewUsageTracker(db, nil).GetModelBreakdown(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestNewModelConfig(t *testing.T) {
	assert.Nil(t, NewModelConfig(nil, nil))
	cfg := NewModelConfig(util.Ptr(0.5), nil)
	require.NotNil(t, cfg)
	assert.JSONEq(t, `{"temperature":0.5}`, *cfg)
}
