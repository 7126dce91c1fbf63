package tracker

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Run is one generate invocation for a project
type Run struct {
	ID           string     `json:"id"`
	Project      string     `json:"project"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	Patterns     int        `json:"patterns"`
	Unresolved   int        `json:"unresolved"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// StartRun records a run in the running state
func (t *UsageTracker) StartRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO runs (id, project, started_at, status, patterns, unresolved) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.StartedAt, run.Status, run.Patterns, run.Unresolved)
	if err != nil {
		return errors.Wrapf(err, "failed to start run %s", run.ID)
	}
	return nil
}

// FinishRun closes a run. runErr, when set, is stored as the failure message.
func (t *UsageTracker) FinishRun(ctx context.Context, id, status string, attempts int, finished time.Time, runErr error) error {
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	res, err := t.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, attempts = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		status, attempts, finished, msg, id)
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Newf("run %s was never started", id)
	}
	t.logger.Debugw("run finished", logger.FieldRunID, id, "status", status, logger.FieldAttempt, attempts)
	return nil
}

// RecentRuns lists the newest runs of a project ("" for all projects)
func (t *UsageTracker) RecentRuns(ctx context.Context, project string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, project, started_at, finished_at, status, attempts, patterns, unresolved, error_message
		FROM runs WHERE (? = '' OR project = ?) ORDER BY started_at DESC, id ASC LIMIT ?`
	rows, err := t.db.QueryContext(ctx, query, project, project, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		var msg sql.NullString
		if err := rows.Scan(&r.ID, &r.Project, &r.StartedAt, &finished, &r.Status,
			&r.Attempts, &r.Patterns, &r.Unresolved, &msg); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		if msg.Valid {
			r.ErrorMessage = &msg.String
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}
