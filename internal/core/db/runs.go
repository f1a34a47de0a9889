// internal/core/db/runs.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/mdcollate/internal/pipeline"
	"github.com/solatis/mdcollate/internal/types"
)

// DefaultListLimit caps ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// Run is one persisted aggregation run.
type Run struct {
	RunID     types.RunID          `json:"runId"`
	Mode      types.ProcessingMode `json:"mode"`
	Documents int                  `json:"documents"`
	Outputs   int                  `json:"outputs"`
	Warnings  int                  `json:"warnings"`
	CreatedAt time.Time            `json:"createdAt"`
	Result    json.RawMessage      `json:"result"`
}

// Decode unmarshals the stored pipeline result.
func (r *Run) Decode() (*pipeline.Result, error) {
	var res pipeline.Result
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", r.RunID, err)
	}
	return &res, nil
}

type runRow struct {
	RunID       string `db:"run_id"`
	Mode        string `db:"mode"`
	Documents   int    `db:"documents"`
	Outputs     int    `db:"outputs"`
	Warnings    int    `db:"warnings"`
	Result      string `db:"result"`
	CreatedAtMs int64  `db:"created_at_ms"`
}

func (r runRow) run() *Run {
	return &Run{
		RunID:     types.RunID(r.RunID),
		Mode:      types.ProcessingMode(r.Mode),
		Documents: r.Documents,
		Outputs:   r.Outputs,
		Warnings:  r.Warnings,
		CreatedAt: time.UnixMilli(r.CreatedAtMs).UTC(),
		Result:    json.RawMessage(r.Result),
	}
}

// RunStore persists pipeline results keyed by run ID.
type RunStore struct {
	queries *Queries
	now     func() time.Time
}

// NewRunStore loads the named queries for db. The schema must already be
// migrated.
func NewRunStore(db *sqlx.DB) (*RunStore, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &RunStore{queries: q, now: time.Now}, nil
}

// SaveRun stores res. Saving the same run ID twice fails.
func (s *RunStore) SaveRun(ctx context.Context, res *pipeline.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", res.RunID, err)
	}

	created := types.RunIDTime(res.RunID)
	if created.IsZero() {
		created = s.now()
	}

	_, err = s.queries.Exec(ctx, "insert-run",
		string(res.RunID), string(res.Mode), res.Documents, len(res.Outputs), len(res.Warnings),
		string(payload), created.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", res.RunID, err)
	}
	return nil
}

// GetRun loads one run. Unknown IDs return types.ErrRunNotFound.
func (s *RunStore) GetRun(ctx context.Context, id types.RunID) (*Run, error) {
	var row runRow
	err := s.queries.Get(ctx, "get-run", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return row.run(), nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows []runRow
	if err := s.queries.Select(ctx, "list-runs", &rows, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*Run, len(rows))
	for i, r := range rows {
		runs[i] = r.run()
	}
	return runs, nil
}
