package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/mdcollate/internal/directive"
	"github.com/solatis/mdcollate/internal/pipeline"
	"github.com/solatis/mdcollate/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	database, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, MigrateUp(ctx, database))
	return database
}

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		RunID: types.NewRunID(),
		Mode:  types.ModeArrayBased,
		Order: &directive.ProcessingOrder{
			OrderedDirectives: []directive.Kind{directive.FrontmatterPart, directive.DerivedFrom},
		},
		Outputs: []pipeline.Output{{
			Data: map[string]any{
				"commands": []any{map[string]any{"c1": "build"}},
				"configs":  []any{"build"},
			},
			TemplatePath: "index.md",
		}},
		Warnings:  []string{"configs: matched no values"},
		Documents: 1,
	}
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://localhost/db")
	assert.ErrorContains(t, err, "unsupported database scheme")
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		dsn    string
	}{
		{"sqlite://runs.db", "sqlite3", "runs.db"},
		{"sqlite:///var/lib/mdc/runs.db", "sqlite3", "/var/lib/mdc/runs.db"},
		{"sqlite:///tmp/runs.db?_busy_timeout=5000", "sqlite3", "/tmp/runs.db?_busy_timeout=5000"},
		{"postgres://u:p@localhost:5432/mdc?sslmode=disable", "postgres", "postgres://u:p@localhost:5432/mdc?sslmode=disable"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := parseURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, MigrateUp(ctx, database))

	statuses, err := MigrateStatus(ctx, database)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "001_aggregation_runs.sql", statuses[0].ID)
	assert.True(t, statuses[0].Applied)
	assert.NotNil(t, statuses[0].AppliedAt)
}

func TestMigrateUp_DetectsTamperedChecksum(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := database.Exec("UPDATE migrations SET checksum = 'bogus'")
	require.NoError(t, err)

	err = MigrateUp(ctx, database)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestRunStore_RoundTrip(t *testing.T) {
	store, err := NewRunStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	res := sampleResult()
	require.NoError(t, store.SaveRun(ctx, res))

	got, err := store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, got.RunID)
	assert.Equal(t, types.ModeArrayBased, got.Mode)
	assert.Equal(t, 1, got.Documents)
	assert.Equal(t, 1, got.Outputs)
	assert.Equal(t, 1, got.Warnings)
	assert.Equal(t, types.RunIDTime(res.RunID).UnixMilli(), got.CreatedAt.UnixMilli())

	decoded, err := got.Decode()
	require.NoError(t, err)
	assert.Equal(t, res.RunID, decoded.RunID)
	assert.Equal(t, res.Warnings, decoded.Warnings)
	assert.Equal(t, res.Order.OrderedDirectives, decoded.Order.OrderedDirectives)
	require.Len(t, decoded.Outputs, 1)
	assert.Equal(t, []any{"build"}, decoded.Outputs[0].Data["configs"])
	assert.Equal(t, "index.md", decoded.Outputs[0].TemplatePath)
}

func TestRunStore_DuplicateSaveFails(t *testing.T) {
	store, err := NewRunStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	res := sampleResult()
	require.NoError(t, store.SaveRun(ctx, res))
	assert.Error(t, store.SaveRun(ctx, res))
}

func TestRunStore_GetRunNotFound(t *testing.T) {
	store, err := NewRunStore(openTestDB(t))
	require.NoError(t, err)

	_, err = store.GetRun(context.Background(), types.NewRunID())
	assert.ErrorIs(t, err, types.ErrRunNotFound)
}

func TestRunStore_ListRuns(t *testing.T) {
	store, err := NewRunStore(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	var ids []types.RunID
	for i := 0; i < 3; i++ {
		res := sampleResult()
		require.NoError(t, store.SaveRun(ctx, res))
		ids = append(ids, res.RunID)
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	var got []types.RunID
	for _, r := range runs {
		got = append(got, r.RunID)
	}
	assert.ElementsMatch(t, ids, got)

	limited, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
