package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsheets/internal/testutil"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"runs", "exports"} {
		rows, err := store.DB().Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, store.InitSchema(), "migrations are idempotent")
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	_, err := store.CreateRun("q.sql")
	assert.Error(t, err)
	assert.Error(t, store.RecordExport(&core.ExportRecord{}))
	_, err = store.ListExports(10)
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		status core.RunStatus
		errMsg string
	}{
		{name: "completed", status: core.RunStatusCompleted},
		{name: "failed", status: core.RunStatusFailed, errMsg: "sheet not found"},
		{name: "cancelled", status: core.RunStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun("reports/sales.sql")
			require.NoError(t, err)
			assert.Equal(t, core.RunStatusRunning, run.Status)
			assert.NotEmpty(t, run.ID)

			require.NoError(t, store.CompleteRun(run.ID, tt.status, tt.errMsg))

			got, err := store.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.errMsg, got.Error)
			assert.Equal(t, "reports/sales.sql", got.SourcePath)
			require.NotNil(t, got.CompletedAt)
			assert.False(t, got.CompletedAt.Before(got.StartedAt))
		})
	}
}

func TestSQLiteStore_RunErrors(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("missing")
	assert.ErrorContains(t, err, "run not found")
	assert.ErrorContains(t, store.CompleteRun("missing", core.RunStatusCompleted, ""), "run not found")
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)

	var ids []string
	for _, src := range []string{"a.sql", "b.sql", "c.sql"} {
		run, err := store.CreateRun(src)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_Exports(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("q.sql")
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	records := []*core.ExportRecord{
		{RunID: run.ID, SourcePath: "q.sql", BlockIndex: 0, Destination: 0, SpreadsheetID: "S", SheetName: "Sheet1",
			Range: "Sheet1!A1:B2", NamedRange: "ls_abc", Rows: 2, Cols: 2, Status: core.ExportStatusExported,
			StartedAt: base, CompletedAt: base.Add(time.Second)},
		{RunID: run.ID, SourcePath: "q.sql", BlockIndex: 0, Destination: 1, Status: core.ExportStatusSkipped,
			StartedAt: base, CompletedAt: base.Add(2 * time.Second)},
		{SourcePath: "other.sql", Status: core.ExportStatusFailed, Error: "boom",
			StartedAt: base, CompletedAt: base.Add(3 * time.Second)},
		{RunID: run.ID, SourcePath: "q.sql", BlockIndex: 0, Destination: 0, Range: "Sheet1!A1:B3", Rows: 3, Cols: 2,
			Status: core.ExportStatusExported, StartedAt: base, CompletedAt: base.Add(4 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, store.RecordExport(rec))
		assert.NotEmpty(t, rec.ID)
	}

	all, err := store.ListExports(0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, records[3].ID, all[0].ID)

	forRun, err := store.ListExportsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, forRun, 3)
	assert.Equal(t, records[0].ID, forRun[0].ID)
	assert.Equal(t, "ls_abc", forRun[0].NamedRange)
	assert.Equal(t, base.Add(time.Second), forRun[0].CompletedAt.UTC())

	forSource, err := store.ListExportsForSource("other.sql", 10)
	require.NoError(t, err)
	require.Len(t, forSource, 1)
	assert.Equal(t, "boom", forSource[0].Error)
	assert.Empty(t, forSource[0].RunID)

	latest, err := store.LatestExport("q.sql", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Sheet1!A1:B3", latest.Range)
	assert.Equal(t, 3, latest.Rows)

	none, err := store.LatestExport("q.sql", 5, 0)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first := NewSQLiteStore(nil)
	require.NoError(t, first.Open(path))
	require.NoError(t, first.InitSchema())
	require.NoError(t, first.RecordExport(&core.ExportRecord{SourcePath: "q.sql", Status: core.ExportStatusExported}))
	require.NoError(t, first.Close())

	second := NewSQLiteStore(nil)
	require.NoError(t, second.Open(path))
	defer func() { _ = second.Close() }()
	require.NoError(t, second.InitSchema())

	recs, err := second.ListExports(10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
