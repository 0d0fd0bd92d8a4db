package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapsheets/pkg/core"
)

const exportColumns = `id, run_id, source_path, block_index, destination, spreadsheet_id,
	sheet_name, range_a1, named_range, row_count, col_count, status, error, started_at, completed_at`

// RecordExport stores one destination outcome. An empty ID is generated and
// zero timestamps are set to now.
func (s *SQLiteStore) RecordExport(rec *core.ExportRecord) error {
	if s.db == nil {
		return errNotOpened()
	}
	if rec.ID == "" {
		rec.ID = generateID()
	}
	now := time.Now().UTC()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = now
	}
	var runID any
	if rec.RunID != "" {
		runID = rec.RunID
	}

	_, err := s.db.Exec(`INSERT INTO exports (`+exportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, runID, rec.SourcePath, rec.BlockIndex, rec.Destination, rec.SpreadsheetID,
		rec.SheetName, rec.Range, rec.NamedRange, rec.Rows, rec.Cols, string(rec.Status), rec.Error,
		rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record export: %w", err)
	}
	return nil
}

// ListExports returns the most recent exports first.
func (s *SQLiteStore) ListExports(limit int) ([]*core.ExportRecord, error) {
	return s.queryExports(`SELECT `+exportColumns+` FROM exports
		ORDER BY completed_at DESC, rowid DESC LIMIT ?`, normalizeLimit(limit))
}

// ListExportsForRun returns the exports of one run in the order they ran.
func (s *SQLiteStore) ListExportsForRun(runID string) ([]*core.ExportRecord, error) {
	return s.queryExports(`SELECT `+exportColumns+` FROM exports
		WHERE run_id = ? ORDER BY rowid`, runID)
}

// ListExportsForSource returns the most recent exports of one source file first.
func (s *SQLiteStore) ListExportsForSource(sourcePath string, limit int) ([]*core.ExportRecord, error) {
	return s.queryExports(`SELECT `+exportColumns+` FROM exports
		WHERE source_path = ? ORDER BY completed_at DESC, rowid DESC LIMIT ?`, sourcePath, normalizeLimit(limit))
}

// LatestExport returns the last export of one destination, or nil when it
// was never exported.
func (s *SQLiteStore) LatestExport(sourcePath string, blockIndex, destination int) (*core.ExportRecord, error) {
	if s.db == nil {
		return nil, errNotOpened()
	}
	row := s.db.QueryRow(`SELECT `+exportColumns+` FROM exports
		WHERE source_path = ? AND block_index = ? AND destination = ?
		ORDER BY completed_at DESC, rowid DESC LIMIT 1`, sourcePath, blockIndex, destination)
	rec, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest export: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) queryExports(query string, args ...any) ([]*core.ExportRecord, error) {
	if s.db == nil {
		return nil, errNotOpened()
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanExport(row scanner) (*core.ExportRecord, error) {
	rec := &core.ExportRecord{}
	var runID sql.NullString
	var status string
	err := row.Scan(&rec.ID, &runID, &rec.SourcePath, &rec.BlockIndex, &rec.Destination, &rec.SpreadsheetID,
		&rec.SheetName, &rec.Range, &rec.NamedRange, &rec.Rows, &rec.Cols, &status, &rec.Error,
		&rec.StartedAt, &rec.CompletedAt)
	if err != nil {
		return nil, err
	}
	rec.RunID = runID.String
	rec.Status = core.ExportStatus(status)
	return rec, nil
}
