// Package upload writes result sets into spreadsheet ranges.
//
// An upload resolves its target sheet and anchor, clears the union of the
// previous footprint and the new rectangle, writes the values with
// user-entered semantics, then formats the rectangle and reconciles its
// named range and table.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapsheets/internal/sheets"
	"github.com/leapstack-labs/leapsheets/pkg/core"
	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

// Probe defaults bound the read used to find the previous footprint.
const (
	DefaultProbeRows = 1000
	DefaultProbeCols = 52
)

// Options tune an Uploader.
type Options struct {
	// AutoCreateSheets adds missing named sheets instead of failing downstream.
	AutoCreateSheets bool
	// QueryNote attaches the query text to the title row timestamp.
	QueryNote bool
	ProbeRows int
	ProbeCols int
	// Now stamps the title row. Defaults to time.Now.
	Now func() time.Time
}

// Meta identifies the destination being uploaded.
type Meta struct {
	SourcePath string
	BlockStart int
	BlockEnd   int
	DestIndex  int
	Query      string
}

// Uploader performs uploads against one spreadsheet client.
type Uploader struct {
	client sheets.Client
	opts   Options
	logger *slog.Logger
}

// New creates an Uploader.
func New(client sheets.Client, opts Options, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ProbeRows <= 0 {
		opts.ProbeRows = DefaultProbeRows
	}
	if opts.ProbeCols <= 0 {
		opts.ProbeCols = DefaultProbeCols
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Uploader{client: client, opts: opts, logger: logger}
}

// target is the resolved sheet and anchor of an upload.
type target struct {
	sheetID int64
	known   bool
	title   string
	// row and col are the zero-based anchor.
	row, col int
	rowCount int
	colCount int
}

func (t *target) setSheet(sh *sheets.Sheet) {
	t.sheetID, t.title, t.known = sh.ID, sh.Title, true
	t.rowCount, t.colCount = sh.RowCount, sh.ColCount
}

// clamp trims g to the sheet grid when the grid size is known.
func (t *target) clamp(g sheets.GridRange) sheets.GridRange {
	if t.rowCount > 0 {
		g.EndRow = min(g.EndRow, t.rowCount)
	}
	if t.colCount > 0 {
		g.EndCol = min(g.EndCol, t.colCount)
	}
	return g
}

// Upload writes data to the destination described by cfg.
//
// Preconditions are checked before any call to the client. When the values
// were written but a later step failed, the result is returned together with
// the joined error.
func (u *Uploader) Upload(ctx context.Context, data *core.ResultSet, cfg directive.Config, meta Meta) (*core.UploadResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data == nil {
		data = &core.ResultSet{}
	}

	ss, err := u.client.GetSpreadsheet(ctx, cfg.SpreadsheetID)
	if err != nil {
		return nil, err
	}

	t, err := u.resolveTarget(ctx, ss, cfg)
	if err != nil {
		return nil, err
	}

	l := buildLayout(data, cfg.Title, cfg.DataOnly, cfg.Transpose, u.opts.Now())
	rect := sheets.GridRange{
		SheetID:  t.sheetID,
		StartRow: t.row,
		EndRow:   t.row + len(l.values),
		StartCol: t.col,
		EndCol:   t.col + l.cols,
	}

	rangeName := u.rangeName(cfg, meta)
	var existing *sheets.NamedRange
	if rangeName != "" {
		existing, _ = ss.NamedRange(rangeName)
	}

	u.clear(ctx, cfg.SpreadsheetID, t, existing, rect)

	result := &core.UploadResult{
		SheetName: t.title,
		StartCell: sheets.FormatCell(t.col+1, t.row+1),
		Rows:      rect.Rows(),
		Cols:      rect.Cols(),
	}
	if t.known {
		id := t.sheetID
		result.SheetID = &id
	}
	if rect.Empty() {
		u.logger.Info("nothing to write", "sheet", t.title, "start", result.StartCell)
		return result, nil
	}

	result.Range = rect.A1(t.title)
	if err := u.client.UpdateValues(ctx, cfg.SpreadsheetID, result.Range, l.values); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", result.Range, err)
	}

	var errs []error
	if !cfg.DataOnly {
		if err := u.format(ctx, cfg.SpreadsheetID, rect, l, meta.Query); err != nil {
			errs = append(errs, fmt.Errorf("failed to format %s: %w", result.Range, err))
		}
	}
	if rangeName != "" {
		// The name stays the destination's anchor even when it could not be
		// created or moved this time.
		result.NamedRange = rangeName
		if err := u.reconcileNamedRange(ctx, cfg.SpreadsheetID, rangeName, existing, rect); err != nil {
			errs = append(errs, fmt.Errorf("failed to set named range %s: %w", rangeName, err))
		}
	}
	if cfg.TableName != "" && !cfg.Transpose && !cfg.DataOnly {
		if err := u.reconcileTable(ctx, ss, cfg.SpreadsheetID, cfg.TableName, rect, l); err != nil {
			errs = append(errs, fmt.Errorf("failed to set table %s: %w", cfg.TableName, err))
		}
	}

	u.logger.Info("uploaded",
		"spreadsheet", cfg.SpreadsheetID,
		"range", result.Range,
		"rows", result.Rows,
		"cols", result.Cols,
		"named_range", result.NamedRange,
	)
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

// resolveTarget finds the sheet and the anchor cell. An existing named range
// is authoritative for both.
func (u *Uploader) resolveTarget(ctx context.Context, ss *sheets.Spreadsheet, cfg directive.Config) (*target, error) {
	t := &target{}
	if cfg.NamedRange != "" {
		if nr, ok := ss.NamedRange(cfg.NamedRange); ok {
			if sh, ok := ss.SheetByID(nr.Range.SheetID); ok {
				t.setSheet(sh)
				t.row, t.col = nr.Range.StartRow, nr.Range.StartCol
				return t, nil
			}
		}
	}

	if err := u.resolveSheet(ctx, ss, cfg, t); err != nil {
		return nil, err
	}

	cell := strings.TrimSpace(cfg.StartCell)
	if n, ok := directive.IsOffset(cell); ok {
		values, err := u.client.GetValues(ctx, cfg.SpreadsheetID, sheets.SheetRange(t.title))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.title, err)
		}
		t.row, t.col = len(values)+n, 0
		return t, nil
	}
	if cell != "" {
		col, row, err := sheets.ParseCell(cell)
		if err != nil {
			return nil, &directive.FormatError{Field: directive.KeyStartCell, Token: cell}
		}
		t.row, t.col = row-1, col-1
	}
	return t, nil
}

func (u *Uploader) resolveSheet(ctx context.Context, ss *sheets.Spreadsheet, cfg directive.Config, t *target) error {
	if cfg.SheetID != nil {
		if sh, ok := ss.SheetByID(*cfg.SheetID); ok {
			t.setSheet(sh)
			return nil
		}
	}
	if cfg.SheetName != "" {
		if sh, ok := ss.SheetByTitle(cfg.SheetName); ok {
			t.setSheet(sh)
			return nil
		}
		if u.opts.AutoCreateSheets {
			replies, err := u.client.BatchUpdate(ctx, cfg.SpreadsheetID, []sheets.Request{
				sheets.AddSheet{Title: cfg.SheetName, HideGridlines: true},
			})
			if err != nil {
				return fmt.Errorf("failed to create sheet %q: %w", cfg.SheetName, err)
			}
			t.title, t.known = cfg.SheetName, true
			if len(replies) > 0 {
				t.sheetID = replies[0].SheetID
			}
			u.logger.Info("created sheet", "sheet", t.title, "sheet_id", t.sheetID)
			return nil
		}
	}

	t.title = cfg.SheetRef()
	if cfg.SheetID != nil {
		t.sheetID = *cfg.SheetID
	}
	u.logger.Warn("sheet not found, using identifier as given", "sheet", t.title)
	return nil
}

func (u *Uploader) rangeName(cfg directive.Config, meta Meta) string {
	if cfg.NamedRange != "" {
		return cfg.NamedRange
	}
	if _, ok := directive.IsOffset(cfg.StartCell); ok {
		return ""
	}
	return GeneratedRangeName(meta, cfg)
}

// clear empties values and formatting of the previous footprint united with
// rect. Failures fall back to clearing rect alone and are only logged.
func (u *Uploader) clear(ctx context.Context, spreadsheetID string, t *target, existing *sheets.NamedRange, rect sheets.GridRange) {
	prev := u.probe(ctx, spreadsheetID, t)
	if existing != nil && existing.Range.SheetID == t.sheetID {
		prev = prev.Union(existing.Range)
	}
	area := t.clamp(prev.Union(rect))
	if area.Empty() {
		return
	}
	u.logger.Debug("clearing", "range", area.A1(t.title), "previous", prev.A1(t.title))

	err := u.clearArea(ctx, spreadsheetID, t.title, area)
	if err == nil {
		return
	}
	u.logger.Warn("clear failed, clearing new range only", "error", &ClearError{Range: area.A1(t.title), Err: err})

	fallback := t.clamp(rect)
	if fallback.Empty() {
		return
	}
	if err := u.clearArea(ctx, spreadsheetID, t.title, fallback); err != nil {
		u.logger.Warn("fallback clear failed", "error", &ClearError{Range: fallback.A1(t.title), Err: err})
	}
}

func (u *Uploader) clearArea(ctx context.Context, spreadsheetID, title string, g sheets.GridRange) error {
	if err := u.client.ClearValues(ctx, spreadsheetID, g.A1(title)); err != nil {
		return err
	}
	_, err := u.client.BatchUpdate(ctx, spreadsheetID, []sheets.Request{sheets.ClearFormat{Range: g}})
	return err
}

// probe returns the contiguous non-blank rectangle at the anchor: rows down
// to the first blank row, as wide as the widest of them.
func (u *Uploader) probe(ctx context.Context, spreadsheetID string, t *target) sheets.GridRange {
	g := t.clamp(sheets.GridRange{
		SheetID:  t.sheetID,
		StartRow: t.row,
		EndRow:   t.row + u.opts.ProbeRows,
		StartCol: t.col,
		EndCol:   t.col + u.opts.ProbeCols,
	})
	if g.Empty() {
		return sheets.GridRange{}
	}
	values, err := u.client.GetValues(ctx, spreadsheetID, g.A1(t.title))
	if err != nil {
		u.logger.Warn("failed to read previous range", "range", g.A1(t.title), "error", err)
		return sheets.GridRange{}
	}

	height, width := 0, 0
	for _, row := range values {
		w := lastNonBlank(row) + 1
		if w == 0 {
			break
		}
		height++
		width = max(width, w)
	}
	if height == 0 {
		return sheets.GridRange{}
	}
	g.EndRow, g.EndCol = g.StartRow+height, g.StartCol+width
	return g
}

func lastNonBlank(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i
		}
	}
	return -1
}

func (u *Uploader) format(ctx context.Context, spreadsheetID string, rect sheets.GridRange, l layout, query string) error {
	var reqs []sheets.Request
	if l.hasTitle {
		reqs = append(reqs, sheets.FormatCells{Range: rect.Row(0), Format: sheets.CellFormat{
			Bold:       true,
			Foreground: &sheets.White,
			Background: &sheets.Black,
			Align:      sheets.AlignLeft,
		}})
	}
	if l.hasHeader {
		header := rect.Row(l.header)
		if l.transposed {
			header = rect.Col(0)
		}
		reqs = append(reqs, sheets.FormatCells{Range: header, Format: sheets.CellFormat{Bold: true, Align: sheets.AlignLeft}})
	}
	reqs = append(reqs,
		sheets.Borders{Range: rect},
		sheets.AutoResize{SheetID: rect.SheetID, StartCol: rect.StartCol, EndCol: rect.EndCol},
		sheets.HideGridlines{SheetID: rect.SheetID},
	)
	if l.hasTitle && u.opts.QueryNote && strings.TrimSpace(query) != "" {
		stamp := rect.Cell(0, l.cols-1)
		reqs = append(reqs,
			sheets.FormatCells{Range: stamp, Format: sheets.CellFormat{FontSize: 8, Foreground: &sheets.Muted, Align: sheets.AlignRight}},
			sheets.SetNote{Range: stamp, Note: query},
		)
	}
	_, err := u.client.BatchUpdate(ctx, spreadsheetID, reqs)
	return err
}

func (u *Uploader) reconcileNamedRange(ctx context.Context, spreadsheetID, name string, existing *sheets.NamedRange, rect sheets.GridRange) error {
	if existing != nil {
		if existing.Range == rect {
			return nil
		}
		_, err := u.client.BatchUpdate(ctx, spreadsheetID, []sheets.Request{
			sheets.UpdateNamedRange{ID: existing.ID, Name: name, Range: rect},
		})
		return err
	}
	_, err := u.client.BatchUpdate(ctx, spreadsheetID, []sheets.Request{
		sheets.AddNamedRange{Name: name, Range: rect},
	})
	return err
}

// reconcileTable creates or updates the table over the header and data rows.
// Tables are matched by name, case-insensitively.
func (u *Uploader) reconcileTable(ctx context.Context, ss *sheets.Spreadsheet, spreadsheetID, name string, rect sheets.GridRange, l layout) error {
	if !l.hasHeader {
		return nil
	}
	tableRange := rect
	tableRange.StartRow += l.header
	columns := tableColumnNames(l.values[l.header])

	for _, sh := range ss.Sheets {
		for _, tbl := range sh.Tables {
			if strings.EqualFold(tbl.Name, name) {
				_, err := u.client.BatchUpdate(ctx, spreadsheetID, []sheets.Request{
					sheets.UpdateTable{ID: tbl.ID, Name: tbl.Name, Range: tableRange, Columns: columns},
				})
				return err
			}
		}
	}
	_, err := u.client.BatchUpdate(ctx, spreadsheetID, []sheets.Request{
		sheets.AddTable{Name: name, Range: tableRange, Columns: columns},
	})
	return err
}
