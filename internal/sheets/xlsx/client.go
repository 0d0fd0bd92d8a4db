// Package xlsx implements sheets.Client on local .xlsx workbooks.
//
// A spreadsheet id names a workbook file: `report` resolves to
// `<dir>/report.xlsx`, and ids ending in .xlsx are used as paths. Missing
// workbooks are created on first access. Every call opens the file, applies
// the operation and saves it.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/leapsheets/internal/sheets"
)

// Client stores spreadsheets as workbook files under a directory.
type Client struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ sheets.Client = (*Client)(nil)

// New creates a client rooted at dir.
func New(dir string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{dir: dir, logger: logger}
}

// Path returns the workbook file for a spreadsheet id.
func (c *Client) Path(spreadsheetID string) string {
	p := spreadsheetID
	if !strings.EqualFold(filepath.Ext(p), ".xlsx") {
		p += ".xlsx"
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// workbook is an open file plus its lookup tables.
type workbook struct {
	f    *excelize.File
	path string
}

func (c *Client) open(spreadsheetID string) (*workbook, error) {
	path := c.Path(spreadsheetID)
	f, err := excelize.OpenFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("creating workbook", "path", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workbook directory: %w", err)
		}
		f = excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("failed to create workbook %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &workbook{f: f, path: path}, nil
}

func (c *Client) withWorkbook(spreadsheetID string, save bool, fn func(wb *workbook) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wb, err := c.open(spreadsheetID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := wb.f.Close(); cerr != nil {
			c.logger.Warn("failed to close workbook", "path", wb.path, "error", cerr)
		}
	}()

	if err := fn(wb); err != nil {
		return err
	}
	if save {
		if err := wb.f.Save(); err != nil {
			return fmt.Errorf("failed to save workbook %s: %w", wb.path, err)
		}
	}
	return nil
}

// sheetName resolves a GridRange sheet id to its title.
func (wb *workbook) sheetName(id int64) (string, error) {
	for sid, name := range wb.f.GetSheetMap() {
		if int64(sid) == id {
			return name, nil
		}
	}
	return "", fmt.Errorf("sheet %d not found", id)
}

func (wb *workbook) sheetID(name string) (int64, bool) {
	for sid, n := range wb.f.GetSheetMap() {
		if n == name {
			return int64(sid), true
		}
	}
	return 0, false
}

// resolveSheet accepts a title or an all-digit sheet id.
func (wb *workbook) resolveSheet(ref string) (string, error) {
	if ref == "" {
		return wb.f.GetSheetName(wb.f.GetActiveSheetIndex()), nil
	}
	if _, ok := wb.sheetID(ref); ok {
		return ref, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return wb.sheetName(id)
	}
	return "", fmt.Errorf("sheet %q not found", ref)
}

// GetSpreadsheet implements sheets.Client.
func (c *Client) GetSpreadsheet(_ context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	var out *sheets.Spreadsheet
	err := c.withWorkbook(spreadsheetID, false, func(wb *workbook) error {
		out = &sheets.Spreadsheet{ID: spreadsheetID, Title: strings.TrimSuffix(filepath.Base(wb.path), ".xlsx")}
		for idx, name := range wb.f.GetSheetList() {
			id, _ := wb.sheetID(name)
			sh := sheets.Sheet{ID: id, Title: name, Index: idx}
			tables, err := wb.f.GetTables(name)
			if err != nil {
				return fmt.Errorf("failed to read tables of %s: %w", name, err)
			}
			for _, t := range tables {
				rng, err := wb.gridRange(id, t.Range)
				if err != nil {
					return err
				}
				sh.Tables = append(sh.Tables, sheets.Table{
					ID:      t.Name,
					Name:    t.Name,
					Range:   rng,
					Columns: wb.headerRow(name, rng),
				})
			}
			out.Sheets = append(out.Sheets, sh)
		}
		for _, dn := range wb.f.GetDefinedName() {
			sheet, ref := splitRefersTo(dn.RefersTo)
			id, ok := wb.sheetID(sheet)
			if !ok {
				continue
			}
			rng, err := wb.gridRange(id, ref)
			if err != nil {
				c.logger.Debug("skipping defined name", "name", dn.Name, "refers_to", dn.RefersTo)
				continue
			}
			out.NamedRanges = append(out.NamedRanges, sheets.NamedRange{ID: dn.Name, Name: dn.Name, Range: rng})
		}
		return nil
	})
	return out, err
}

// GetValues implements sheets.Client.
func (c *Client) GetValues(_ context.Context, spreadsheetID, a1 string) ([][]string, error) {
	var out [][]string
	err := c.withWorkbook(spreadsheetID, false, func(wb *workbook) error {
		name, rng, err := wb.parseRange(a1)
		if err != nil {
			return err
		}
		rows, err := wb.f.GetRows(name)
		if err != nil {
			return fmt.Errorf("failed to read rows of %s: %w", name, err)
		}
		for r := rng.StartRow; r <= len(rows) && (rng.EndRow == 0 || r <= rng.EndRow); r++ {
			row := rows[r-1]
			cells := []string{}
			for col := rng.StartCol; col <= len(row) && (rng.EndCol == 0 || col <= rng.EndCol); col++ {
				cells = append(cells, row[col-1])
			}
			out = append(out, trimRight(cells))
		}
		for len(out) > 0 && len(out[len(out)-1]) == 0 {
			out = out[:len(out)-1]
		}
		return nil
	})
	return out, err
}

// UpdateValues implements sheets.Client. Strings that read as numbers or
// booleans are stored typed, the way a user typing them would get.
func (c *Client) UpdateValues(_ context.Context, spreadsheetID, a1 string, values [][]any) error {
	return c.withWorkbook(spreadsheetID, true, func(wb *workbook) error {
		name, rng, err := wb.parseRange(a1)
		if err != nil {
			return err
		}
		for i, row := range values {
			for j, v := range row {
				cell := sheets.FormatCell(rng.StartCol+j, rng.StartRow+i)
				if err := wb.f.SetCellValue(name, cell, userEntered(v)); err != nil {
					return fmt.Errorf("failed to set %s!%s: %w", name, cell, err)
				}
			}
		}
		return nil
	})
}

// ClearValues implements sheets.Client.
func (c *Client) ClearValues(_ context.Context, spreadsheetID, a1 string) error {
	return c.withWorkbook(spreadsheetID, true, func(wb *workbook) error {
		name, rng, err := wb.parseRange(a1)
		if err != nil {
			return err
		}
		rows, err := wb.f.GetRows(name)
		if err != nil {
			return fmt.Errorf("failed to read rows of %s: %w", name, err)
		}
		for r := rng.StartRow; r <= len(rows) && (rng.EndRow == 0 || r <= rng.EndRow); r++ {
			for col := rng.StartCol; col <= len(rows[r-1]) && (rng.EndCol == 0 || col <= rng.EndCol); col++ {
				if err := wb.f.SetCellValue(name, sheets.FormatCell(col, r), nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (wb *workbook) parseRange(a1 string) (string, sheets.Range, error) {
	rng, err := sheets.ParseRange(a1)
	if err != nil {
		return "", sheets.Range{}, err
	}
	name, err := wb.resolveSheet(rng.Sheet)
	return name, rng, err
}

func (wb *workbook) gridRange(sheetID int64, ref string) (sheets.GridRange, error) {
	rng, err := sheets.ParseRange(strings.ReplaceAll(ref, "$", ""))
	if err != nil || !rng.Bounded() {
		return sheets.GridRange{}, fmt.Errorf("invalid reference %q", ref)
	}
	return sheets.GridRange{
		SheetID:  sheetID,
		StartRow: rng.StartRow - 1,
		EndRow:   rng.EndRow,
		StartCol: rng.StartCol - 1,
		EndCol:   rng.EndCol,
	}, nil
}

func (wb *workbook) headerRow(sheet string, g sheets.GridRange) []string {
	cols := make([]string, 0, g.Cols())
	for col := g.StartCol; col < g.EndCol; col++ {
		v, _ := wb.f.GetCellValue(sheet, sheets.FormatCell(col+1, g.StartRow+1))
		cols = append(cols, v)
	}
	return cols
}

// splitRefersTo splits `'My Sheet'!$A$1:$B$2` into sheet and cell reference.
func splitRefersTo(refersTo string) (sheet, ref string) {
	refersTo = strings.TrimPrefix(refersTo, "=")
	i := strings.LastIndexByte(refersTo, '!')
	if i < 0 {
		return "", refersTo
	}
	sheet = refersTo[:i]
	if len(sheet) >= 2 && sheet[0] == '\'' && sheet[len(sheet)-1] == '\'' {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, refersTo[i+1:]
}

func refersTo(sheet string, g sheets.GridRange) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	return fmt.Sprintf("%s!$%s$%d:$%s$%d", quoted,
		sheets.IndexToColumn(g.StartCol+1), g.StartRow+1,
		sheets.IndexToColumn(g.EndCol), g.EndRow)
}

func userEntered(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && !hasLeadingZero(s) {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !hasLeadingZero(s) {
		return f
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return s
}

// hasLeadingZero keeps identifiers such as zip codes as text.
func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}

func trimRight(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
