// Package sheetstest provides an in-memory sheets.Client for tests.
package sheetstest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/leapsheets/internal/sheets"
)

// Format is the formatting state of one cell.
type Format struct {
	Bold       bool
	FontSize   int
	Foreground *sheets.Color
	Background *sheets.Color
	Align      sheets.Alignment
	Border     bool
	Note       string
}

func (f Format) isZero() bool {
	return !f.Bold && f.FontSize == 0 && f.Foreground == nil && f.Background == nil &&
		f.Align == "" && !f.Border && f.Note == ""
}

type cellKey struct{ row, col int }

type sheet struct {
	id        int64
	title     string
	rows      int
	cols      int
	cells     map[cellKey]string
	formats   map[cellKey]Format
	tables    []sheets.Table
	gridlines bool
}

type book struct {
	sheets []*sheet
	named  []sheets.NamedRange
	seq    int
}

// Fake is a goroutine-safe in-memory spreadsheet service.
type Fake struct {
	mu     sync.Mutex
	books  map[string]*book
	nextID int64

	// Calls records every method invocation as "Method arg".
	Calls []string
	// ClearErr, when set, fails ClearValues and ClearFormat batches.
	ClearErr error
	// UpdateErr, when set, fails UpdateValues.
	UpdateErr error
	// RequestErr, when set, is consulted for every batch request; a non-nil
	// result fails the batch at that request.
	RequestErr func(r sheets.Request) error
}

var _ sheets.Client = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{books: map[string]*book{}, nextID: 100}
}

// AddSpreadsheet registers a spreadsheet whose sheets get ids 0, 1, ...
func (f *Fake) AddSpreadsheet(id string, titles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &book{}
	for i, t := range titles {
		b.sheets = append(b.sheets, newSheet(int64(i), t))
	}
	f.books[id] = b
}

func newSheet(id int64, title string) *sheet {
	return &sheet{id: id, title: title, cells: map[cellKey]string{}, formats: map[cellKey]Format{}, gridlines: true}
}

// AddSheet adds a sheet with an explicit id, creating the spreadsheet when needed.
func (f *Fake) AddSheet(spreadsheetID string, id int64, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[spreadsheetID]
	if !ok {
		b = &book{}
		f.books[spreadsheetID] = b
	}
	b.sheets = append(b.sheets, newSheet(id, title))
}

// SetGridSize reports a grid size for a sheet in its metadata.
func (f *Fake) SetGridSize(spreadsheetID, sheetTitle string, rows, cols int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh := f.mustSheet(spreadsheetID, sheetTitle)
	sh.rows, sh.cols = rows, cols
}

// NamedRanges returns the defined named ranges.
func (f *Fake) NamedRanges(spreadsheetID string) []sheets.NamedRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sheets.NamedRange(nil), f.books[spreadsheetID].named...)
}

// Tables returns the tables of a sheet.
func (f *Fake) Tables(spreadsheetID, sheetTitle string) []sheets.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sheets.Table(nil), f.mustSheet(spreadsheetID, sheetTitle).tables...)
}

// Seed writes raw values starting at an A1 cell without recording a call.
func (f *Fake) Seed(spreadsheetID, sheetTitle, startCell string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh := f.mustSheet(spreadsheetID, sheetTitle)
	col, row, err := sheets.ParseCell(startCell)
	if err != nil {
		panic(err)
	}
	for i, r := range rows {
		for j, v := range r {
			sh.set(cellKey{row - 1 + i, col - 1 + j}, v)
		}
	}
}

// SeedFormat formats a rectangle without recording a call.
func (f *Fake) SeedFormat(spreadsheetID, sheetTitle string, g sheets.GridRange, format Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh := f.mustSheet(spreadsheetID, sheetTitle)
	for r := g.StartRow; r < g.EndRow; r++ {
		for c := g.StartCol; c < g.EndCol; c++ {
			sh.formats[cellKey{r, c}] = format
		}
	}
}

// Value returns the value of one cell.
func (f *Fake) Value(spreadsheetID, sheetTitle, cell string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, row, _ := sheets.ParseCell(cell)
	return f.mustSheet(spreadsheetID, sheetTitle).cells[cellKey{row - 1, col - 1}]
}

// FormatAt returns the format of one cell.
func (f *Fake) FormatAt(spreadsheetID, sheetTitle, cell string) Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, row, _ := sheets.ParseCell(cell)
	return f.mustSheet(spreadsheetID, sheetTitle).formats[cellKey{row - 1, col - 1}]
}

// NonEmptyCells lists cells holding a value, in row-major order.
func (f *Fake) NonEmptyCells(spreadsheetID, sheetTitle string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh := f.mustSheet(spreadsheetID, sheetTitle)
	keys := make([]cellKey, 0, len(sh.cells))
	for k := range sh.cells {
		keys = append(keys, k)
	}
	return cellNames(keys)
}

// FormattedCells lists cells carrying any formatting, in row-major order.
func (f *Fake) FormattedCells(spreadsheetID, sheetTitle string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh := f.mustSheet(spreadsheetID, sheetTitle)
	var keys []cellKey
	for k, v := range sh.formats {
		if !v.isZero() {
			keys = append(keys, k)
		}
	}
	return cellNames(keys)
}

// GridlinesHidden reports whether a sheet has its gridlines hidden.
func (f *Fake) GridlinesHidden(spreadsheetID, sheetTitle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.mustSheet(spreadsheetID, sheetTitle).gridlines
}

// CallCount counts recorded calls whose name starts with prefix.
func (f *Fake) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func cellNames(keys []cellKey) []string {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].row != keys[j].row {
			return keys[i].row < keys[j].row
		}
		return keys[i].col < keys[j].col
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = sheets.FormatCell(k.col+1, k.row+1)
	}
	return out
}

func (f *Fake) mustSheet(spreadsheetID, title string) *sheet {
	b, ok := f.books[spreadsheetID]
	if !ok {
		panic(fmt.Sprintf("sheetstest: unknown spreadsheet %q", spreadsheetID))
	}
	for _, sh := range b.sheets {
		if sh.title == title {
			return sh
		}
	}
	panic(fmt.Sprintf("sheetstest: unknown sheet %q", title))
}

func (sh *sheet) set(k cellKey, v string) {
	if v == "" {
		delete(sh.cells, k)
		return
	}
	sh.cells[k] = v
}

func (f *Fake) book(id string) (*book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("spreadsheet %s not found", id)
	}
	return b, nil
}

func (b *book) byRef(ref string) (*sheet, error) {
	for _, sh := range b.sheets {
		if sh.title == ref {
			return sh, nil
		}
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return b.byID(id)
	}
	return nil, fmt.Errorf("unable to parse range: %s", ref)
}

func (b *book) byID(id int64) (*sheet, error) {
	for _, sh := range b.sheets {
		if sh.id == id {
			return sh, nil
		}
	}
	return nil, fmt.Errorf("no sheet with id %d", id)
}

// unbounded stands in for an open-ended range edge.
const unbounded = 1 << 20

func (f *Fake) resolve(spreadsheetID, a1 string) (*sheet, sheets.GridRange, error) {
	b, err := f.book(spreadsheetID)
	if err != nil {
		return nil, sheets.GridRange{}, err
	}
	rng, err := sheets.ParseRange(a1)
	if err != nil {
		return nil, sheets.GridRange{}, err
	}
	sh, err := b.byRef(rng.Sheet)
	if err != nil {
		return nil, sheets.GridRange{}, err
	}
	g := sheets.GridRange{SheetID: sh.id, StartRow: rng.StartRow - 1, EndRow: rng.EndRow, StartCol: rng.StartCol - 1, EndCol: rng.EndCol}
	if !rng.Bounded() {
		g.EndRow, g.EndCol = unbounded, unbounded
	}
	return sh, g, nil
}

// GetSpreadsheet implements sheets.Client.
func (f *Fake) GetSpreadsheet(_ context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "GetSpreadsheet "+spreadsheetID)
	b, err := f.book(spreadsheetID)
	if err != nil {
		return nil, err
	}
	out := &sheets.Spreadsheet{ID: spreadsheetID, Title: spreadsheetID}
	for i, sh := range b.sheets {
		out.Sheets = append(out.Sheets, sheets.Sheet{
			ID:       sh.id,
			Title:    sh.title,
			Index:    i,
			RowCount: sh.rows,
			ColCount: sh.cols,
			Tables:   append([]sheets.Table(nil), sh.tables...),
		})
	}
	out.NamedRanges = append(out.NamedRanges, b.named...)
	return out, nil
}

// GetValues implements sheets.Client.
func (f *Fake) GetValues(_ context.Context, spreadsheetID, a1 string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "GetValues "+a1)
	sh, g, err := f.resolve(spreadsheetID, a1)
	if err != nil {
		return nil, err
	}
	maxRow, maxCol := g.StartRow, g.StartCol
	for k := range sh.cells {
		if contains(g, k) {
			maxRow, maxCol = max(maxRow, k.row+1), max(maxCol, k.col+1)
		}
	}
	var rows [][]string
	for r := g.StartRow; r < maxRow; r++ {
		row := []string{}
		for c := g.StartCol; c < maxCol; c++ {
			row = append(row, sh.cells[cellKey{r, c}])
		}
		for len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		rows = append(rows, row)
	}
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

// UpdateValues implements sheets.Client.
func (f *Fake) UpdateValues(_ context.Context, spreadsheetID, a1 string, values [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "UpdateValues "+a1)
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	sh, g, err := f.resolve(spreadsheetID, a1)
	if err != nil {
		return err
	}
	for i, row := range values {
		for j, v := range row {
			sh.set(cellKey{g.StartRow + i, g.StartCol + j}, stringify(v))
		}
	}
	return nil
}

// ClearValues implements sheets.Client.
func (f *Fake) ClearValues(_ context.Context, spreadsheetID, a1 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ClearValues "+a1)
	if f.ClearErr != nil {
		return f.ClearErr
	}
	sh, g, err := f.resolve(spreadsheetID, a1)
	if err != nil {
		return err
	}
	for k := range sh.cells {
		if contains(g, k) {
			delete(sh.cells, k)
		}
	}
	return nil
}

// BatchUpdate implements sheets.Client. A failing request aborts the batch
// and leaves earlier requests applied.
func (f *Fake) BatchUpdate(_ context.Context, spreadsheetID string, requests []sheets.Request) ([]sheets.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.book(spreadsheetID)
	if err != nil {
		return nil, err
	}
	replies := make([]sheets.Reply, len(requests))
	for i, r := range requests {
		f.Calls = append(f.Calls, fmt.Sprintf("BatchUpdate %T", r))
		if f.RequestErr != nil {
			if err := f.RequestErr(r); err != nil {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
		}
		reply, err := f.apply(b, r)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		replies[i] = reply
	}
	return replies, nil
}

func (f *Fake) apply(b *book, r sheets.Request) (sheets.Reply, error) {
	switch r := r.(type) {
	case sheets.AddSheet:
		for _, sh := range b.sheets {
			if sh.title == r.Title {
				return sheets.Reply{}, fmt.Errorf("sheet %q already exists", r.Title)
			}
		}
		sh := newSheet(f.nextID, r.Title)
		f.nextID++
		sh.gridlines = !r.HideGridlines
		b.sheets = append(b.sheets, sh)
		return sheets.Reply{SheetID: sh.id}, nil

	case sheets.HideGridlines:
		sh, err := b.byID(r.SheetID)
		if err != nil {
			return sheets.Reply{}, err
		}
		sh.gridlines = false

	case sheets.FormatCells:
		return sheets.Reply{}, eachFormat(b, r.Range, func(fm *Format) {
			fm.Bold = r.Format.Bold
			if r.Format.FontSize > 0 {
				fm.FontSize = r.Format.FontSize
			}
			if r.Format.Foreground != nil {
				fm.Foreground = r.Format.Foreground
			}
			if r.Format.Background != nil {
				fm.Background = r.Format.Background
			}
			if r.Format.Align != "" {
				fm.Align = r.Format.Align
			}
		})

	case sheets.ClearFormat:
		if f.ClearErr != nil {
			return sheets.Reply{}, f.ClearErr
		}
		sh, err := b.byID(r.Range.SheetID)
		if err != nil {
			return sheets.Reply{}, err
		}
		for k := range sh.formats {
			if contains(r.Range, k) {
				delete(sh.formats, k)
			}
		}

	case sheets.Borders:
		return sheets.Reply{}, eachFormat(b, r.Range, func(fm *Format) { fm.Border = true })

	case sheets.AutoResize:
		if _, err := b.byID(r.SheetID); err != nil {
			return sheets.Reply{}, err
		}

	case sheets.SetNote:
		return sheets.Reply{}, eachFormat(b, r.Range.Cell(0, 0), func(fm *Format) { fm.Note = r.Note })

	case sheets.AddNamedRange:
		for _, nr := range b.named {
			if nr.Name == r.Name {
				return sheets.Reply{}, fmt.Errorf("named range %q already exists", r.Name)
			}
		}
		b.seq++
		id := "nr-" + strconv.Itoa(b.seq)
		b.named = append(b.named, sheets.NamedRange{ID: id, Name: r.Name, Range: r.Range})
		return sheets.Reply{NamedRangeID: id}, nil

	case sheets.UpdateNamedRange:
		for i := range b.named {
			if b.named[i].ID == r.ID {
				b.named[i].Range = r.Range
				return sheets.Reply{NamedRangeID: r.ID}, nil
			}
		}
		return sheets.Reply{}, fmt.Errorf("named range %s not found", r.ID)

	case sheets.AddTable:
		sh, err := b.byID(r.Range.SheetID)
		if err != nil {
			return sheets.Reply{}, err
		}
		b.seq++
		id := "tbl-" + strconv.Itoa(b.seq)
		sh.tables = append(sh.tables, sheets.Table{ID: id, Name: r.Name, Range: r.Range, Columns: r.Columns})
		return sheets.Reply{TableID: id}, nil

	case sheets.UpdateTable:
		for _, sh := range b.sheets {
			for i := range sh.tables {
				if sh.tables[i].ID == r.ID {
					sh.tables[i].Range = r.Range
					sh.tables[i].Columns = r.Columns
					return sheets.Reply{TableID: r.ID}, nil
				}
			}
		}
		return sheets.Reply{}, fmt.Errorf("table %s not found", r.ID)

	default:
		return sheets.Reply{}, fmt.Errorf("unsupported request %T", r)
	}
	return sheets.Reply{}, nil
}

func eachFormat(b *book, g sheets.GridRange, fn func(*Format)) error {
	sh, err := b.byID(g.SheetID)
	if err != nil {
		return err
	}
	for r := g.StartRow; r < g.EndRow; r++ {
		for c := g.StartCol; c < g.EndCol; c++ {
			k := cellKey{r, c}
			fm := sh.formats[k]
			fn(&fm)
			sh.formats[k] = fm
		}
	}
	return nil
}

func contains(g sheets.GridRange, k cellKey) bool {
	return k.row >= g.StartRow && k.row < g.EndRow && k.col >= g.StartCol && k.col < g.EndCol
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}
