// Package sheets defines the spreadsheet client contract used by the upload
// engine, the request model for batched formatting calls, and A1 notation
// helpers shared by every backend.
package sheets

import "context"

// Client is the spreadsheet RPC surface. Implementations live in the google
// and xlsx subpackages; sheetstest provides an in-memory fake.
type Client interface {
	// GetSpreadsheet returns sheet, named range and table metadata.
	GetSpreadsheet(ctx context.Context, spreadsheetID string) (*Spreadsheet, error)
	// GetValues returns the formatted values of an A1 range, trailing empty
	// rows and cells omitted. The range may name a whole sheet.
	GetValues(ctx context.Context, spreadsheetID, a1 string) ([][]string, error)
	// UpdateValues writes values with user-entered semantics.
	UpdateValues(ctx context.Context, spreadsheetID, a1 string, values [][]any) error
	// ClearValues clears the values of an A1 range, keeping formatting.
	ClearValues(ctx context.Context, spreadsheetID, a1 string) error
	// BatchUpdate applies requests in order. Replies align with requests.
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []Request) ([]Reply, error)
}

// Spreadsheet is the metadata of one spreadsheet.
type Spreadsheet struct {
	ID          string
	Title       string
	Sheets      []Sheet
	NamedRanges []NamedRange
}

// Sheet is one tab of a spreadsheet. RowCount and ColCount are the grid
// size when the backend has one, zero otherwise.
type Sheet struct {
	ID       int64
	Title    string
	Index    int
	RowCount int
	ColCount int
	Tables   []Table
}

// NamedRange is a named, persistently anchored range.
type NamedRange struct {
	ID    string
	Name  string
	Range GridRange
}

// Table is a structured table object.
type Table struct {
	ID      string
	Name    string
	Range   GridRange
	Columns []string
}

// Reply carries ids assigned by a batch request.
type Reply struct {
	SheetID      int64
	NamedRangeID string
	TableID      string
}

// SheetByID returns the sheet with the given id.
func (s *Spreadsheet) SheetByID(id int64) (*Sheet, bool) {
	for i := range s.Sheets {
		if s.Sheets[i].ID == id {
			return &s.Sheets[i], true
		}
	}
	return nil, false
}

// SheetByTitle returns the sheet with the given title.
func (s *Spreadsheet) SheetByTitle(title string) (*Sheet, bool) {
	for i := range s.Sheets {
		if s.Sheets[i].Title == title {
			return &s.Sheets[i], true
		}
	}
	return nil, false
}

// NamedRange returns the named range with the given name.
func (s *Spreadsheet) NamedRange(name string) (*NamedRange, bool) {
	for i := range s.NamedRanges {
		if s.NamedRanges[i].Name == name {
			return &s.NamedRanges[i], true
		}
	}
	return nil, false
}
