package sheets

// Request is one operation of a batch update.
type Request interface {
	request()
}

// Color is an RGB color with components in [0, 1].
type Color struct {
	Red, Green, Blue float64
}

// Common colors.
var (
	Black = Color{}
	White = Color{Red: 1, Green: 1, Blue: 1}
	Muted = Color{Red: 0.4, Green: 0.4, Blue: 0.4}
)

// Alignment is a horizontal alignment.
type Alignment string

// Horizontal alignments.
const (
	AlignLeft  Alignment = "LEFT"
	AlignRight Alignment = "RIGHT"
)

// CellFormat is the subset of cell formatting the engine applies.
type CellFormat struct {
	Bold       bool
	FontSize   int
	Foreground *Color
	Background *Color
	Align      Alignment
}

// AddSheet creates a sheet.
type AddSheet struct {
	Title         string
	HideGridlines bool
}

// HideGridlines hides the gridlines of a sheet.
type HideGridlines struct {
	SheetID int64
}

// FormatCells applies a format to every cell of a range.
type FormatCells struct {
	Range  GridRange
	Format CellFormat
}

// ClearFormat resets formatting, borders and notes of a range.
type ClearFormat struct {
	Range GridRange
}

// Borders draws a solid 1px border around a range.
type Borders struct {
	Range GridRange
}

// AutoResize fits column widths to their content. Columns are zero-based, half-open.
type AutoResize struct {
	SheetID  int64
	StartCol int
	EndCol   int
}

// SetNote attaches a note to the top-left cell of a range.
type SetNote struct {
	Range GridRange
	Note  string
}

// AddNamedRange defines a named range.
type AddNamedRange struct {
	Name  string
	Range GridRange
}

// UpdateNamedRange moves an existing named range.
type UpdateNamedRange struct {
	ID    string
	Name  string
	Range GridRange
}

// AddTable creates a table.
type AddTable struct {
	Name    string
	Range   GridRange
	Columns []string
}

// UpdateTable replaces the range and columns of an existing table.
type UpdateTable struct {
	ID      string
	Name    string
	Range   GridRange
	Columns []string
}

func (AddSheet) request()         {}
func (HideGridlines) request()    {}
func (FormatCells) request()      {}
func (ClearFormat) request()      {}
func (Borders) request()          {}
func (AutoResize) request()       {}
func (SetNote) request()          {}
func (AddNamedRange) request()    {}
func (UpdateNamedRange) request() {}
func (AddTable) request()         {}
func (UpdateTable) request()      {}
