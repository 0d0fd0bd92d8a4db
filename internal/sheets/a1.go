package sheets

import (
	"fmt"
	"strconv"
	"strings"
)

// GridRange is a zero-based, half-open cell rectangle on one sheet.
type GridRange struct {
	SheetID  int64
	StartRow int
	EndRow   int
	StartCol int
	EndCol   int
}

// Rows returns the row count.
func (g GridRange) Rows() int { return g.EndRow - g.StartRow }

// Cols returns the column count.
func (g GridRange) Cols() int { return g.EndCol - g.StartCol }

// Empty reports whether the range covers no cells.
func (g GridRange) Empty() bool { return g.Rows() <= 0 || g.Cols() <= 0 }

// Union returns the bounding rectangle of g and o. Empty ranges are ignored.
func (g GridRange) Union(o GridRange) GridRange {
	if g.Empty() {
		return o
	}
	if o.Empty() {
		return g
	}
	return GridRange{
		SheetID:  g.SheetID,
		StartRow: min(g.StartRow, o.StartRow),
		EndRow:   max(g.EndRow, o.EndRow),
		StartCol: min(g.StartCol, o.StartCol),
		EndCol:   max(g.EndCol, o.EndCol),
	}
}

// Row returns the single-row range at offset i from the top.
func (g GridRange) Row(i int) GridRange {
	g.StartRow += i
	g.EndRow = g.StartRow + 1
	return g
}

// Col returns the single-column range at offset i from the left.
func (g GridRange) Col(i int) GridRange {
	g.StartCol += i
	g.EndCol = g.StartCol + 1
	return g
}

// Cell returns the single cell at (row, col) offsets from the top left.
func (g GridRange) Cell(row, col int) GridRange {
	return GridRange{
		SheetID:  g.SheetID,
		StartRow: g.StartRow + row,
		EndRow:   g.StartRow + row + 1,
		StartCol: g.StartCol + col,
		EndCol:   g.StartCol + col + 1,
	}
}

// A1 renders the range on sheet.
func (g GridRange) A1(sheet string) string {
	return RangeA1(sheet, g.StartCol+1, g.StartRow+1, g.EndCol, g.EndRow)
}

// ColumnToIndex converts column letters to a 1-based index: A=1, Z=26, AA=27.
func ColumnToIndex(col string) (int, error) {
	if col == "" {
		return 0, fmt.Errorf("empty column")
	}
	n := 0
	for _, r := range strings.ToUpper(col) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", col)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n, nil
}

// IndexToColumn converts a 1-based column index to letters.
func IndexToColumn(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// IncrementColumn advances column letters by n.
func IncrementColumn(col string, n int) (string, error) {
	idx, err := ColumnToIndex(col)
	if err != nil {
		return "", err
	}
	if idx+n < 1 {
		return "", fmt.Errorf("column %s%+d is before A", col, n)
	}
	return IndexToColumn(idx + n), nil
}

// ParseCell splits an A1 cell into 1-based column and row.
func ParseCell(cell string) (col, row int, err error) {
	cell = strings.TrimSpace(cell)
	i := 0
	for i < len(cell) && isLetter(cell[i]) {
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	col, err = ColumnToIndex(cell[:i])
	if err != nil {
		return 0, 0, err
	}
	row, err = strconv.Atoi(cell[i:])
	if err != nil || row < 1 || strings.HasPrefix(cell[i:], "+") {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	return col, row, nil
}

// FormatCell renders 1-based column and row as an A1 cell.
func FormatCell(col, row int) string {
	return IndexToColumn(col) + strconv.Itoa(row)
}

// QuoteSheet renders a sheet name for A1 notation. Names that are not plain
// identifiers are single-quoted with embedded quotes doubled. All-digit
// names are sheet ids and stay bare.
func QuoteSheet(name string) string {
	if name == "" || isDigits(name) {
		return name
	}
	plain := !isDigit(name[0])
	for i := 0; i < len(name) && plain; i++ {
		c := name[i]
		plain = isLetter(c) || isDigit(c) || c == '_'
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// RangeA1 renders a rectangle with 1-based inclusive corners.
func RangeA1(sheet string, startCol, startRow, endCol, endRow int) string {
	ref := FormatCell(startCol, startRow) + ":" + FormatCell(endCol, endRow)
	if sheet == "" {
		return ref
	}
	return QuoteSheet(sheet) + "!" + ref
}

// Range is a parsed A1 reference with 1-based inclusive corners. A zero
// EndCol or EndRow means the range is unbounded in that direction.
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// Bounded reports whether both end corners are set.
func (r Range) Bounded() bool { return r.EndCol > 0 && r.EndRow > 0 }

// SheetRange is the A1 reference of a whole sheet. The name is always
// quoted so that names such as "Sheet1" are not read as cells.
func SheetRange(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// ParseRange parses `Sheet!A1:B2`, `'My Sheet'!A1`, `A1:B2` or a bare sheet
// name. A bare sheet name covers the whole sheet.
func ParseRange(a1 string) (Range, error) {
	sheet, ref, hasSheet := a1, "", false
	if i := strings.LastIndexByte(a1, '!'); i >= 0 {
		sheet, ref, hasSheet = a1[:i], a1[i+1:], true
	}
	if a1 == "" {
		return Range{}, fmt.Errorf("empty range")
	}
	quoted := strings.HasPrefix(sheet, "'")
	sheet = unquoteSheet(sheet)

	if !hasSheet {
		from, to, _ := strings.Cut(a1, ":")
		if quoted || !validCell(from) || (to != "" && !validCell(to)) {
			return Range{Sheet: sheet, StartCol: 1, StartRow: 1}, nil
		}
		sheet, ref = "", a1
	}

	from, to, found := strings.Cut(ref, ":")
	if !found {
		to = from
	}
	c1, r1, err := ParseCell(from)
	if err != nil {
		return Range{}, err
	}
	c2, r2, err := ParseCell(to)
	if err != nil {
		return Range{}, err
	}
	return Range{
		Sheet:    sheet,
		StartCol: min(c1, c2),
		StartRow: min(r1, r2),
		EndCol:   max(c1, c2),
		EndRow:   max(r1, r2),
	}, nil
}

func validCell(s string) bool {
	_, _, err := ParseCell(s)
	return err == nil
}

func unquoteSheet(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}
