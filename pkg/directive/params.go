package directive

import (
	"regexp"
	"strconv"
	"strings"
)

// Separator joins the two halves of a combined parameter.
const Separator = " | "

var (
	cellPattern     = regexp.MustCompile(`^[A-Za-z]+[0-9]+$`)
	offsetPattern   = regexp.MustCompile(`(?i)^offset\s+(\d+)$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
	sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
)

// splitCombined splits on the first pipe. ok is false when there is no pipe.
func splitCombined(value string) (left, right string, ok bool) {
	left, right, ok = strings.Cut(value, "|")
	return strings.TrimSpace(left), strings.TrimSpace(right), ok
}

func joinCombined(left, right string) string {
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	switch {
	case left == "":
		return right
	case right == "":
		return left
	default:
		return left + Separator + right
	}
}

// IsCellReference reports whether s looks like an A1 cell or an `offset N` directive.
func IsCellReference(s string) bool {
	s = strings.TrimSpace(s)
	return cellPattern.MatchString(s) || offsetPattern.MatchString(s)
}

// IsA1Cell reports whether s is a plain A1 cell reference such as "B12".
func IsA1Cell(s string) bool {
	return cellPattern.MatchString(strings.TrimSpace(s))
}

// IsOffset parses the `offset N` syntax.
func IsOffset(s string) (int, bool) {
	m := offsetPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseStartCell splits a start_cell value into its named range and cell parts.
//
// Without a pipe the whole value is classified by shape: a cell reference or
// `offset N` is the cell, anything else is a named range. With a pipe the left
// side is always the named range and the right side the cell. The right side is
// not validated.
func ParseStartCell(value string) (namedRange, cell string) {
	left, right, ok := splitCombined(value)
	if !ok {
		if IsCellReference(left) {
			return "", left
		}
		return left, ""
	}
	return left, right
}

// FormatStartCell is the inverse of ParseStartCell.
func FormatStartCell(namedRange, cell string) string {
	return joinCombined(namedRange, cell)
}

// ParseSheetName splits a sheet_name value into a numeric sheet id and a name.
//
// Without a pipe an all-digit value is an id and anything else a name. With a
// pipe the left side is the id only when it is all digits; the right side is
// always the name.
func ParseSheetName(value string) (id *int64, name string) {
	left, right, ok := splitCombined(value)
	if !ok {
		if n, isID := parseSheetID(left); isID {
			return &n, ""
		}
		return nil, left
	}
	if n, isID := parseSheetID(left); isID {
		id = &n
	} else if right == "" {
		right = left
	}
	return id, right
}

func parseSheetID(s string) (int64, bool) {
	if !digitsPattern.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatSheetName is the inverse of ParseSheetName.
func FormatSheetName(id *int64, name string) string {
	left := ""
	if id != nil {
		left = strconv.FormatInt(*id, 10)
	}
	return joinCombined(left, name)
}

// ParseSpreadsheetID splits a spreadsheet_id value into the id and an optional
// human label. A Google Sheets URL is reduced to its id.
func ParseSpreadsheetID(value string) (id, label string) {
	left, right, _ := splitCombined(value)
	return NormalizeSpreadsheetID(left), right
}

// FormatSpreadsheetID is the inverse of ParseSpreadsheetID.
func FormatSpreadsheetID(id, label string) string {
	return joinCombined(id, label)
}

// NormalizeSpreadsheetID extracts the id from a spreadsheet URL.
// Other values are returned trimmed.
func NormalizeSpreadsheetID(value string) string {
	value = strings.TrimSpace(value)
	if m := sheetURLPattern.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	return value
}

// ParseBool coerces a directive value. ok is false when the value is absent
// (empty), in which case callers keep their default.
func ParseBool(value string) (b bool, ok bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return false, false
	}
	switch v {
	case "true", "1", "yes":
		return true, true
	default:
		return false, true
	}
}
