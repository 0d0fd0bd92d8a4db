package upload

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// timestampLayout renders times in cells and in the title row.
const timestampLayout = "2006-01-02 15:04:05"

// layout is the value matrix of one upload plus where its parts sit.
type layout struct {
	values   [][]any
	hasTitle bool
	// header is the matrix row (or column, when transposed) holding column names.
	header     int
	hasHeader  bool
	transposed bool
	cols       int
}

// buildLayout assembles header, data and title rows.
func buildLayout(data *core.ResultSet, title string, dataOnly, transpose bool, now time.Time) layout {
	var rows [][]any
	l := layout{header: -1, transposed: transpose}

	if !dataOnly && len(data.Columns) > 0 {
		header := make([]any, len(data.Columns))
		for i, c := range data.Columns {
			header[i] = c
		}
		rows = append(rows, header)
		l.hasHeader = true
		l.header = 0
	}
	for _, r := range data.Rows {
		row := make([]any, len(r))
		for i, v := range r {
			row[i] = cellValue(v)
		}
		rows = append(rows, row)
	}

	if transpose {
		rows = transposeRows(rows)
	} else if title != "" && len(rows) > 0 {
		width := max(2, maxWidth(rows))
		titleRow := make([]any, width)
		for i := range titleRow {
			titleRow[i] = ""
		}
		titleRow[0] = title
		titleRow[width-1] = "Updated " + now.Format(timestampLayout)
		rows = append([][]any{titleRow}, rows...)
		l.hasTitle = true
		if l.hasHeader {
			l.header = 1
		}
	}

	l.values = padRows(rows)
	l.cols = maxWidth(l.values)
	return l
}

// cellValue converts a driver value into something the user-entered write
// path understands.
func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(timestampLayout)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case float32:
		return float64(v)
	case float64:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func maxWidth(rows [][]any) int {
	w := 0
	for _, r := range rows {
		w = max(w, len(r))
	}
	return w
}

// padRows right-pads ragged rows with empty cells.
func padRows(rows [][]any) [][]any {
	w := maxWidth(rows)
	for i, r := range rows {
		for len(r) < w {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}

func transposeRows(rows [][]any) [][]any {
	rows = padRows(rows)
	w := maxWidth(rows)
	out := make([][]any, w)
	for c := 0; c < w; c++ {
		out[c] = make([]any, len(rows))
		for r := range rows {
			out[c][r] = rows[r][c]
		}
	}
	return out
}

// tableColumnNames derives table column names from header cells: empty
// names become "Column N" and repeats get a " (n)" suffix.
func tableColumnNames(header []any) []string {
	names := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for i, h := range header {
		name := ""
		if h != nil {
			name = fmt.Sprint(h)
		}
		if name == "" {
			name = "Column " + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 2; taken[candidate]; n++ {
			candidate = fmt.Sprintf("%s (%d)", name, n)
		}
		taken[candidate] = true
		names[i] = candidate
	}
	return names
}
