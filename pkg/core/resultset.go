package core

import "strconv"

// ResultSet is an ordered collection of records returned by a query.
// Columns keeps the select-list order; every row has len(Columns) values.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// NewResultSet creates an empty result set. Repeated column names are made
// unique by suffixing the second and later occurrences with _2, _3, ...
func NewResultSet(columns []string) *ResultSet {
	return &ResultSet{Columns: DedupeColumnNames(columns)}
}

// DedupeColumnNames returns a copy of names where repeats get a numeric suffix.
func DedupeColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	for i, n := range names {
		seen[n]++
		if seen[n] == 1 {
			out[i] = n
			continue
		}
		suffix := seen[n]
		candidate := n + "_" + strconv.Itoa(suffix)
		for taken[candidate] {
			suffix++
			candidate = n + "_" + strconv.Itoa(suffix)
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}

// Append adds a row. Short rows are padded with nil, long rows truncated.
func (r *ResultSet) Append(values ...any) {
	row := make([]any, len(r.Columns))
	copy(row, values)
	r.Rows = append(r.Rows, row)
}

// Len returns the number of records.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Record returns row i as a column -> value map.
func (r *ResultSet) Record(i int) map[string]any {
	rec := make(map[string]any, len(r.Columns))
	for j, c := range r.Columns {
		rec[c] = r.Rows[i][j]
	}
	return rec
}
