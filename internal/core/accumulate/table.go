// Package accumulate merges freshly computed rows into a persisted table by
// composite key, last write wins, tolerating older tables that predate the
// current key columns
package accumulate

import "strings"

// Row is one record keyed by column name
type Row map[string]string

// Table is an arrival-ordered set of rows with an explicit column order
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable returns an empty table with the given columns
func NewTable(cols ...string) Table {
	return Table{Columns: append([]string(nil), cols...)}
}

// Has reports whether the table carries col
func (t Table) Has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// HasAll reports whether every col is present
func (t Table) HasAll(cols []string) bool {
	for _, c := range cols {
		if !t.Has(c) {
			return false
		}
	}
	return true
}

// Len returns the number of rows
func (t Table) Len() int { return len(t.Rows) }

// Empty reports whether the table has no rows
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// AddColumn appends col when missing
func (t *Table) AddColumn(col string) {
	if !t.Has(col) {
		t.Columns = append(t.Columns, col)
	}
}

// Append adds a row, registering any extra columns first
func (t *Table) Append(r Row, cols ...string) {
	for _, c := range cols {
		t.AddColumn(c)
	}
	t.Rows = append(t.Rows, r)
}

// Values returns the row values in column order
func (t Table) Values(r Row) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = r[c]
	}
	return out
}

// Column returns every value of col in row order
func (t Table) Column(col string) []string {
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r[col])
	}
	return out
}

// keyOf joins the trimmed values of cols
func keyOf(r Row, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(0x1F)
		}
		b.WriteString(strings.TrimSpace(r[c]))
	}
	return b.String()
}

// union returns a's columns followed by b's unseen ones
func union(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, c := range a {
		seen[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// intersect returns the columns of cols also present in t, keeping cols order
func intersect(cols []string, t Table) []string {
	var out []string
	for _, c := range cols {
		if t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
