package models

import "fmt"

// Table is the unit of data exchanged between the workbook store, the source
// registry and the portfolio manager: an ordered set of named columns of equal
// length. Cell values are nil, string, float64 or time.Time. Column order has
// no semantic meaning beyond display.
type Table struct {
	cols  []string
	cells map[string][]any
}

// NewTable creates an empty table with zero rows and zero columns.
func NewTable() *Table {
	return &Table{cells: make(map[string][]any)}
}

// Columns returns the ordered column names.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// NumRows returns the number of rows. All columns have the same length.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cells[t.cols[0]])
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.cols)
}

// IsEmpty reports whether the table has no rows. Callers must treat an empty
// table as "no data", not as a failure.
func (t *Table) IsEmpty() bool {
	return t.NumRows() == 0
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cells[name]
	return ok
}

// Column returns a copy of the named column's values, or nil if absent.
func (t *Table) Column(name string) []any {
	vals, ok := t.cells[name]
	if !ok {
		return nil
	}
	out := make([]any, len(vals))
	copy(out, vals)
	return out
}

// Value returns the cell at (row, column). The second return is false when
// the column does not exist or the row is out of range.
func (t *Table) Value(row int, name string) (any, bool) {
	vals, ok := t.cells[name]
	if !ok || row < 0 || row >= len(vals) {
		return nil, false
	}
	return vals[row], true
}

// SetValue replaces the cell at (row, column).
func (t *Table) SetValue(row int, name string, value any) error {
	vals, ok := t.cells[name]
	if !ok {
		return fmt.Errorf("table: column %q does not exist", name)
	}
	if row < 0 || row >= len(vals) {
		return fmt.Errorf("table: row %d out of range for column %q", row, name)
	}
	vals[row] = value
	return nil
}

// AddColumn appends a column with the given values. An existing column of the
// same name is replaced in place, keeping its position. The value count must
// match the current row count unless the table has no columns yet.
func (t *Table) AddColumn(name string, values []any) error {
	if len(t.cols) > 0 && len(values) != t.NumRows() {
		return fmt.Errorf("table: column %q has %d values, want %d", name, len(values), t.NumRows())
	}
	vals := make([]any, len(values))
	copy(vals, values)
	if _, exists := t.cells[name]; !exists {
		t.cols = append(t.cols, name)
	}
	t.cells[name] = vals
	return nil
}

// AddColumnFill appends a column where every row holds the same value.
// No-op replacement semantics match AddColumn.
func (t *Table) AddColumnFill(name string, fill any) {
	vals := make([]any, t.NumRows())
	for i := range vals {
		vals[i] = fill
	}
	if _, exists := t.cells[name]; !exists {
		t.cols = append(t.cols, name)
	}
	t.cells[name] = vals
}

// AppendRow adds one row. Existing columns missing from the record get an
// explicit nil; record keys not yet present become new columns, back-filled
// with nil for all prior rows. The table stays rectangular.
func (t *Table) AppendRow(record map[string]any) {
	prior := t.NumRows()
	for key := range record {
		if _, exists := t.cells[key]; !exists {
			vals := make([]any, prior)
			t.cols = append(t.cols, key)
			t.cells[key] = vals
		}
	}
	for _, col := range t.cols {
		t.cells[col] = append(t.cells[col], record[col])
	}
}

// RenameColumn renames a column, preserving its position. When the target
// name already exists the original column is dropped instead, so renames
// never produce duplicate columns.
func (t *Table) RenameColumn(old, new string) {
	if old == new {
		return
	}
	vals, ok := t.cells[old]
	if !ok {
		return
	}
	if _, clash := t.cells[new]; clash {
		t.DropColumn(old)
		return
	}
	for i, c := range t.cols {
		if c == old {
			t.cols[i] = new
			break
		}
	}
	delete(t.cells, old)
	t.cells[new] = vals
}

// DropColumn removes a column. Unknown names are ignored.
func (t *Table) DropColumn(name string) {
	if _, ok := t.cells[name]; !ok {
		return
	}
	for i, c := range t.cols {
		if c == name {
			t.cols = append(t.cols[:i], t.cols[i+1:]...)
			break
		}
	}
	delete(t.cells, name)
}

// DropRow removes the row at the given index. Out-of-range indexes are ignored.
func (t *Table) DropRow(row int) {
	if row < 0 || row >= t.NumRows() {
		return
	}
	for _, col := range t.cols {
		vals := t.cells[col]
		t.cells[col] = append(vals[:row], vals[row+1:]...)
	}
}

// Clone returns a deep copy. Cell values are scalars, so copying the column
// slices is sufficient.
func (t *Table) Clone() *Table {
	out := NewTable()
	out.cols = make([]string, len(t.cols))
	copy(out.cols, t.cols)
	for name, vals := range t.cells {
		cp := make([]any, len(vals))
		copy(cp, vals)
		out.cells[name] = cp
	}
	return out
}

// Row returns the row at the given index as a column-name keyed record.
func (t *Table) Row(row int) map[string]any {
	rec := make(map[string]any, len(t.cols))
	for _, col := range t.cols {
		rec[col] = t.cells[col][row]
	}
	return rec
}

// Records returns all rows as records, in row order. Nil cells stay explicit
// nils so JSON encoding yields null rather than dropping keys.
func (t *Table) Records() []map[string]any {
	n := t.NumRows()
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.Row(i))
	}
	return out
}
