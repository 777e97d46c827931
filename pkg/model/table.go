// pkg/model/table.go
package model

import (
	"math"
	"strconv"
)

// Kind is the storage class of a column
type Kind int

const (
	// KindNumber holds float64 values (codes, indices and scores alike)
	KindNumber Kind = iota
	// KindText holds string values
	KindText
)

// String returns the lowercase name of the kind
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single cell. Null marks a system-missing cell; declared
// missing codes stay numeric and are classified by a MissingPolicy.
type Value struct {
	Null bool
	Num  float64
	Text string
}

// Number returns a numeric cell
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Null()
	}
	return Value{Num: f}
}

// Text returns a text cell
func Text(s string) Value {
	return Value{Text: s}
}

// Null returns a system-missing cell
func Null() Value {
	return Value{Null: true}
}

// Key renders the value as a join key. Number and text cells never collide
// because join requires both sides to share a kind.
func (v Value) Key(kind Kind) string {
	if v.Null {
		return ""
	}
	if kind == KindText {
		return v.Text
	}
	if v.Num == 0 {
		// -0 and 0 are the same participant
		return "0"
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// String renders the value for CSV and log output
func (v Value) String(kind Kind) string {
	if v.Null {
		return ""
	}
	return v.Key(kind)
}

// Table is an in-memory, row-major table. Operations in this module never
// modify a Table in place; they return a new one.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]Value
}

// NewTable creates an empty table with the given columns
func NewTable(name string, columns []Column) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// NumCols returns the number of columns
func (t *Table) NumCols() int {
	return len(t.Columns)
}

// ColumnNames returns column names in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of an exactly named column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column metadata
func (t *Table) Column(name string) (Column, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return Column{}, false
	}
	return t.Columns[idx], true
}

// AppendRow appends a copy of row. It panics when the row width does not
// match the schema, which is a programming error rather than a data error.
func (t *Table) AppendRow(row []Value) {
	if len(row) != len(t.Columns) {
		panic("model: row width " + strconv.Itoa(len(row)) + " does not match " + strconv.Itoa(len(t.Columns)) + " columns")
	}
	r := make([]Value, len(row))
	copy(r, row)
	t.Rows = append(t.Rows, r)
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	out := NewTable(t.Name, t.Columns)
	out.Rows = make([][]Value, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]Value, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// Renamed returns a shallow copy with a new name. Rows are shared, which is
// safe because tables are never edited in place.
func (t *Table) Renamed(name string) *Table {
	return &Table{Name: name, Columns: t.Columns, Rows: t.Rows}
}

// Metadata returns the schema-only view of the table
func (t *Table) Metadata() *TableMetadata {
	return &TableMetadata{Table: t.Name, Columns: append([]Column(nil), t.Columns...)}
}
