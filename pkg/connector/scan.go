// pkg/connector/scan.go
package connector

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// tableScanner appends result rows to a table. The schema is taken from the
// first result set it sees; later batches must have the same shape.
type tableScanner struct {
	conv  *converter.TypeConverter
	table *model.Table
	dest  []interface{}
	raw   []interface{}
}

func newTableScanner(name string, conv *converter.TypeConverter) *tableScanner {
	if conv == nil {
		conv = converter.NewTypeConverter(nil)
	}
	return &tableScanner{conv: conv, table: &model.Table{Name: name}}
}

func (s *tableScanner) init(rows *sql.Rows) error {
	types, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("failed to read column types: %w", err)
	}

	cols := make([]model.Column, len(types))
	for i, ct := range types {
		cols[i] = model.Column{Name: ct.Name(), Kind: kindForColumnType(ct)}
	}

	if s.table.Columns == nil {
		s.table.Columns = cols
	} else if len(cols) != len(s.table.Columns) {
		return fmt.Errorf("result set has %d columns, expected %d", len(cols), len(s.table.Columns))
	}

	s.raw = make([]interface{}, len(cols))
	s.dest = make([]interface{}, len(cols))
	for i := range s.raw {
		s.dest[i] = &s.raw[i]
	}
	return nil
}

// scan converts the current row of rows
func (s *tableScanner) scan(rows *sql.Rows) error {
	if s.dest == nil {
		if err := s.init(rows); err != nil {
			return err
		}
	}

	if err := rows.Scan(s.dest...); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}

	row := make([]model.Value, len(s.raw))
	for i, v := range s.raw {
		col := s.table.Columns[i]
		val, err := s.conv.ToValue(v, col.Kind)
		if err != nil {
			return fmt.Errorf("column %s, row %d: %w", col.Name, len(s.table.Rows)+1, err)
		}
		row[i] = val
	}
	s.table.Rows = append(s.table.Rows, row)
	return nil
}

// reset forgets the scan destinations so the next result set re-reads its
// column types
func (s *tableScanner) reset() {
	s.dest = nil
	s.raw = nil
}

// ScanTable drains rows into a table named name. Column kinds follow the
// driver-reported database types.
func ScanTable(rows *sql.Rows, name string, conv *converter.TypeConverter) (*model.Table, error) {
	s := newTableScanner(name, conv)
	if err := s.init(rows); err != nil {
		return nil, err
	}

	for rows.Next() {
		if err := s.scan(rows); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return s.table, nil
}

// kindForColumnType prefers the declared type and falls back to the Go scan
// type for expressions without one (SQLite computed columns)
func kindForColumnType(ct *sql.ColumnType) model.Kind {
	if name := ct.DatabaseTypeName(); name != "" {
		return converter.KindForDatabaseType(name)
	}
	if st := ct.ScanType(); st != nil {
		switch st.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.Bool:
			return model.KindNumber
		}
	}
	return model.KindText
}
