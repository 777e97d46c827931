// Package frame implements the relational operations of the preparation
// pipeline: projection, row filtering and key joins over model.Table.
package frame

import (
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Select projects t onto columns, in the requested order. Row order is
// preserved and the input is not modified.
func Select(t *model.Table, columns ...string) (*model.Table, error) {
	indexes, err := resolve(t, columns)
	if err != nil {
		return nil, err
	}
	return project(t, t.Name, indexes), nil
}

// Drop returns t without the named columns
func Drop(t *model.Table, columns ...string) (*model.Table, error) {
	if _, err := resolve(t, columns); err != nil {
		return nil, err
	}
	dropped := make(map[string]bool, len(columns))
	for _, c := range columns {
		dropped[c] = true
	}
	var indexes []int
	for i, c := range t.Columns {
		if !dropped[c.Name] {
			indexes = append(indexes, i)
		}
	}
	return project(t, t.Name, indexes), nil
}

// Filter returns the rows of t for which keep returns true
func Filter(t *model.Table, keep func(row []model.Value) bool) *model.Table {
	out := model.NewTable(t.Name, t.Columns)
	for _, row := range t.Rows {
		if keep(row) {
			out.AppendRow(row)
		}
	}
	return out
}

func resolve(t *model.Table, columns []string) ([]int, error) {
	seen := make(map[string]bool, len(columns))
	indexes := make([]int, len(columns))
	for i, name := range columns {
		if seen[name] {
			return nil, &SchemaError{Table: t.Name, Column: name, Reason: "is requested more than once"}
		}
		seen[name] = true

		idx := t.ColumnIndex(name)
		if idx < 0 {
			return nil, &SchemaError{Table: t.Name, Column: name}
		}
		indexes[i] = idx
	}
	return indexes, nil
}

func project(t *model.Table, name string, indexes []int) *model.Table {
	cols := make([]model.Column, len(indexes))
	for i, idx := range indexes {
		cols[i] = t.Columns[idx]
	}
	out := model.NewTable(name, cols)
	out.Rows = make([][]model.Value, len(t.Rows))
	for r, row := range t.Rows {
		projected := make([]model.Value, len(indexes))
		for i, idx := range indexes {
			projected[i] = row[idx]
		}
		out.Rows[r] = projected
	}
	return out
}
