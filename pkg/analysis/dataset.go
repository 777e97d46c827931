// Package analysis clusters and projects cleaned survey tables.
package analysis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Dataset is a dense numeric matrix with named feature columns. Keys, when
// present, identify the participant of each row.
type Dataset struct {
	Columns []string
	Keys    []model.Value
	KeyKind model.Kind
	X       *mat.Dense
}

// FromTable builds a dataset from the numeric columns of a cleaned table.
// key (may be empty) and exclude are left out of the features; the key's
// values are kept as row identifiers. Missing cells and text features are
// errors: clustering only runs on complete records.
func FromTable(t *model.Table, key string, exclude ...string) (*Dataset, error) {
	skip := make(map[string]bool, len(exclude)+1)
	for _, c := range exclude {
		skip[c] = true
	}

	keyIdx := -1
	keyKind := model.KindNumber
	if key != "" {
		keyIdx = t.ColumnIndex(key)
		if keyIdx < 0 {
			return nil, fmt.Errorf("key column %q does not exist in table %q", key, t.Name)
		}
		keyKind = t.Columns[keyIdx].Kind
		skip[key] = true
	}

	var idx []int
	var names []string
	for i, c := range t.Columns {
		if skip[c.Name] {
			continue
		}
		if c.Kind != model.KindNumber {
			return nil, fmt.Errorf("column %q of table %q is not numeric", c.Name, t.Name)
		}
		idx = append(idx, i)
		names = append(names, c.Name)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("table %q has no feature columns", t.Name)
	}
	if t.NumRows() == 0 {
		return nil, fmt.Errorf("table %q has no rows", t.Name)
	}

	data := make([]float64, 0, t.NumRows()*len(idx))
	var keys []model.Value
	for r, row := range t.Rows {
		for _, i := range idx {
			if row[i].Null {
				return nil, fmt.Errorf("table %q has a missing %s in row %d; clean it first", t.Name, t.Columns[i].Name, r+1)
			}
			data = append(data, row[i].Num)
		}
		if keyIdx >= 0 {
			keys = append(keys, row[keyIdx])
		}
	}

	return &Dataset{
		Columns: names,
		Keys:    keys,
		KeyKind: keyKind,
		X:       mat.NewDense(t.NumRows(), len(idx), data),
	}, nil
}

// Dims returns the number of rows and features
func (d *Dataset) Dims() (int, int) {
	return d.X.Dims()
}

// Row returns a copy of row i
func (d *Dataset) Row(i int) []float64 {
	return mat.Row(nil, i, d.X)
}

// Select returns the dataset restricted to the named features
func (d *Dataset) Select(columns ...string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, errors.New("no features selected")
	}
	pos := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		pos[c] = i
	}

	idx := make([]int, len(columns))
	for j, c := range columns {
		i, ok := pos[c]
		if !ok {
			return nil, fmt.Errorf("feature %q does not exist", c)
		}
		idx[j] = i
	}

	r, _ := d.Dims()
	out := mat.NewDense(r, len(columns), nil)
	for j, i := range idx {
		out.SetCol(j, mat.Col(nil, i, d.X))
	}
	return &Dataset{Columns: append([]string(nil), columns...), Keys: d.Keys, KeyKind: d.KeyKind, X: out}, nil
}

// Clone returns a deep copy
func (d *Dataset) Clone() *Dataset {
	return &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Keys:    append([]model.Value(nil), d.Keys...),
		KeyKind: d.KeyKind,
		X:       mat.DenseCopyOf(d.X),
	}
}

// Table renders the dataset, with the key column first when keys are
// present. extra columns (e.g. cluster labels) are appended.
func (d *Dataset) Table(name, key string, extra ...LabelColumn) (*model.Table, error) {
	r, c := d.Dims()
	for _, e := range extra {
		if len(e.Values) != r {
			return nil, fmt.Errorf("column %q has %d values for %d rows", e.Name, len(e.Values), r)
		}
	}

	var cols []model.Column
	withKey := key != "" && len(d.Keys) == r
	if withKey {
		cols = append(cols, model.Column{Name: key, Kind: d.KeyKind})
	}
	for _, name := range d.Columns {
		cols = append(cols, model.Column{Name: name, Kind: model.KindNumber})
	}
	for _, e := range extra {
		cols = append(cols, model.Column{Name: e.Name, Kind: model.KindNumber})
	}

	t := model.NewTable(name, cols)
	t.Rows = make([][]model.Value, r)
	for i := 0; i < r; i++ {
		row := make([]model.Value, 0, len(cols))
		if withKey {
			row = append(row, d.Keys[i])
		}
		for j := 0; j < c; j++ {
			row = append(row, model.Number(d.X.At(i, j)))
		}
		for _, e := range extra {
			row = append(row, model.Number(float64(e.Values[i])))
		}
		t.Rows[i] = row
	}
	return t, nil
}

// LabelColumn is an integer column appended to a rendered dataset
type LabelColumn struct {
	Name   string
	Values []int
}

var errNoData = errors.New("dataset is empty")

func checkDataset(d *Dataset) error {
	if d == nil || d.X == nil {
		return errNoData
	}
	if r, c := d.Dims(); r == 0 || c == 0 {
		return errNoData
	}
	return nil
}
