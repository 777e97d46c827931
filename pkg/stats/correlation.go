package stats

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// CorrelationMatrix holds pairwise Pearson correlations of numeric columns
type CorrelationMatrix struct {
	Columns []string
	Values  *mat.SymDense
	Rows    int // complete cases used
}

// Correlation computes the Pearson correlation matrix of the numeric
// columns of t over complete cases (rows without any missing numeric cell).
// It is a derived report and is never part of Summarize.
func Correlation(t *model.Table, opts ...Option) (*CorrelationMatrix, error) {
	cfg := newConfig(t, opts)

	var idx []int
	var names []string
	for i, c := range t.Columns {
		if c.Kind == model.KindNumber && !cfg.exclude[c.Name] {
			idx = append(idx, i)
			names = append(names, c.Name)
		}
	}
	if len(idx) < 2 {
		return nil, fmt.Errorf("correlation needs at least two numeric columns, table %q has %d", t.Name, len(idx))
	}

	var data []float64
	rows := 0
	for _, row := range t.Rows {
		complete := true
		for _, i := range idx {
			if cfg.policy.IsMissing(t.Columns[i], row[i]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		for _, i := range idx {
			data = append(data, row[i].Num)
		}
		rows++
	}
	if rows < 2 {
		return nil, errors.New("correlation needs at least two complete rows")
	}

	x := mat.NewDense(rows, len(idx), data)
	corr := mat.NewSymDense(len(idx), nil)
	stat.CorrelationMatrix(corr, x, nil)

	return &CorrelationMatrix{Columns: names, Values: corr, Rows: rows}, nil
}

// At returns the correlation of two named columns
func (m *CorrelationMatrix) At(a, b string) (float64, bool) {
	ia, ib := -1, -1
	for i, name := range m.Columns {
		if name == a {
			ia = i
		}
		if name == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0, false
	}
	return m.Values.At(ia, ib), true
}

// Table renders the matrix as a table with a leading "column" label column
func (m *CorrelationMatrix) Table(name string) *model.Table {
	cols := []model.Column{{Name: "column", Kind: model.KindText}}
	for _, c := range m.Columns {
		cols = append(cols, model.Column{Name: c, Kind: model.KindNumber})
	}
	t := model.NewTable(name, cols)
	for i, c := range m.Columns {
		row := []model.Value{model.Text(c)}
		for j := range m.Columns {
			row = append(row, model.Number(m.Values.At(i, j)))
		}
		t.AppendRow(row)
	}
	return t
}

// Count is one entry of a frequency table
type Count struct {
	Value model.Value
	Label string
	N     int
}

// ValueCounts returns the frequency of each distinct non-null value of a
// column, most frequent first; ties keep first-seen order
func ValueCounts(t *model.Table, column string) ([]Count, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("column %q does not exist in table %q", column, t.Name)
	}
	col := t.Columns[idx]

	pos := map[string]int{}
	var counts []Count
	for _, row := range t.Rows {
		v := row[idx]
		if v.Null {
			continue
		}
		k := v.Key(col.Kind)
		if i, ok := pos[k]; ok {
			counts[i].N++
			continue
		}
		pos[k] = len(counts)
		c := Count{Value: v, N: 1}
		if col.Kind == model.KindNumber {
			c.Label = col.LabelFor(v.Num)
		}
		counts = append(counts, c)
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].N > counts[j].N
	})
	return counts, nil
}
