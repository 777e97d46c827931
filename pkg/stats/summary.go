// Package stats computes descriptive summaries of survey tables.
package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Statistic names, in output order
var Statistics = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// Summary is a descriptive table: one row per statistic, one column per
// numeric field of the source table
type Summary struct {
	Name       string
	Columns    []string
	Statistics []string
	// Values[s][c] is statistic s of column c
	Values [][]float64
}

type summaryConfig struct {
	policy  model.MissingPolicy
	ddof    int
	exclude map[string]bool
	name    string
}

// Option configures Summarize and Correlation
type Option func(*summaryConfig)

// WithPolicy sets the missing-value policy; cells it marks missing are ignored
func WithPolicy(p model.MissingPolicy) Option {
	return func(c *summaryConfig) {
		c.policy = p
	}
}

// WithDDOF sets the delta degrees of freedom of the standard deviation:
// 0 for population, 1 for sample (default)
func WithDDOF(ddof int) Option {
	return func(c *summaryConfig) {
		c.ddof = ddof
	}
}

// WithExclude leaves the named columns out of the summary
func WithExclude(columns ...string) Option {
	return func(c *summaryConfig) {
		for _, col := range columns {
			c.exclude[col] = true
		}
	}
}

// WithSummaryName names the summary (defaults to the table name)
func WithSummaryName(name string) Option {
	return func(c *summaryConfig) {
		c.name = name
	}
}

func newConfig(t *model.Table, opts []Option) summaryConfig {
	cfg := summaryConfig{
		policy:  model.DefaultMissingPolicy(),
		ddof:    1,
		exclude: map[string]bool{},
		name:    t.Name,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Summarize computes count, mean, std, min, quartiles and max of every
// numeric column independently. Text columns are skipped. Statistics are
// computed over sorted values, so the result does not depend on row order.
func Summarize(t *model.Table, opts ...Option) (*Summary, error) {
	cfg := newConfig(t, opts)
	if cfg.ddof < 0 {
		return nil, fmt.Errorf("ddof must be non-negative, got %d", cfg.ddof)
	}

	s := &Summary{
		Name:       cfg.name,
		Statistics: append([]string(nil), Statistics...),
		Values:     make([][]float64, len(Statistics)),
	}

	for ci, col := range t.Columns {
		if col.Kind != model.KindNumber || cfg.exclude[col.Name] {
			continue
		}
		values := columnValues(t, ci, cfg.policy)
		sort.Float64s(values)

		s.Columns = append(s.Columns, col.Name)
		for si, v := range describe(values, cfg.ddof) {
			s.Values[si] = append(s.Values[si], v)
		}
	}
	return s, nil
}

// Get returns a statistic of a column
func (s *Summary) Get(statistic, column string) (float64, bool) {
	si, ci := -1, -1
	for i, name := range s.Statistics {
		if name == statistic {
			si = i
		}
	}
	for i, name := range s.Columns {
		if name == column {
			ci = i
		}
	}
	if si < 0 || ci < 0 {
		return 0, false
	}
	return s.Values[si][ci], true
}

// Table converts the summary to a table whose first column names the statistic
func (s *Summary) Table() *model.Table {
	cols := []model.Column{{Name: "statistic", Kind: model.KindText}}
	for _, name := range s.Columns {
		cols = append(cols, model.Column{Name: name, Kind: model.KindNumber})
	}
	t := model.NewTable(s.Name, cols)
	for si, stat := range s.Statistics {
		row := make([]model.Value, 0, len(cols))
		row = append(row, model.Text(stat))
		for _, v := range s.Values[si] {
			row = append(row, model.Number(v))
		}
		t.AppendRow(row)
	}
	return t
}

// describe returns the statistics of sorted values in Statistics order
func describe(sorted []float64, ddof int) []float64 {
	n := len(sorted)
	out := []float64{float64(n), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if n == 0 {
		return out
	}
	mean := stat.Mean(sorted, nil)
	out[1] = mean
	out[2] = stdDev(sorted, mean, ddof)
	out[3] = sorted[0]
	out[4] = Percentile(sorted, 0.25)
	out[5] = Percentile(sorted, 0.50)
	out[6] = Percentile(sorted, 0.75)
	out[7] = sorted[n-1]
	return out
}

func stdDev(sorted []float64, mean float64, ddof int) float64 {
	n := len(sorted)
	if n-ddof <= 0 {
		return math.NaN()
	}
	switch ddof {
	case 1:
		return stat.StdDev(sorted, nil)
	case 0:
		return stat.PopStdDev(sorted, nil)
	}
	var ss float64
	for _, v := range sorted {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-ddof))
}

// Percentile returns the p-quantile of sorted values using linear
// interpolation between the closest ranks at position (n-1)*p. This is the
// convention of spreadsheet PERCENTILE and of dataframe describe(); gonum's
// LinInterp kind uses a different plotting position.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func columnValues(t *model.Table, ci int, policy model.MissingPolicy) []float64 {
	col := t.Columns[ci]
	values := make([]float64, 0, t.NumRows())
	for _, row := range t.Rows {
		v := row[ci]
		if policy.IsMissing(col, v) {
			continue
		}
		values = append(values, v.Num)
	}
	return values
}
