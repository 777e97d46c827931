package frame

import (
	"errors"
	"fmt"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Cardinality controls how a join treats repeated key values
type Cardinality int

const (
	// OneToOne requires the key to be unique on both sides
	OneToOne Cardinality = iota
	// ManyToMany emits one output row per matching pair of rows
	ManyToMany
)

// String returns the config spelling of the cardinality
func (c Cardinality) String() string {
	if c == ManyToMany {
		return "many_to_many"
	}
	return "one_to_one"
}

// ParseCardinality parses "one_to_one" or "many_to_many"
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "", "one_to_one":
		return OneToOne, nil
	case "many_to_many":
		return ManyToMany, nil
	default:
		return OneToOne, fmt.Errorf("unknown join cardinality %q", s)
	}
}

type joinConfig struct {
	cardinality Cardinality
	name        string
}

// JoinOption configures Join
type JoinOption func(*joinConfig)

// WithCardinality selects the duplicate-key behaviour
func WithCardinality(c Cardinality) JoinOption {
	return func(cfg *joinConfig) {
		cfg.cardinality = c
	}
}

// WithName names the joined table
func WithName(name string) JoinOption {
	return func(cfg *joinConfig) {
		cfg.name = name
	}
}

// Join performs an inner join of left and right on key. The result holds
// every left column followed by the right columns without the key; rows
// follow left order, and within a left row the right order. Rows with a
// null key never match.
func Join(left, right *model.Table, key string, opts ...JoinOption) (*model.Table, error) {
	cfg := joinConfig{cardinality: OneToOne, name: left.Name + "_" + right.Name}
	for _, opt := range opts {
		opt(&cfg)
	}

	li := left.ColumnIndex(key)
	if li < 0 {
		return nil, &KeyError{Table: left.Name, Key: key, Reason: KeyMissing}
	}
	ri := right.ColumnIndex(key)
	if ri < 0 {
		return nil, &KeyError{Table: right.Name, Key: key, Reason: KeyMissing}
	}
	kind := left.Columns[li].Kind
	if right.Columns[ri].Kind != kind {
		return nil, &KeyError{
			Table:  right.Name,
			Key:    key,
			Reason: KeyTypeMismatch,
			Detail: fmt.Sprintf("%s in %q vs %s in %q", kind, left.Name, right.Columns[ri].Kind, right.Name),
		}
	}

	// Output schema: left columns, then right columns minus the key
	cols := append([]model.Column(nil), left.Columns...)
	rightIdx := make([]int, 0, len(right.Columns)-1)
	for i, c := range right.Columns {
		if i == ri {
			continue
		}
		if left.ColumnIndex(c.Name) >= 0 {
			return nil, &SchemaError{Table: right.Name, Column: c.Name, Reason: "also exists in table " + fmt.Sprintf("%q", left.Name)}
		}
		cols = append(cols, c)
		rightIdx = append(rightIdx, i)
	}

	if cfg.cardinality == OneToOne {
		if err := CheckUniqueKey(left, key); err != nil {
			return nil, err
		}
		if err := CheckUniqueKey(right, key); err != nil {
			return nil, err
		}
	}

	index := make(map[string][]int, len(right.Rows))
	for r, row := range right.Rows {
		v := row[ri]
		if v.Null {
			continue
		}
		k := v.Key(kind)
		index[k] = append(index[k], r)
	}

	out := model.NewTable(cfg.name, cols)
	for _, lrow := range left.Rows {
		v := lrow[li]
		if v.Null {
			continue
		}
		for _, r := range index[v.Key(kind)] {
			rrow := right.Rows[r]
			joined := make([]model.Value, 0, len(cols))
			joined = append(joined, lrow...)
			for _, i := range rightIdx {
				joined = append(joined, rrow[i])
			}
			out.Rows = append(out.Rows, joined)
		}
	}
	return out, nil
}

// JoinAll folds Join over tables from left to right
func JoinAll(key string, tables []*model.Table, opts ...JoinOption) (*model.Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("join requires at least one table")
	}
	cfg := joinConfig{cardinality: OneToOne}
	for _, opt := range opts {
		opt(&cfg)
	}
	acc := tables[0]
	// a single table is never joined, so check its key here
	if len(tables) == 1 && cfg.cardinality == OneToOne {
		if err := CheckUniqueKey(acc, key); err != nil {
			return nil, err
		}
	}
	for _, next := range tables[1:] {
		var err error
		// name options apply to the final result only
		acc, err = Join(acc, next, key, append(opts[:len(opts):len(opts)], WithName(acc.Name+"_"+next.Name))...)
		if err != nil {
			return nil, err
		}
	}
	if cfg.name == "" {
		return acc, nil
	}
	return acc.Renamed(cfg.name), nil
}

// CheckUniqueKey returns a *DuplicateKeyError for the first key value that
// occurs more than once in t. Null keys are ignored.
func CheckUniqueKey(t *model.Table, key string) error {
	idx := t.ColumnIndex(key)
	if idx < 0 {
		return &KeyError{Table: t.Name, Key: key, Reason: KeyMissing}
	}
	kind := t.Columns[idx].Kind
	counts := make(map[string]int, len(t.Rows))
	var order []string
	for _, row := range t.Rows {
		v := row[idx]
		if v.Null {
			continue
		}
		k := v.Key(kind)
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	for _, k := range order {
		if counts[k] > 1 {
			return &DuplicateKeyError{Table: t.Name, Key: key, Value: k, Count: counts[k]}
		}
	}
	return nil
}
