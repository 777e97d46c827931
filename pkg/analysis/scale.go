package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler holds the per-feature mean and scale of a standardization
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// Standardize returns z-scores computed with the population standard
// deviation. Constant features are centred but not scaled.
func Standardize(d *Dataset) (*Dataset, *Scaler, error) {
	if err := checkDataset(d); err != nil {
		return nil, nil, err
	}

	_, c := d.Dims()
	sc := &Scaler{Mean: make([]float64, c), Scale: make([]float64, c)}
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, d.X)
		mean, variance := stat.PopMeanVariance(col, nil)
		sc.Mean[j] = mean
		sc.Scale[j] = 1
		if variance > 0 {
			sc.Scale[j] = math.Sqrt(variance)
		}
	}

	out, err := sc.Transform(d)
	if err != nil {
		return nil, nil, err
	}
	return out, sc, nil
}

// Transform applies the scaler to another dataset with the same features
func (sc *Scaler) Transform(d *Dataset) (*Dataset, error) {
	r, c := d.Dims()
	if c != len(sc.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d features, dataset has %d", len(sc.Mean), c)
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - sc.Mean[j]) / sc.Scale[j]
	}, d.X)

	return &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Keys:    d.Keys,
		KeyKind: d.KeyKind,
		X:       out,
	}, nil
}
