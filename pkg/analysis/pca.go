package analysis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Projection is a fitted principal component analysis
type Projection struct {
	// Scores are the input rows projected onto the components (pca1..pcaN)
	Scores *Dataset
	// Components holds one loading vector per column (features x N)
	Components *mat.Dense
	// ExplainedVariance is the variance along each component
	ExplainedVariance []float64
	// ExplainedVarianceRatio is ExplainedVariance over the total variance
	ExplainedVarianceRatio []float64

	Features []string
	Mean     []float64
}

// ComponentName returns the score column name of component i (0-based)
func ComponentName(i int) string {
	return fmt.Sprintf("pca%d", i+1)
}

// PCA projects d onto its first n principal components
func PCA(d *Dataset, n int) (*Projection, error) {
	if err := checkDataset(d); err != nil {
		return nil, err
	}
	r, c := d.Dims()
	if r < 2 {
		return nil, errors.New("PCA needs at least two rows")
	}
	if max := minInt(r, c); n < 1 || n > max {
		return nil, fmt.Errorf("component count must be between 1 and %d, got %d", max, n)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(d.X, nil); !ok {
		return nil, errors.New("principal component decomposition failed")
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	total := floats.Sum(vars)
	ratio := make([]float64, n)
	for i := range ratio {
		if total > 0 {
			ratio[i] = vars[i] / total
		}
	}

	mean := make([]float64, c)
	for j := range mean {
		mean[j] = stat.Mean(mat.Col(nil, j, d.X), nil)
	}

	p := &Projection{
		Components:             mat.DenseCopyOf(vecs.Slice(0, c, 0, n)),
		ExplainedVariance:      append([]float64(nil), vars[:n]...),
		ExplainedVarianceRatio: ratio,
		Features:               append([]string(nil), d.Columns...),
		Mean:                   mean,
	}

	scores, err := p.Transform(d)
	if err != nil {
		return nil, err
	}
	p.Scores = scores
	return p, nil
}

// Transform centres d on the fitted mean and projects it
func (p *Projection) Transform(d *Dataset) (*Dataset, error) {
	r, c := d.Dims()
	if c != len(p.Mean) {
		return nil, fmt.Errorf("projection fitted on %d features, dataset has %d", len(p.Mean), c)
	}

	centered := mat.NewDense(r, c, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - p.Mean[j]
	}, d.X)

	_, n := p.Components.Dims()
	scores := mat.NewDense(r, n, nil)
	scores.Mul(centered, p.Components)

	names := make([]string, n)
	for i := range names {
		names[i] = ComponentName(i)
	}
	return &Dataset{Columns: names, Keys: d.Keys, KeyKind: d.KeyKind, X: scores}, nil
}

// ComponentRows returns the components as rows (N x features), the layout
// used to seed k-means centroids
func (p *Projection) ComponentRows() *mat.Dense {
	return mat.DenseCopyOf(p.Components.T())
}

// VarianceTable lists explained variance per component
func (p *Projection) VarianceTable(name string) *model.Table {
	t := model.NewTable(name, []model.Column{
		{Name: "component", Kind: model.KindText},
		{Name: "explained_variance", Kind: model.KindNumber},
		{Name: "explained_variance_ratio", Kind: model.KindNumber},
	})
	for i, v := range p.ExplainedVariance {
		t.AppendRow([]model.Value{
			model.Text(ComponentName(i)),
			model.Number(v),
			model.Number(p.ExplainedVarianceRatio[i]),
		})
	}
	return t
}

// LoadingsTable lists the loading of every feature on every component
func (p *Projection) LoadingsTable(name string) *model.Table {
	_, n := p.Components.Dims()
	cols := []model.Column{{Name: "feature", Kind: model.KindText}}
	for i := 0; i < n; i++ {
		cols = append(cols, model.Column{Name: ComponentName(i), Kind: model.KindNumber})
	}

	t := model.NewTable(name, cols)
	for j, f := range p.Features {
		row := []model.Value{model.Text(f)}
		for i := 0; i < n; i++ {
			row = append(row, model.Number(p.Components.At(j, i)))
		}
		t.AppendRow(row)
	}
	return t
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
