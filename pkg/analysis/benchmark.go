package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Strategy is one seeding setup compared by Benchmark
type Strategy struct {
	Name  string
	Init  Init
	NInit int
	// PCA seeds the centroids with the first K principal components, which
	// is deterministic, so a single run suffices
	PCA bool
}

// DefaultStrategies compares k-means++ and random seeding (10 restarts
// each) with PCA-based seeding
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "k-means++", Init: InitKMeansPlusPlus, NInit: 10},
		{Name: "random", Init: InitRandom, NInit: 10},
		{Name: "PCA-based", Init: InitCentroids, NInit: 1, PCA: true},
	}
}

// BenchmarkOptions configures Benchmark
type BenchmarkOptions struct {
	// K defaults to the number of distinct reference labels
	K          int
	MaxIter    int
	Tol        float64
	Seed       int64
	SampleSize int
	Strategies []Strategy
}

// BenchmarkResult scores one strategy against the reference labels
type BenchmarkResult struct {
	Name         string
	Duration     time.Duration
	Inertia      float64
	Homogeneity  float64
	Completeness float64
	VMeasure     float64
	ARI          float64
	AMI          float64
	Silhouette   float64
	Labels       []int
}

// Benchmark fits k-means with each strategy and scores the clusters against
// reference, a prior labeling of the same rows
func Benchmark(ctx context.Context, d *Dataset, reference []int, opts BenchmarkOptions) ([]BenchmarkResult, error) {
	if err := checkDataset(d); err != nil {
		return nil, err
	}
	n, _ := d.Dims()
	if len(reference) != n {
		return nil, fmt.Errorf("%d reference labels for %d rows", len(reference), n)
	}
	if opts.K == 0 {
		opts.K = len(indexLabels(reference))
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategies()
	}

	var results []BenchmarkResult
	for _, s := range opts.Strategies {
		o := Options{
			K:       opts.K,
			NInit:   s.NInit,
			MaxIter: opts.MaxIter,
			Tol:     opts.Tol,
			Seed:    opts.Seed,
			Init:    s.Init,
		}

		start := time.Now()
		if s.PCA {
			proj, err := PCA(d, opts.K)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name, err)
			}
			o.Init = InitCentroids
			o.Centroids = proj.ComponentRows()
		}
		res, err := KMeans(ctx, d, o)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		elapsed := time.Since(start)

		r, err := score(d, reference, res.Labels, opts.SampleSize, opts.Seed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		r.Name = s.Name
		r.Duration = elapsed
		r.Inertia = res.Inertia
		results = append(results, r)
	}
	return results, nil
}

func score(d *Dataset, reference, labels []int, sampleSize int, seed int64) (BenchmarkResult, error) {
	r := BenchmarkResult{Labels: labels}
	var err error
	if r.Homogeneity, r.Completeness, r.VMeasure, err = HomogeneityCompletenessVMeasure(reference, labels); err != nil {
		return r, err
	}
	if r.ARI, err = AdjustedRandIndex(reference, labels); err != nil {
		return r, err
	}
	if r.AMI, err = AdjustedMutualInfo(reference, labels); err != nil {
		return r, err
	}
	if r.Silhouette, err = SilhouetteSample(d, labels, sampleSize, seed); err != nil {
		return r, err
	}
	return r, nil
}

// BenchmarkTable renders benchmark results for export
func BenchmarkTable(name string, results []BenchmarkResult) *model.Table {
	t := model.NewTable(name, []model.Column{
		{Name: "init", Kind: model.KindText},
		{Name: "time_seconds", Kind: model.KindNumber},
		{Name: "inertia", Kind: model.KindNumber},
		{Name: "homogeneity", Kind: model.KindNumber},
		{Name: "completeness", Kind: model.KindNumber},
		{Name: "v_measure", Kind: model.KindNumber},
		{Name: "ari", Kind: model.KindNumber},
		{Name: "ami", Kind: model.KindNumber},
		{Name: "silhouette", Kind: model.KindNumber},
	})
	for _, r := range results {
		t.AppendRow([]model.Value{
			model.Text(r.Name),
			model.Number(r.Duration.Seconds()),
			model.Number(r.Inertia),
			model.Number(r.Homogeneity),
			model.Number(r.Completeness),
			model.Number(r.VMeasure),
			model.Number(r.ARI),
			model.Number(r.AMI),
			model.Number(r.Silhouette),
		})
	}
	return t
}

// LabelsFromTable reads an integer labeling (e.g. a prior cluster column)
func LabelsFromTable(t *model.Table, column string) ([]int, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("label column %q does not exist in table %q", column, t.Name)
	}
	if t.Columns[idx].Kind != model.KindNumber {
		return nil, fmt.Errorf("label column %q is not numeric", column)
	}
	labels := make([]int, t.NumRows())
	for i, row := range t.Rows {
		v := row[idx]
		if v.Null {
			return nil, fmt.Errorf("label column %q is missing in row %d", column, i+1)
		}
		labels[i] = int(v.Num)
	}
	return labels, nil
}
