package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// ElbowPoint is the within-cluster sum of squares of one k
type ElbowPoint struct {
	K          int
	Inertia    float64
	Iterations int
}

// Elbow fits k-means for every k in ks and returns the inertia curve in the
// order of ks. Fits run concurrently on at most workers goroutines (0 means
// one per CPU); each fit reads the shared matrix and writes its own result.
func Elbow(ctx context.Context, d *Dataset, ks []int, opts Options, workers int) ([]ElbowPoint, error) {
	if err := checkDataset(d); err != nil {
		return nil, err
	}
	if len(ks) == 0 {
		return nil, errors.New("no cluster counts to evaluate")
	}
	if opts.Init == InitCentroids {
		return nil, errors.New("elbow sweep needs a seeding method, not fixed centroids")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	points := make([]ElbowPoint, len(ks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, k := range ks {
		g.Go(func() error {
			o := opts
			o.K = k
			res, err := KMeans(ctx, d, o)
			if err != nil {
				return fmt.Errorf("k=%d: %w", k, err)
			}
			points[i] = ElbowPoint{K: k, Inertia: res.Inertia, Iterations: res.Iterations}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// KRange returns the cluster counts from..to inclusive
func KRange(from, to int) []int {
	var ks []int
	for k := from; k <= to; k++ {
		ks = append(ks, k)
	}
	return ks
}

// ElbowTable renders the curve for export
func ElbowTable(name string, points []ElbowPoint) *model.Table {
	t := model.NewTable(name, []model.Column{
		{Name: "k", Kind: model.KindNumber},
		{Name: "sse", Kind: model.KindNumber},
		{Name: "iterations", Kind: model.KindNumber},
	})
	for _, p := range points {
		t.AppendRow([]model.Value{
			model.Number(float64(p.K)),
			model.Number(p.Inertia),
			model.Number(float64(p.Iterations)),
		})
	}
	return t
}
