package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Init selects how k-means picks its starting centroids
type Init int

const (
	// InitKMeansPlusPlus spreads the initial centroids by sampling points
	// proportionally to their squared distance from the centroids so far
	InitKMeansPlusPlus Init = iota
	// InitRandom picks k distinct rows uniformly
	InitRandom
	// InitCentroids starts from Options.Centroids
	InitCentroids
)

func (i Init) String() string {
	switch i {
	case InitKMeansPlusPlus:
		return "k-means++"
	case InitRandom:
		return "random"
	case InitCentroids:
		return "centroids"
	}
	return fmt.Sprintf("Init(%d)", int(i))
}

// ParseInit parses the names accepted on the command line
func ParseInit(s string) (Init, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "k-means++", "kmeans++", "plusplus":
		return InitKMeansPlusPlus, nil
	case "random":
		return InitRandom, nil
	}
	return 0, fmt.Errorf("unknown init method %q (expected k-means++ or random)", s)
}

// Options configures KMeans
type Options struct {
	K       int
	NInit   int
	MaxIter int
	// Tol is relative to the mean feature variance; Lloyd iterations stop
	// once the total squared centroid shift falls below it
	Tol  float64
	Seed int64
	Init Init
	// Centroids seeds InitCentroids (K x features). NInit is forced to 1.
	Centroids mat.Matrix
}

// DefaultOptions returns the options of the analysis commands for k clusters
func DefaultOptions(k int) Options {
	return Options{K: k, NInit: 10, MaxIter: 300, Tol: 1e-4, Init: InitKMeansPlusPlus}
}

// Result is a fitted clustering
type Result struct {
	Labels    []int
	Centroids *mat.Dense
	// Inertia is the sum of squared distances of rows to their centroid (SSE)
	Inertia    float64
	Iterations int
}

// K returns the number of clusters
func (r *Result) K() int {
	k, _ := r.Centroids.Dims()
	return k
}

// Sizes returns the number of rows assigned to each cluster
func (r *Result) Sizes() []int {
	sizes := make([]int, r.K())
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

// Predict returns the nearest centroid of a point
func (r *Result) Predict(point []float64) (int, error) {
	k, dim := r.Centroids.Dims()
	if len(point) != dim {
		return 0, fmt.Errorf("point has %d features, centroids have %d", len(point), dim)
	}
	best, bestDist := 0, math.Inf(1)
	for c := 0; c < k; c++ {
		if d := floats.Distance(point, r.Centroids.RawRowView(c), 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, nil
}

// KMeans clusters the rows of d with Lloyd's algorithm, keeping the best of
// NInit restarts. Runs with the same options and data are reproducible.
func KMeans(ctx context.Context, d *Dataset, opts Options) (*Result, error) {
	if err := checkDataset(d); err != nil {
		return nil, err
	}
	n, dim := d.Dims()
	if opts.K < 1 || opts.K > n {
		return nil, fmt.Errorf("cluster count must be between 1 and %d, got %d", n, opts.K)
	}
	if opts.NInit < 1 {
		opts.NInit = 1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 300
	}
	if opts.Tol < 0 {
		return nil, errors.New("tolerance must not be negative")
	}

	var seed *mat.Dense
	if opts.Init == InitCentroids {
		if opts.Centroids == nil {
			return nil, errors.New("init method centroids requires initial centroids")
		}
		r, c := opts.Centroids.Dims()
		if r != opts.K || c != dim {
			return nil, fmt.Errorf("initial centroids are %dx%d, expected %dx%d", r, c, opts.K, dim)
		}
		seed = mat.DenseCopyOf(opts.Centroids)
		opts.NInit = 1
	}

	tol := opts.Tol * meanVariance(d.X)
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), 0x9e3779b97f4a7c15))

	var best *Result
	for run := 0; run < opts.NInit; run++ {
		var centers *mat.Dense
		switch opts.Init {
		case InitCentroids:
			centers = mat.DenseCopyOf(seed)
		case InitRandom:
			centers = seedRandom(d.X, opts.K, rng)
		case InitKMeansPlusPlus:
			centers = seedPlusPlus(d.X, opts.K, rng)
		default:
			return nil, fmt.Errorf("unknown init method %s", opts.Init)
		}

		res, err := lloyd(ctx, d.X, centers, opts.MaxIter, tol)
		if err != nil {
			return nil, err
		}
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func lloyd(ctx context.Context, x *mat.Dense, centers *mat.Dense, maxIter int, tol float64) (*Result, error) {
	n, dim := x.Dims()
	k, _ := centers.Dims()

	labels := make([]int, n)
	dist := make([]float64, n)
	for i := range labels {
		labels[i] = -1
	}

	iterations := 0
	for iterations < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations++

		changed := assign(x, centers, labels, dist)

		sums := mat.NewDense(k, dim, nil)
		counts := make([]int, k)
		for i := 0; i < n; i++ {
			floats.Add(sums.RawRowView(labels[i]), x.RawRowView(i))
			counts[labels[i]]++
		}
		relocateEmpty(x, sums, counts, labels, dist)

		shift := 0.0
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			row := sums.RawRowView(c)
			floats.Scale(1/float64(counts[c]), row)
			shift += sqDist(row, centers.RawRowView(c))
			centers.SetRow(c, row)
		}

		if changed == 0 || shift <= tol {
			break
		}
	}

	// Final assignment so labels and inertia match the returned centroids
	assign(x, centers, labels, dist)
	return &Result{
		Labels:     labels,
		Centroids:  centers,
		Inertia:    floats.Sum(dist),
		Iterations: iterations,
	}, nil
}

// assign labels every row with its nearest centroid, storing the squared
// distance in dist. It returns the number of labels that changed.
func assign(x, centers *mat.Dense, labels []int, dist []float64) int {
	n, _ := x.Dims()
	k, _ := centers.Dims()
	changed := 0
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		best, bestDist := 0, math.Inf(1)
		for c := 0; c < k; c++ {
			if d := sqDist(row, centers.RawRowView(c)); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			changed++
			labels[i] = best
		}
		dist[i] = bestDist
	}
	return changed
}

// relocateEmpty moves the rows farthest from their centroid into empty
// clusters. A row is only taken from a cluster that keeps at least one member.
func relocateEmpty(x, sums *mat.Dense, counts, labels []int, dist []float64) {
	var empty []int
	for c, n := range counts {
		if n == 0 {
			empty = append(empty, c)
		}
	}
	if len(empty) == 0 {
		return
	}

	order := make([]int, len(dist))
	floats.Argsort(append([]float64(nil), dist...), order)

	next := len(order) - 1
	for _, c := range empty {
		for ; next >= 0; next-- {
			i := order[next]
			if counts[labels[i]] > 1 {
				break
			}
		}
		if next < 0 {
			return
		}
		i := order[next]
		next--

		row := x.RawRowView(i)
		old := labels[i]
		floats.Sub(sums.RawRowView(old), row)
		counts[old]--
		sums.SetRow(c, row)
		counts[c] = 1
		labels[i] = c
		dist[i] = 0
	}
}

func seedRandom(x *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, dim := x.Dims()
	centers := mat.NewDense(k, dim, nil)
	for c, i := range rng.Perm(n)[:k] {
		centers.SetRow(c, x.RawRowView(i))
	}
	return centers
}

// seedPlusPlus is greedy k-means++: each step samples a few candidates and
// keeps the one that most reduces the potential
func seedPlusPlus(x *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, dim := x.Dims()
	centers := mat.NewDense(k, dim, nil)
	centers.SetRow(0, x.RawRowView(rng.IntN(n)))

	closest := make([]float64, n)
	for i := range closest {
		closest[i] = sqDist(x.RawRowView(i), centers.RawRowView(0))
	}

	trials := 2 + int(math.Log(float64(k)))
	candDist := make([]float64, n)
	for c := 1; c < k; c++ {
		potential := floats.Sum(closest)

		best, bestPotential := -1, math.Inf(1)
		var bestDist []float64
		for t := 0; t < trials; t++ {
			cand := sampleWeighted(closest, potential, rng)
			p := 0.0
			for i := range candDist {
				candDist[i] = math.Min(closest[i], sqDist(x.RawRowView(i), x.RawRowView(cand)))
				p += candDist[i]
			}
			if p < bestPotential {
				best, bestPotential = cand, p
				bestDist = append(bestDist[:0], candDist...)
			}
		}

		centers.SetRow(c, x.RawRowView(best))
		copy(closest, bestDist)
	}
	return centers
}

func sampleWeighted(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	r := rng.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if r < w {
			return i
		}
		r -= w
	}
	return last
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func meanVariance(x *mat.Dense) float64 {
	_, c := x.Dims()
	total := 0.0
	for j := 0; j < c; j++ {
		_, v := stat.PopMeanVariance(mat.Col(nil, j, x), nil)
		total += v
	}
	return total / float64(c)
}
