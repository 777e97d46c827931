package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// contingency is the co-occurrence table of two labelings
type contingency struct {
	n      int
	counts [][]int // counts[class][cluster]
	rows   []int   // class sizes
	cols   []int   // cluster sizes
}

func newContingency(truth, pred []int) (*contingency, error) {
	if len(truth) != len(pred) {
		return nil, fmt.Errorf("labelings differ in length: %d and %d", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return nil, errors.New("labelings are empty")
	}

	classes := indexLabels(truth)
	clusters := indexLabels(pred)
	ct := &contingency{
		n:      len(truth),
		counts: make([][]int, len(classes)),
		rows:   make([]int, len(classes)),
		cols:   make([]int, len(clusters)),
	}
	for i := range ct.counts {
		ct.counts[i] = make([]int, len(clusters))
	}
	for i := range truth {
		r, c := classes[truth[i]], clusters[pred[i]]
		ct.counts[r][c]++
		ct.rows[r]++
		ct.cols[c]++
	}
	return ct, nil
}

func indexLabels(labels []int) map[int]int {
	idx := map[int]int{}
	for _, l := range labels {
		if _, ok := idx[l]; !ok {
			idx[l] = len(idx)
		}
	}
	return idx
}

func entropy(sizes []int, n int) float64 {
	h := 0.0
	for _, s := range sizes {
		if s > 0 {
			p := float64(s) / float64(n)
			h -= p * math.Log(p)
		}
	}
	return h
}

// mutualInfo is I(classes; clusters) in nats
func (ct *contingency) mutualInfo() float64 {
	n := float64(ct.n)
	mi := 0.0
	for r, row := range ct.counts {
		for c, nij := range row {
			if nij == 0 {
				continue
			}
			v := float64(nij)
			mi += v / n * math.Log(v*n/(float64(ct.rows[r])*float64(ct.cols[c])))
		}
	}
	return math.Max(mi, 0)
}

// HomogeneityCompletenessVMeasure scores pred against the reference labels
// truth. Homogeneity is 1 when every cluster holds a single class,
// completeness is 1 when every class falls in a single cluster.
func HomogeneityCompletenessVMeasure(truth, pred []int) (h, c, v float64, err error) {
	ct, err := newContingency(truth, pred)
	if err != nil {
		return 0, 0, 0, err
	}
	hc := entropy(ct.rows, ct.n)
	hk := entropy(ct.cols, ct.n)
	mi := ct.mutualInfo()

	h, c = 1, 1
	if hc > 0 {
		h = mi / hc
	}
	if hk > 0 {
		c = mi / hk
	}
	if h+c > 0 {
		v = 2 * h * c / (h + c)
	}
	return h, c, v, nil
}

// Homogeneity returns the homogeneity of pred against truth
func Homogeneity(truth, pred []int) (float64, error) {
	h, _, _, err := HomogeneityCompletenessVMeasure(truth, pred)
	return h, err
}

// Completeness returns the completeness of pred against truth
func Completeness(truth, pred []int) (float64, error) {
	_, c, _, err := HomogeneityCompletenessVMeasure(truth, pred)
	return c, err
}

// VMeasure returns the harmonic mean of homogeneity and completeness
func VMeasure(truth, pred []int) (float64, error) {
	_, _, v, err := HomogeneityCompletenessVMeasure(truth, pred)
	return v, err
}

func comb2(n int) float64 {
	return float64(n) * float64(n-1) / 2
}

// AdjustedRandIndex is the pair-counting agreement of two labelings,
// corrected for chance: 1 for identical partitions, around 0 for random ones
func AdjustedRandIndex(truth, pred []int) (float64, error) {
	ct, err := newContingency(truth, pred)
	if err != nil {
		return 0, err
	}
	if ct.n < 2 {
		return 1, nil
	}

	index := 0.0
	for _, row := range ct.counts {
		for _, nij := range row {
			index += comb2(nij)
		}
	}
	sumRows, sumCols := 0.0, 0.0
	for _, a := range ct.rows {
		sumRows += comb2(a)
	}
	for _, b := range ct.cols {
		sumCols += comb2(b)
	}

	expected := sumRows * sumCols / comb2(ct.n)
	maxIndex := (sumRows + sumCols) / 2
	if maxIndex == expected {
		return 1, nil
	}
	return (index - expected) / (maxIndex - expected), nil
}

// AdjustedMutualInfo is mutual information corrected for chance, normalised
// by the arithmetic mean of the two entropies
func AdjustedMutualInfo(truth, pred []int) (float64, error) {
	ct, err := newContingency(truth, pred)
	if err != nil {
		return 0, err
	}
	if len(ct.rows) == len(ct.cols) && (len(ct.rows) == 1 || len(ct.rows) == ct.n) {
		return 1, nil
	}

	mi := ct.mutualInfo()
	emi := ct.expectedMutualInfo()
	normalizer := (entropy(ct.rows, ct.n) + entropy(ct.cols, ct.n)) / 2

	const eps = 2.220446049250313e-16
	denom := normalizer - emi
	if denom < 0 {
		denom = math.Min(denom, -eps)
	} else {
		denom = math.Max(denom, eps)
	}
	return (mi - emi) / denom, nil
}

// expectedMutualInfo is E[MI] under the hypergeometric model of random
// labelings with the observed marginals
func (ct *contingency) expectedMutualInfo() float64 {
	n := ct.n
	nf := float64(n)
	lgN := lgammaInt(n + 1)

	emi := 0.0
	for _, a := range ct.rows {
		for _, b := range ct.cols {
			lo := a + b - n
			if lo < 1 {
				lo = 1
			}
			hi := a
			if b < hi {
				hi = b
			}
			base := lgammaInt(a+1) + lgammaInt(b+1) + lgammaInt(n-a+1) + lgammaInt(n-b+1) - lgN
			for nij := lo; nij <= hi; nij++ {
				v := float64(nij)
				term := v / nf * math.Log(nf*v/(float64(a)*float64(b)))
				logP := base - lgammaInt(nij+1) - lgammaInt(a-nij+1) - lgammaInt(b-nij+1) - lgammaInt(n-a-b+nij+1)
				emi += term * math.Exp(logP)
			}
		}
	}
	return emi
}

func lgammaInt(n int) float64 {
	v, _ := math.Lgamma(float64(n))
	return v
}

// Silhouette returns the mean silhouette coefficient of the labeling over
// every row of d
func Silhouette(d *Dataset, labels []int) (float64, error) {
	if err := checkDataset(d); err != nil {
		return 0, err
	}
	n, _ := d.Dims()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return silhouette(d.X, labels, idx)
}

// SilhouetteSample computes the silhouette on a random sample of size rows,
// drawn deterministically from seed. A size of 0 or at least the row count
// uses every row.
func SilhouetteSample(d *Dataset, labels []int, size int, seed int64) (float64, error) {
	if err := checkDataset(d); err != nil {
		return 0, err
	}
	n, _ := d.Dims()
	if size <= 0 || size >= n {
		return Silhouette(d, labels)
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 0x2545f4914f6cdd1d))
	return silhouette(d.X, labels, rng.Perm(n)[:size])
}

func silhouette(x *mat.Dense, labels []int, rows []int) (float64, error) {
	n, _ := x.Dims()
	if len(labels) != n {
		return 0, fmt.Errorf("%d labels for %d rows", len(labels), n)
	}

	cluster := indexLabels(sampleLabels(labels, rows))
	k := len(cluster)
	if k < 2 || k > len(rows)-1 {
		return 0, fmt.Errorf("silhouette needs between 2 and %d clusters, got %d", len(rows)-1, k)
	}

	sizes := make([]int, k)
	for _, i := range rows {
		sizes[cluster[labels[i]]]++
	}

	total := 0.0
	sums := make([]float64, k)
	for _, i := range rows {
		for c := range sums {
			sums[c] = 0
		}
		own := cluster[labels[i]]
		for _, j := range rows {
			if i == j {
				continue
			}
			sums[cluster[labels[j]]] += floats.Distance(x.RawRowView(i), x.RawRowView(j), 2)
		}
		if sizes[own] == 1 {
			continue
		}

		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c, s := range sums {
			if c != own {
				b = math.Min(b, s/float64(sizes[c]))
			}
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(rows)), nil
}

func sampleLabels(labels []int, rows []int) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = labels[r]
	}
	return out
}
