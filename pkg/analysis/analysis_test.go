package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

// blobs returns two well separated groups of three participants each
func blobs() *model.Table {
	t := model.NewTable("blobs", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "x", Kind: model.KindNumber},
		{Name: "y", Kind: model.KindNumber},
	})
	points := [][2]float64{{0, 0}, {0, 1}, {1, 0}, {10, 10}, {10, 11}, {11, 10}}
	for i, p := range points {
		t.AppendRow([]model.Value{model.Number(float64(i + 1)), model.Number(p[0]), model.Number(p[1])})
	}
	return t
}

func blobDataset(t *testing.T) *Dataset {
	t.Helper()
	d, err := FromTable(blobs(), "SEQID")
	require.NoError(t, err)
	return d
}

func TestFromTable(t *testing.T) {
	d := blobDataset(t)

	r, c := d.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []string{"x", "y"}, d.Columns)
	assert.Equal(t, model.Number(4), d.Keys[3])
	assert.Equal(t, []float64{10, 11}, d.Row(4))

	out, err := d.Table("clusters", "SEQID", LabelColumn{Name: "cluster", Values: []int{0, 0, 0, 1, 1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"SEQID", "x", "y", "cluster"}, out.ColumnNames())
	assert.Equal(t, model.Number(1), out.Rows[5][3])

	_, err = d.Table("bad", "SEQID", LabelColumn{Name: "cluster", Values: []int{0}})
	assert.Error(t, err)
}

func TestFromTableRejectsIncompleteData(t *testing.T) {
	withNull := blobs()
	withNull.Rows[2][1] = model.Null()
	_, err := FromTable(withNull, "SEQID")
	assert.ErrorContains(t, err, "missing")

	withText := model.NewTable("text", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "name", Kind: model.KindText},
	})
	withText.AppendRow([]model.Value{model.Number(1), model.Text("a")})
	_, err = FromTable(withText, "SEQID")
	assert.ErrorContains(t, err, "not numeric")

	_, err = FromTable(blobs(), "NOPE")
	assert.Error(t, err)

	_, err = FromTable(blobs(), "SEQID", "x", "y")
	assert.ErrorContains(t, err, "no feature columns")
}

func TestSelect(t *testing.T) {
	d := blobDataset(t)

	y, err := d.Select("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0, 10, 11, 10}, mat.Col(nil, 0, y.X))

	_, err = d.Select("z")
	assert.Error(t, err)
}

func TestStandardize(t *testing.T) {
	d := blobDataset(t)

	z, sc, err := Standardize(d)
	require.NoError(t, err)
	assert.InDelta(t, 32.0/6.0, sc.Mean[0], 1e-12)

	for j := 0; j < 2; j++ {
		mean, variance := stat.PopMeanVariance(mat.Col(nil, j, z.X), nil)
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, variance, 1e-12)
	}

	constant := &Dataset{Columns: []string{"c"}, X: mat.NewDense(3, 1, []float64{7, 7, 7})}
	zc, sc2, err := Standardize(constant)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sc2.Scale[0])
	assert.Equal(t, []float64{0, 0, 0}, mat.Col(nil, 0, zc.X))

	_, err = sc.Transform(constant)
	assert.Error(t, err)
}

func TestPCA(t *testing.T) {
	// Points on the line y = 2x: the first component carries all variance
	d := &Dataset{
		Columns: []string{"x", "y"},
		X:       mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8}),
	}

	p, err := PCA(d, 2)
	require.NoError(t, err)

	assert.InDelta(t, 1, p.ExplainedVarianceRatio[0], 1e-9)
	assert.InDelta(t, 0, p.ExplainedVarianceRatio[1], 1e-9)
	assert.InDelta(t, 1/math.Sqrt(5), math.Abs(p.Components.At(0, 0)), 1e-9)
	assert.InDelta(t, 2/math.Sqrt(5), math.Abs(p.Components.At(1, 0)), 1e-9)
	assert.Equal(t, []string{"pca1", "pca2"}, p.Scores.Columns)

	// Scores are centred and their variance matches the explained variance
	scores := mat.Col(nil, 0, p.Scores.X)
	mean, variance := stat.MeanVariance(scores, nil)
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, p.ExplainedVariance[0], variance, 1e-9)

	rows := p.ComponentRows()
	r, c := rows.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)

	loadings := p.LoadingsTable("loadings")
	assert.Equal(t, []string{"feature", "pca1", "pca2"}, loadings.ColumnNames())
	assert.Equal(t, 2, loadings.NumRows())
	assert.Equal(t, 2, p.VarianceTable("variance").NumRows())

	_, err = PCA(d, 3)
	assert.Error(t, err)
	_, err = PCA(d, 0)
	assert.Error(t, err)
}

func sameCluster(labels []int, idx ...int) bool {
	for _, i := range idx[1:] {
		if labels[i] != labels[idx[0]] {
			return false
		}
	}
	return true
}

func TestKMeans(t *testing.T) {
	d := blobDataset(t)
	ctx := context.Background()

	for _, init := range []Init{InitKMeansPlusPlus, InitRandom} {
		t.Run(init.String(), func(t *testing.T) {
			opts := DefaultOptions(2)
			opts.Init = init
			opts.Seed = 42

			res, err := KMeans(ctx, d, opts)
			require.NoError(t, err)

			assert.True(t, sameCluster(res.Labels, 0, 1, 2))
			assert.True(t, sameCluster(res.Labels, 3, 4, 5))
			assert.NotEqual(t, res.Labels[0], res.Labels[3])
			assert.InDelta(t, 8.0/3.0, res.Inertia, 1e-9)
			assert.Equal(t, []int{3, 3}, res.Sizes())

			again, err := KMeans(ctx, d, opts)
			require.NoError(t, err)
			assert.Equal(t, res.Labels, again.Labels)
			assert.Equal(t, res.Inertia, again.Inertia)

			near, err := res.Predict([]float64{9, 9})
			require.NoError(t, err)
			assert.Equal(t, res.Labels[3], near)
		})
	}
}

func TestKMeansExplicitCentroids(t *testing.T) {
	d := blobDataset(t)

	opts := DefaultOptions(2)
	opts.Init = InitCentroids
	opts.Centroids = mat.NewDense(2, 2, []float64{10, 10, 0, 0})

	res, err := KMeans(context.Background(), d, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 0, 0, 0}, res.Labels)
	assert.InDelta(t, 31.0/3.0, res.Centroids.At(0, 0), 1e-9)
	assert.InDelta(t, 1.0/3.0, res.Centroids.At(1, 1), 1e-9)

	opts.Centroids = mat.NewDense(3, 2, nil)
	_, err = KMeans(context.Background(), d, opts)
	assert.Error(t, err)

	opts.Centroids = nil
	_, err = KMeans(context.Background(), d, opts)
	assert.Error(t, err)
}

func TestKMeansRelocatesEmptyClusters(t *testing.T) {
	d := blobDataset(t)

	// Both seeds sit in the first blob, the third far from every point
	opts := DefaultOptions(3)
	opts.Init = InitCentroids
	opts.Centroids = mat.NewDense(3, 2, []float64{0, 0, 0, 0.5, -100, -100})

	res, err := KMeans(context.Background(), d, opts)
	require.NoError(t, err)
	for _, size := range res.Sizes() {
		assert.Positive(t, size)
	}
}

func TestKMeansValidation(t *testing.T) {
	d := blobDataset(t)
	ctx := context.Background()

	_, err := KMeans(ctx, d, DefaultOptions(0))
	assert.Error(t, err)
	_, err = KMeans(ctx, d, DefaultOptions(7))
	assert.Error(t, err)
	_, err = KMeans(ctx, nil, DefaultOptions(2))
	assert.ErrorIs(t, err, errNoData)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = KMeans(canceled, d, DefaultOptions(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseInit(t *testing.T) {
	for in, want := range map[string]Init{"": InitKMeansPlusPlus, "k-means++": InitKMeansPlusPlus, "Random": InitRandom} {
		got, err := ParseInit(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseInit("pca")
	assert.Error(t, err)
}

func TestElbow(t *testing.T) {
	d := blobDataset(t)
	opts := DefaultOptions(0)
	opts.Seed = 7

	ks := KRange(1, 4)
	points, err := Elbow(context.Background(), d, ks, opts, 2)
	require.NoError(t, err)
	require.Len(t, points, 4)

	for i, p := range points {
		assert.Equal(t, ks[i], p.K)
	}
	// k=1 is the total sum of squares around the grand mean
	assert.InDelta(t, 908.0/3.0, points[0].Inertia, 1e-9)
	assert.InDelta(t, 8.0/3.0, points[1].Inertia, 1e-9)
	for i := 1; i < len(points); i++ {
		assert.LessOrEqual(t, points[i].Inertia, points[i-1].Inertia+1e-9)
	}

	tbl := ElbowTable("elbow", points)
	assert.Equal(t, []string{"k", "sse", "iterations"}, tbl.ColumnNames())
	assert.Equal(t, 4, tbl.NumRows())

	_, err = Elbow(context.Background(), d, []int{2, 10}, opts, 0)
	assert.ErrorContains(t, err, "k=10")
	_, err = Elbow(context.Background(), d, nil, opts, 0)
	assert.Error(t, err)
}

func TestExternalMetrics(t *testing.T) {
	truth := []int{0, 0, 1, 1}

	h, c, v, err := HomogeneityCompletenessVMeasure(truth, []int{1, 1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, h, 1e-12)
	assert.InDelta(t, 1, c, 1e-12)
	assert.InDelta(t, 1, v, 1e-12)

	split := []int{0, 0, 1, 2}
	h, err = Homogeneity(truth, split)
	require.NoError(t, err)
	assert.InDelta(t, 1, h, 1e-12)
	c, err = Completeness(truth, split)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, c, 1e-12)
	v, err = VMeasure(truth, split)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, v, 1e-12)

	ari, err := AdjustedRandIndex(truth, split)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/7.0, ari, 1e-12)

	ari, err = AdjustedRandIndex(truth, []int{5, 5, 3, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1, ari, 1e-12)

	ami, err := AdjustedMutualInfo(truth, []int{1, 1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, ami, 1e-9)

	ami, err = AdjustedMutualInfo([]int{0, 0, 0}, []int{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ami)

	_, err = AdjustedRandIndex(truth, []int{0})
	assert.Error(t, err)
	_, err = VMeasure(nil, nil)
	assert.Error(t, err)
}

func TestSilhouette(t *testing.T) {
	d := blobDataset(t)
	labels := []int{0, 0, 0, 1, 1, 1}

	s, err := Silhouette(d, labels)
	require.NoError(t, err)
	assert.Greater(t, s, 0.8)
	assert.LessOrEqual(t, s, 1.0)

	bad, err := Silhouette(d, []int{0, 1, 0, 1, 0, 1})
	require.NoError(t, err)
	assert.Less(t, bad, s)

	full, err := SilhouetteSample(d, labels, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, s, full)

	_, err = Silhouette(d, []int{0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
	_, err = Silhouette(d, []int{0, 1})
	assert.Error(t, err)
}

func TestBenchmark(t *testing.T) {
	z, _, err := Standardize(blobDataset(t))
	require.NoError(t, err)

	reference := []int{0, 0, 0, 1, 1, 1}
	results, err := Benchmark(context.Background(), z, reference, BenchmarkOptions{Seed: 42})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, name := range []string{"k-means++", "random", "PCA-based"} {
		r := results[i]
		assert.Equal(t, name, r.Name)
		assert.InDelta(t, 1, r.ARI, 1e-9, name)
		assert.InDelta(t, 1, r.VMeasure, 1e-9, name)
		assert.Greater(t, r.Silhouette, 0.8, name)
	}

	tbl := BenchmarkTable("benchmark", results)
	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, "init", tbl.Columns[0].Name)

	_, err = Benchmark(context.Background(), z, []int{0, 1}, BenchmarkOptions{})
	assert.Error(t, err)
}

func TestLabelsFromTable(t *testing.T) {
	tbl := blobs()
	labels, err := LabelsFromTable(tbl, "SEQID")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, labels)

	_, err = LabelsFromTable(tbl, "cluster")
	assert.Error(t, err)
}

func TestProfiles(t *testing.T) {
	tbl := model.NewTable("bkg_lit_num_cleaned", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "GENDER_R", Kind: model.KindNumber, ValueLabels: map[float64]string{1: "Male", 2: "Female"}},
		{Name: "PVLIT1", Kind: model.KindNumber},
	})
	rows := [][3]float64{{1, 1, 250}, {2, 2, 300}, {3, 2, 270}, {4, 1, 310}, {5, 2, 290}}
	for _, r := range rows {
		tbl.AppendRow([]model.Value{model.Number(r[0]), model.Number(r[1]), model.Number(r[2])})
	}
	labels := []int{1, 0, 1, 0, 0}

	profiles, err := Profiles(tbl, labels, ProfileOptions{
		Column:  "GENDER_R",
		Summary: []stats.Option{stats.WithExclude("SEQID")},
	})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, 0, profiles[0].Cluster)
	assert.Equal(t, 3, profiles[0].Size)
	mean, ok := profiles[0].Summary.Get("mean", "PVLIT1")
	require.True(t, ok)
	assert.InDelta(t, 300, mean, 1e-9)

	require.Len(t, profiles[0].Counts, 2)
	assert.Equal(t, "Female", profiles[0].Counts[0].Label)
	assert.Equal(t, 2, profiles[0].Counts[0].N)

	assert.Equal(t, 1, profiles[1].Cluster)
	assert.Equal(t, 2, profiles[1].Size)

	counts := ProfileCountsTable("gender_by_cluster", "GENDER_R", profiles)
	assert.Equal(t, 4, counts.NumRows())
	assert.InDelta(t, 2.0/3.0, counts.Rows[0][4].Num, 1e-12)

	sizes := ClusterSizesTable("sizes", profiles)
	assert.Equal(t, model.Number(3), sizes.Rows[0][1])

	_, err = Profiles(tbl, []int{0}, ProfileOptions{})
	assert.Error(t, err)
	_, err = Profiles(tbl, labels, ProfileOptions{Column: "NOPE"})
	assert.Error(t, err)
}
