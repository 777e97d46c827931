// pkg/pipeline/job.go
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/analysis"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// ClusterColumn is the name of the label column added to clustered tables
const ClusterColumn = "cluster"

// AnalysisJob describes one clustering run over a cleaned table
type AnalysisJob struct {
	ID            string    // Unique job identifier
	K             int       // Number of clusters
	Init          analysis.Init
	NInit         int       // Restarts, best inertia kept
	MaxIter       int       // Lloyd iteration limit per restart
	Tol           float64   // Relative convergence tolerance
	Seed          int64     // Seed of the centroid sampling
	Standardize   bool      // Cluster z-scores instead of raw values
	PCAComponents int       // Project onto this many components (0 skips PCA)
	Exclude       []string  // Columns left out of the features
	CreatedAt     time.Time // Job creation timestamp
}

// NewAnalysisJob creates a job with the clustering defaults
func NewAnalysisJob(k int) AnalysisJob {
	return AnalysisJob{
		ID:        uuid.New().String(),
		K:         k,
		Init:      analysis.InitKMeansPlusPlus,
		NInit:     10,
		MaxIter:   300,
		Tol:       1e-4,
		CreatedAt: time.Now(),
	}
}

// JobFromConfig creates a job from the configured clustering defaults
func JobFromConfig(cfg config.KMeansConfig) AnalysisJob {
	j := NewAnalysisJob(cfg.Clusters)
	j.NInit = cfg.NInit
	j.MaxIter = cfg.MaxIter
	j.Tol = cfg.Tol
	j.Seed = cfg.Seed
	j.Standardize = cfg.Standardize
	return j
}

// WithK sets the cluster count and returns the modified job
func (j AnalysisJob) WithK(k int) AnalysisJob {
	j.K = k
	return j
}

// WithInit sets the seeding method and returns the modified job
func (j AnalysisJob) WithInit(init analysis.Init) AnalysisJob {
	j.Init = init
	return j
}

// WithSeed sets the random seed and returns the modified job
func (j AnalysisJob) WithSeed(seed int64) AnalysisJob {
	j.Seed = seed
	return j
}

// WithPCA requests a projection onto n components and returns the modified job
func (j AnalysisJob) WithPCA(n int) AnalysisJob {
	j.PCAComponents = n
	return j
}

// WithExclude leaves columns out of the features and returns the modified job
func (j AnalysisJob) WithExclude(columns ...string) AnalysisJob {
	j.Exclude = append(append([]string(nil), j.Exclude...), columns...)
	return j
}

// Options converts the job to k-means options
func (j AnalysisJob) Options() analysis.Options {
	return analysis.Options{
		K:       j.K,
		NInit:   j.NInit,
		MaxIter: j.MaxIter,
		Tol:     j.Tol,
		Seed:    j.Seed,
		Init:    j.Init,
	}
}

// AnalysisResult represents the result of an analysis job
type AnalysisResult struct {
	Job        AnalysisJob
	Source     *model.Table
	Key        string
	Features   *analysis.Dataset
	Clusters   *analysis.Result
	Projection *analysis.Projection
	Duration   time.Duration
}

// Run clusters t. key is kept as row identifier and left out of the features.
func (j AnalysisJob) Run(ctx context.Context, t *model.Table, key string) (*AnalysisResult, error) {
	start := time.Now()

	d, err := analysis.FromTable(t, key, j.Exclude...)
	if err != nil {
		return nil, err
	}
	if j.Standardize {
		if d, _, err = analysis.Standardize(d); err != nil {
			return nil, err
		}
	}

	res, err := analysis.KMeans(ctx, d, j.Options())
	if err != nil {
		return nil, fmt.Errorf("k-means with k=%d: %w", j.K, err)
	}

	out := &AnalysisResult{Job: j, Source: t, Key: key, Features: d, Clusters: res}
	if j.PCAComponents > 0 {
		if out.Projection, err = analysis.PCA(d, j.PCAComponents); err != nil {
			return nil, fmt.Errorf("PCA with %d components: %w", j.PCAComponents, err)
		}
	}
	out.Duration = time.Since(start)
	return out, nil
}

// Assignments returns the source table with the cluster label appended
func (r *AnalysisResult) Assignments(name string) *model.Table {
	return WithLabels(r.Source, name, ClusterColumn, r.Clusters.Labels)
}

// ProjectionTable returns the PCA scores with key and cluster label, the
// plot-ready layout of the scatter exports
func (r *AnalysisResult) ProjectionTable(name string) (*model.Table, error) {
	if r.Projection == nil {
		return nil, fmt.Errorf("job %s did not run PCA", r.Job.ID)
	}
	return r.Projection.Scores.Table(name, r.Key,
		analysis.LabelColumn{Name: ClusterColumn, Values: r.Clusters.Labels})
}

// WithLabels returns a copy of t with an integer label column appended
func WithLabels(t *model.Table, name, column string, labels []int) *model.Table {
	cols := append(append([]model.Column(nil), t.Columns...), model.Column{Name: column, Kind: model.KindNumber})
	out := model.NewTable(name, cols)
	out.Rows = make([][]model.Value, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]model.Value, 0, len(row)+1)
		r = append(r, row...)
		out.Rows[i] = append(r, model.Number(float64(labels[i])))
	}
	return out
}

// RunJobs runs jobs concurrently over the same cleaned table. Tables are
// never modified, so the jobs share t. Results follow the order of jobs.
func RunJobs(
	ctx context.Context,
	t *model.Table,
	key string,
	jobs []AnalysisJob,
	workers int,
	logger *zap.Logger,
) ([]*AnalysisResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*AnalysisResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := job.Run(ctx, t, key)
			if err != nil {
				return fmt.Errorf("job %s: %w", job.ID, err)
			}
			logger.Info("Analysis job completed",
				zap.String("job_id", job.ID),
				zap.Int("k", job.K),
				zap.String("init", job.Init.String()),
				zap.Float64("inertia", res.Clusters.Inertia),
				zap.Int("iterations", res.Clusters.Iterations),
				zap.Duration("duration", res.Duration))
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
