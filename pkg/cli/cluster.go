// pkg/cli/cluster.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/analysis"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/pipeline"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

type clusterOptions struct {
	cleaned  string
	ks       []int
	init     string
	seed     int64
	pca      int
	features featureFlags
}

// NewClusterCommand creates the cluster command
func NewClusterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &clusterOptions{}

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster the cleaned records with k-means",
		Long: `Cluster the cleaned records with k-means for one or more cluster counts.
Each run writes the records with their cluster label, the PCA scores used
for scatter plots and, when the study names a profile column, its
frequencies per cluster. Cluster sizes are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			opts.features.resolve(cmd, e.cfg)
			if !cmd.Flags().Changed("seed") {
				opts.seed = e.cfg.KMeans.Seed
			}
			return runCluster(e, opts)
		},
	}

	cmd.Flags().StringVar(&opts.cleaned, "cleaned", "", "cleaned CSV to cluster (default: run prepare first)")
	cmd.Flags().IntSliceVar(&opts.ks, "k", nil, "cluster counts (default KMEANS_CLUSTERS)")
	cmd.Flags().StringVar(&opts.init, "init", "k-means++", "seeding method: k-means++ or random")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (default KMEANS_SEED)")
	cmd.Flags().IntVar(&opts.pca, "pca", 2, "principal components exported with the labels (0 disables)")
	opts.features.register(cmd)
	return cmd
}

func runCluster(e *env, opts *clusterOptions) error {
	ctx := e.cmd.Context()

	method, err := analysis.ParseInit(opts.init)
	if err != nil {
		return err
	}
	ks := opts.ks
	if len(ks) == 0 {
		ks = []int{e.cfg.KMeans.Clusters}
	}

	t, err := e.cleanedTable(ctx, opts.cleaned)
	if err != nil {
		return err
	}
	key := e.key(t)
	exclude, err := opts.features.excluded(t, e.cfg.Study, key)
	if err != nil {
		return err
	}

	base := pipeline.JobFromConfig(e.cfg.KMeans).
		WithInit(method).
		WithSeed(opts.seed).
		WithPCA(opts.pca).
		WithExclude(exclude...)
	base.Standardize = opts.features.standardize

	jobs := make([]pipeline.AnalysisJob, len(ks))
	for i, k := range ks {
		jobs[i] = base.WithK(k)
		jobs[i].ID = fmt.Sprintf("%s_k%d", t.Name, k)
	}

	results, err := pipeline.RunJobs(ctx, t, key, jobs, e.cfg.KMeans.Workers, e.logger)
	if err != nil {
		return err
	}

	for _, res := range results {
		if err := e.writeClusterResult(t, res); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) writeClusterResult(t *model.Table, res *pipeline.AnalysisResult) error {
	name := res.Job.ID
	if err := e.save(res.Assignments(name + "_clusters")); err != nil {
		return err
	}
	if res.Projection != nil {
		proj, err := res.ProjectionTable(name + "_pca")
		if err != nil {
			return err
		}
		if err := e.save(proj); err != nil {
			return err
		}
	}

	column := e.cfg.Study.ProfileColumn
	if t.ColumnIndex(column) < 0 {
		column = ""
	}
	policy, err := e.cfg.MissingPolicy()
	if err != nil {
		return err
	}
	profiles, err := analysis.Profiles(t, res.Clusters.Labels, analysis.ProfileOptions{
		Column:  column,
		Summary: []stats.Option{stats.WithPolicy(policy), stats.WithDDOF(e.cfg.StdDDOF)},
	})
	if err != nil {
		return err
	}
	if column != "" {
		if err := e.save(analysis.ProfileCountsTable(name+"_"+column, column, profiles)); err != nil {
			return err
		}
	}

	fmt.Fprintf(e.cmd.OutOrStdout(), "k=%d inertia=%.4f iterations=%d\n",
		res.Job.K, res.Clusters.Inertia, res.Clusters.Iterations)
	return e.emit(analysis.ClusterSizesTable(name+"_sizes", profiles))
}
