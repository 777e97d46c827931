// pkg/cli/evaluate.go
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/analysis"
)

// NewEvaluateCommand creates the evaluate command
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		cleaned    string
		reference  string
		k          int
		sampleSize int
		features   featureFlags
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compare k-means seeding strategies against a reference labeling",
		Long: `Fit k-means with k-means++, random and PCA-based seeding and score each
clustering against a reference column of the cleaned records (by default
the study's profile column) with homogeneity, completeness, V-measure,
adjusted Rand index, adjusted mutual information and silhouette.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			features.resolve(cmd, e.cfg)
			if reference == "" {
				reference = e.cfg.Study.ProfileColumn
			}
			if reference == "" {
				return errors.New("no reference column; set --reference or the study's profile_column")
			}

			ctx := cmd.Context()
			t, err := e.cleanedTable(ctx, cleaned)
			if err != nil {
				return err
			}
			labels, err := analysis.LabelsFromTable(t, reference)
			if err != nil {
				return err
			}
			features.exclude = append(features.exclude, reference)
			d, err := e.dataset(t, &features)
			if err != nil {
				return err
			}

			results, err := analysis.Benchmark(ctx, d, labels, analysis.BenchmarkOptions{
				K:          k,
				MaxIter:    e.cfg.KMeans.MaxIter,
				Tol:        e.cfg.KMeans.Tol,
				Seed:       e.cfg.KMeans.Seed,
				SampleSize: sampleSize,
			})
			if err != nil {
				return err
			}
			return e.emit(analysis.BenchmarkTable(t.Name+"_benchmark", results))
		},
	}

	cmd.Flags().StringVar(&cleaned, "cleaned", "", "cleaned CSV to evaluate (default: run prepare first)")
	cmd.Flags().StringVar(&reference, "reference", "", "column holding the reference labels (default: the study's profile column)")
	cmd.Flags().IntVar(&k, "k", 0, "cluster count (default: number of reference labels)")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 300, "rows sampled for the silhouette score (0 uses all)")
	features.register(cmd)
	return cmd
}
