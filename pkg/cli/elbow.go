// pkg/cli/elbow.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/analysis"
)

// NewElbowCommand creates the elbow command
func NewElbowCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		cleaned  string
		minK     int
		maxK     int
		features featureFlags
	)

	cmd := &cobra.Command{
		Use:   "elbow",
		Short: "Compute the k-means inertia for a range of cluster counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			features.resolve(cmd, e.cfg)
			if !cmd.Flags().Changed("max-k") {
				maxK = e.cfg.KMeans.MaxK
			}
			if minK < 1 || maxK < minK {
				return fmt.Errorf("invalid k range %d..%d", minK, maxK)
			}

			ctx := cmd.Context()
			t, err := e.cleanedTable(ctx, cleaned)
			if err != nil {
				return err
			}
			d, err := e.dataset(t, &features)
			if err != nil {
				return err
			}

			opts := analysis.DefaultOptions(minK)
			opts.NInit = e.cfg.KMeans.NInit
			opts.MaxIter = e.cfg.KMeans.MaxIter
			opts.Tol = e.cfg.KMeans.Tol
			opts.Seed = e.cfg.KMeans.Seed

			points, err := analysis.Elbow(ctx, d, analysis.KRange(minK, maxK), opts, e.cfg.KMeans.Workers)
			if err != nil {
				return err
			}
			return e.emit(analysis.ElbowTable(t.Name+"_elbow", points))
		},
	}

	cmd.Flags().StringVar(&cleaned, "cleaned", "", "cleaned CSV to cluster (default: run prepare first)")
	cmd.Flags().IntVar(&minK, "min-k", 1, "smallest cluster count")
	cmd.Flags().IntVar(&maxK, "max-k", 9, "largest cluster count (default KMEANS_MAX_K)")
	features.register(cmd)
	return cmd
}
