// pkg/cli/pca.go
package cli

import (
	"github.com/spf13/cobra"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/analysis"
)

// NewPCACommand creates the pca command
func NewPCACommand(rootOpts *RootOptions) *cobra.Command {
	var (
		cleaned    string
		components int
		features   featureFlags
	)

	cmd := &cobra.Command{
		Use:   "pca",
		Short: "Project the cleaned records onto their principal components",
		Long: `Fit a principal component analysis on the cleaned records. The explained
variance is printed; loadings and component scores are written to the
output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			features.resolve(cmd, e.cfg)

			t, err := e.cleanedTable(cmd.Context(), cleaned)
			if err != nil {
				return err
			}
			d, err := e.dataset(t, &features)
			if err != nil {
				return err
			}

			p, err := analysis.PCA(d, components)
			if err != nil {
				return err
			}
			scores, err := p.Scores.Table(t.Name+"_pca_scores", e.key(t))
			if err != nil {
				return err
			}
			if err := e.save(scores); err != nil {
				return err
			}
			if err := e.save(p.LoadingsTable(t.Name + "_pca_loadings")); err != nil {
				return err
			}
			return e.emit(p.VarianceTable(t.Name + "_pca_variance"))
		},
	}

	cmd.Flags().StringVar(&cleaned, "cleaned", "", "cleaned CSV to project (default: run prepare first)")
	cmd.Flags().IntVarP(&components, "components", "n", 2, "number of components")
	features.register(cmd)
	return cmd
}
