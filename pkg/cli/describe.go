// pkg/cli/describe.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/export"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/pipeline"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

// NewDescribeCommand creates the describe command
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		cleaned     string
		correlation bool
	)

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print descriptive statistics of the raw extract or a cleaned table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			var s *stats.Summary
			if cleaned == "" {
				p, err := pipeline.New(e.cfg, e.logger)
				if err != nil {
					return err
				}
				if s, err = p.Describe(ctx); err != nil {
					return err
				}
			} else {
				t, err := e.cleanedTable(ctx, cleaned)
				if err != nil {
					return err
				}
				policy, err := e.cfg.MissingPolicy()
				if err != nil {
					return err
				}
				opts := []stats.Option{stats.WithPolicy(policy), stats.WithDDOF(e.cfg.StdDDOF)}
				if s, err = stats.Summarize(t, opts...); err != nil {
					return err
				}
				if correlation {
					m, err := stats.Correlation(t, append(opts, stats.WithExclude(e.key(t)))...)
					if err != nil {
						return err
					}
					if err := e.save(m.Table(t.Name + "_correlation")); err != nil {
						return err
					}
				}
			}

			if err := export.WriteSummaryCSV(cmd.OutOrStdout(), s); err != nil {
				return fmt.Errorf("failed to print summary: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cleaned, "cleaned", "", "summarise a cleaned CSV instead of the raw extract")
	cmd.Flags().BoolVar(&correlation, "correlation", false, "also write the correlation matrix of the cleaned table")
	return cmd
}
