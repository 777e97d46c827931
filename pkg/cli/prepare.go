// pkg/cli/prepare.go
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/pipeline"
)

// NewPrepareCommand creates the prepare command
func NewPrepareCommand(rootOpts *RootOptions) *cobra.Command {
	var metricsJSON bool

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Select, join and clean the extract and export descriptive tables",
		Long: `Run the preparation pipeline: select the study's variable groups, join them
on the participant key, drop incomplete records, summarise the raw and
cleaned tables and export them. With SINK_DRIVER set, cleaned tables, the
cleaning log and the run record are written to the database as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			return runPrepare(e, metricsJSON)
		},
	}

	cmd.Flags().BoolVar(&metricsJSON, "metrics-json", false, "write the run metrics as JSON to the output directory")
	return cmd
}

func runPrepare(e *env, metricsJSON bool) error {
	ctx := e.cmd.Context()

	var opts []pipeline.Option
	st, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		opts = append(opts, pipeline.WithStore(st))
	}

	res, err := e.prepare(ctx, opts...)
	if res != nil && res.Metrics != nil {
		fmt.Fprint(e.cmd.OutOrStdout(), res.Metrics.GenerateMetricsReport())
	}
	if err != nil {
		return err
	}

	if metricsJSON && e.cfg.OutputDir != "" {
		data, err := res.Metrics.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
		path := filepath.Join(e.cfg.OutputDir, "metrics_"+res.RunID+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		e.logger.Info("Wrote run metrics", zap.String("path", path))
	}
	return nil
}
