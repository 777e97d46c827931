// pkg/cli/root.go
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds the global flags. Empty values leave the environment
// configuration untouched.
type RootOptions struct {
	EnvFile   string
	StudyFile string
	Input     string
	OutputDir string
	LogLevel  string
	LogFormat string
}

// NewRootCommand creates the piaac command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "piaac",
		Short: "Prepare and cluster PIAAC public-use survey data",
		Long: `Select background, literacy and numeracy variables from a PIAAC extract,
join them on the participant key, drop incomplete records and export
descriptive tables. The analysis commands cluster the cleaned records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "environment file read before the process environment")
	flags.StringVar(&opts.StudyFile, "study", "", "study definition YAML (overrides STUDY_FILE)")
	flags.StringVarP(&opts.Input, "input", "i", "", "raw extract, CSV or XLSX (overrides INPUT_PATH)")
	flags.StringVarP(&opts.OutputDir, "output", "o", "", "output directory (overrides OUTPUT_DIR)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "json or console (overrides LOG_FORMAT)")

	cmd.AddCommand(NewPrepareCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewClusterCommand(opts))
	cmd.AddCommand(NewElbowCommand(opts))
	cmd.AddCommand(NewPCACommand(opts))
	cmd.AddCommand(NewEvaluateCommand(opts))

	return cmd
}
