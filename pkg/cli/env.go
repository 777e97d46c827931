// pkg/cli/env.go
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/analysis"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/export"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/logging"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/pipeline"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/source"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/store"
)

// env is the configuration and logger shared by one command invocation
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	cmd    *cobra.Command
	close  func()
}

// setup loads the configuration, applies the global flags and installs the logger
func (o *RootOptions) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadConfig(o.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if o.StudyFile != "" {
		study, err := config.LoadStudy(o.StudyFile)
		if err != nil {
			return nil, err
		}
		// an explicit KEY_COLUMN still wins over the study's key
		if cfg.KeyColumn == cfg.Study.Key {
			cfg.KeyColumn = study.Key
		}
		cfg.StudyFile, cfg.Study = o.StudyFile, study
	}
	if o.Input != "" {
		cfg.InputPath = o.Input
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, restore, err := logging.Install(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, cmd: cmd, close: restore}, nil
}

// openStore connects to the configured sink, or returns nil without one
func (e *env) openStore(ctx context.Context) (*store.Store, error) {
	if e.cfg.Sink == nil {
		return nil, nil
	}
	return store.Open(ctx, e.cfg, e.logger)
}

// prepare runs the preparation pipeline
func (e *env) prepare(ctx context.Context, opts ...pipeline.Option) (*pipeline.Result, error) {
	p, err := pipeline.New(e.cfg, e.logger, opts...)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// cleanedTable returns the records the analysis commands work on: a
// previously exported cleaned CSV when path is set, otherwise the output
// of a fresh preparation run
func (e *env) cleanedTable(ctx context.Context, path string) (*model.Table, error) {
	if path == "" {
		res, err := e.prepare(ctx)
		if err != nil {
			return nil, err
		}
		return res.Cleaned, nil
	}
	return source.LoadAnnotated(ctx, source.NewCSVSource(path, e.logger), e.cfg.Study)
}

// key returns the configured key column when t carries it
func (e *env) key(t *model.Table) string {
	if t.ColumnIndex(e.cfg.KeyColumn) < 0 {
		return ""
	}
	return e.cfg.KeyColumn
}

// featureFlags selects the clustering features of a cleaned table
type featureFlags struct {
	subset      bool
	exclude     []string
	standardize bool
}

func (f *featureFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.subset, "subset", false, "use only the study's subset variables")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "columns left out of the features")
	cmd.Flags().BoolVar(&f.standardize, "standardize", false, "cluster z-scores instead of raw values (default KMEANS_STANDARDIZE)")
}

// resolve fills unset flags from the configuration
func (f *featureFlags) resolve(cmd *cobra.Command, cfg *config.Config) {
	if !cmd.Flags().Changed("standardize") {
		f.standardize = cfg.KMeans.Standardize
	}
}

// excluded lists every column of t that is not a feature, the key aside
func (f *featureFlags) excluded(t *model.Table, study *config.Study, key string) ([]string, error) {
	out := append([]string(nil), f.exclude...)
	if !f.subset {
		return out, nil
	}
	if len(study.Subset) == 0 {
		return nil, fmt.Errorf("study %q defines no subset", study.Name)
	}
	keep := make(map[string]bool, len(study.Subset))
	for _, c := range study.Subset {
		if t.ColumnIndex(c) < 0 {
			return nil, fmt.Errorf("subset column %q does not exist in table %q", c, t.Name)
		}
		keep[c] = true
	}
	for _, c := range t.Columns {
		if c.Name != key && !keep[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out, nil
}

// dataset builds the feature matrix of t
func (e *env) dataset(t *model.Table, f *featureFlags) (*analysis.Dataset, error) {
	key := e.key(t)
	exclude, err := f.excluded(t, e.cfg.Study, key)
	if err != nil {
		return nil, err
	}
	d, err := analysis.FromTable(t, key, exclude...)
	if err != nil {
		return nil, err
	}
	if f.standardize {
		if d, _, err = analysis.Standardize(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// emit prints t as CSV and, with an output directory, writes it to
// <dir>/<name>.csv
func (e *env) emit(t *model.Table) error {
	out := e.cmd.OutOrStdout()
	if err := export.WriteTableCSV(out, t); err != nil {
		return err
	}
	return e.save(t)
}

// save writes t to the output directory only
func (e *env) save(t *model.Table) error {
	if e.cfg.OutputDir == "" {
		return nil
	}
	path := filepath.Join(e.cfg.OutputDir, t.Name+".csv")
	if err := export.WriteTableFile(path, t); err != nil {
		return err
	}
	e.logger.Info("Wrote table", zap.String("table", t.Name), zap.String("path", path))
	return nil
}
