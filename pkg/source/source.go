// pkg/source/source.go
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Source loads the raw survey extract
type Source interface {
	// Load reads the whole extract into memory
	Load(ctx context.Context) (*model.Table, error)

	// Describe names the input for logs and run records
	Describe() string
}

// Supported input formats
const (
	FormatCSV       = "csv"
	FormatXLSX      = "xlsx"
	FormatSnowflake = "snowflake"
)

// DetectFormat returns the configured format, falling back to the file
// extension
func DetectFormat(format, path string) (string, error) {
	if format != "" {
		return strings.ToLower(format), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case "":
		return "", fmt.Errorf("cannot infer input format of %q; set INPUT_FORMAT", path)
	default:
		return "", fmt.Errorf("unsupported input file %q", path)
	}
}

// Open picks the source implementation for the configuration
func Open(cfg *config.Config, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	format := cfg.InputFormat
	if format == "" && cfg.InputPath == "" {
		return nil, fmt.Errorf("no input configured; set INPUT_PATH or INPUT_FORMAT")
	}

	format, err := DetectFormat(format, cfg.InputPath)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return NewCSVSource(cfg.InputPath, logger), nil
	case FormatXLSX:
		return NewXLSXSource(cfg.InputPath, cfg.InputSheet, logger), nil
	case FormatSnowflake:
		return NewSnowflakeSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
}

// LoadAnnotated loads the source and attaches the study's codebook
// metadata to its columns
func LoadAnnotated(ctx context.Context, src Source, study *config.Study) (*model.Table, error) {
	t, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", src.Describe(), err)
	}
	if study != nil {
		t = study.Annotate(t)
	}
	return t, nil
}

// tableName derives a table name from a file path
func tableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
