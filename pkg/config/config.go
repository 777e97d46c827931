// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	// Input
	InputPath   string
	InputFormat string // csv, xlsx, snowflake; empty means infer from extension
	InputSheet  string
	InputTable  string // schema.table for warehouse sources

	// Study definition
	StudyFile string
	Study     *Study

	// Outputs
	OutputDir     string
	WriteWorkbook bool

	// Pipeline settings
	KeyColumn       string
	StdDDOF         int
	JoinCardinality string
	MissingExclude  []string

	// Optional sinks and sources
	Sink      *SinkConfig
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig

	// Clustering defaults
	KMeans KMeansConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// SinkConfig selects the database that receives cleaned tables and the cleaning log
type SinkConfig struct {
	Driver    string // pgx or sqlite
	DSN       string
	Schema    string
	BatchSize int
}

// KMeansConfig holds the clustering defaults of the analysis commands
type KMeansConfig struct {
	Clusters    int
	NInit       int
	MaxIter     int
	Tol         float64
	Seed        int64
	Workers     int
	MaxK        int
	Standardize bool
}

// LoadConfig loads configuration from environment variables. When envFile
// exists it is read first; variables already set in the environment win.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		InputPath:       getEnv("INPUT_PATH", ""),
		InputFormat:     strings.ToLower(getEnv("INPUT_FORMAT", "")),
		InputSheet:      getEnv("INPUT_SHEET", ""),
		InputTable:      getEnv("INPUT_TABLE", ""),
		StudyFile:       getEnv("STUDY_FILE", ""),
		OutputDir:       getEnv("OUTPUT_DIR", "output"),
		WriteWorkbook:   getEnvAsBool("WRITE_WORKBOOK", true),
		KeyColumn:       getEnv("KEY_COLUMN", ""),
		StdDDOF:         getEnvAsInt("STD_DDOF", 1),
		JoinCardinality: getEnv("JOIN_CARDINALITY", "one_to_one"),
		MissingExclude:  getEnvAsStringSlice("MISSING_EXCLUDE", nil),
		KMeans: KMeansConfig{
			Clusters:    getEnvAsInt("KMEANS_CLUSTERS", 6),
			NInit:       getEnvAsInt("KMEANS_N_INIT", 25),
			MaxIter:     getEnvAsInt("KMEANS_MAX_ITER", 300),
			Tol:         getEnvAsFloat("KMEANS_TOL", 1e-4),
			Seed:        int64(getEnvAsInt("KMEANS_SEED", 0)),
			Workers:     getEnvAsInt("KMEANS_WORKERS", 0), // 0 means use runtime.NumCPU()
			MaxK:        getEnvAsInt("KMEANS_MAX_K", 9),
			Standardize: getEnvAsBool("KMEANS_STANDARDIZE", false),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	study, err := LoadStudy(cfg.StudyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load study definition: %w", err)
	}
	cfg.Study = study
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = study.Key
	}

	if driver := getEnv("SINK_DRIVER", ""); driver != "" {
		sink, pg, err := LoadSinkConfig(driver)
		if err != nil {
			return nil, errors.New("failed to load sink configuration: " + err.Error())
		}
		cfg.Sink = sink
		cfg.Postgres = pg
	}

	if cfg.InputFormat == "snowflake" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = snowConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSinkConfig loads the sink block for the given driver. A PostgreSQL
// sink without SINK_DSN is assembled from the POSTGRES_* variables; the
// returned PostgresConfig is nil for other drivers.
func LoadSinkConfig(driver string) (*SinkConfig, *PostgresConfig, error) {
	sink := &SinkConfig{
		Driver:    strings.ToLower(driver),
		DSN:       getEnv("SINK_DSN", ""),
		Schema:    getEnv("SINK_SCHEMA", ""),
		BatchSize: getEnvAsInt("SINK_BATCH_SIZE", 500),
	}

	var pg *PostgresConfig
	switch sink.Driver {
	case "sqlite":
		if sink.DSN == "" {
			sink.DSN = "piaac.db"
		}
	case "pgx", "postgres":
		sink.Driver = "pgx"
		if sink.DSN == "" {
			var err error
			pg, err = LoadPostgresConfig()
			if err != nil {
				return nil, nil, err
			}
			sink.DSN = pg.ConnectionString()
		} else {
			pg = PostgresConfigFromDSN(sink.DSN)
		}
		if sink.Schema == "" {
			sink.Schema = "piaac"
		}
	default:
		return nil, nil, fmt.Errorf("unsupported sink driver %q (want pgx or sqlite)", driver)
	}
	return sink, pg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Study == nil {
		return errors.New("study definition is required")
	}

	if c.KeyColumn == "" {
		return errors.New("key column is required")
	}

	if c.StdDDOF < 0 || c.StdDDOF > 1 {
		return errors.New("STD_DDOF must be 0 or 1")
	}

	switch c.JoinCardinality {
	case "one_to_one", "many_to_many":
	default:
		return fmt.Errorf("JOIN_CARDINALITY must be one_to_one or many_to_many, got %q", c.JoinCardinality)
	}

	switch c.InputFormat {
	case "", "csv", "xlsx", "snowflake":
	default:
		return fmt.Errorf("unsupported INPUT_FORMAT %q", c.InputFormat)
	}

	if c.InputFormat == "snowflake" && c.InputTable == "" {
		return errors.New("INPUT_TABLE is required for snowflake input")
	}

	if c.KMeans.Clusters <= 0 {
		return errors.New("cluster count must be positive")
	}

	if c.KMeans.NInit <= 0 || c.KMeans.MaxIter <= 0 {
		return errors.New("k-means restarts and iterations must be positive")
	}

	if c.Sink != nil && c.Sink.BatchSize <= 0 {
		return errors.New("sink batch size must be positive")
	}

	return c.Study.Validate()
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// Helper function to parse string slice from environment
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
