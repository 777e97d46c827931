// pkg/source/snowflake.go
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/connector"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// SnowflakeSource extracts the survey table from the warehouse. Only the
// key and the study's variables are selected.
type SnowflakeSource struct {
	factory *connector.ConnectorFactory
	request connector.TableRequest
	logger  *zap.Logger
}

// NewSnowflakeSource creates a warehouse source from INPUT_TABLE, which is
// either TABLE or SCHEMA.TABLE
func NewSnowflakeSource(cfg *config.Config, logger *zap.Logger) (*SnowflakeSource, error) {
	if cfg.Snowflake == nil {
		return nil, errors.New("snowflake input requires SNOWFLAKE_* configuration")
	}

	schema, table := cfg.Snowflake.Schema, cfg.InputTable
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, table = table[:i], table[i+1:]
	}
	if table == "" {
		return nil, errors.New("INPUT_TABLE is required for snowflake input")
	}

	var columns []string
	if cfg.Study != nil {
		columns = append(columns, cfg.Study.Key)
		for _, g := range cfg.Study.Groups {
			columns = append(columns, g.Columns...)
		}
	}

	return &SnowflakeSource{
		factory: connector.NewConnectorFactory(cfg, logger),
		request: connector.TableRequest{
			Schema:    schema,
			Table:     table,
			Columns:   columns,
			OrderBy:   cfg.KeyColumn,
			BatchSize: cfg.Snowflake.BatchSize,
		},
		logger: logger.Named("snowflake-source"),
	}, nil
}

// Describe returns the qualified table name
func (s *SnowflakeSource) Describe() string {
	return fmt.Sprintf("snowflake:%s.%s", s.request.Schema, s.request.Table)
}

// Load connects, extracts the table and disconnects
func (s *SnowflakeSource) Load(ctx context.Context) (*model.Table, error) {
	conn, err := s.factory.CreateSnowflakeConnector(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Validate(); err != nil {
		return nil, err
	}

	tables, err := conn.GetTables(s.request.Schema)
	if err != nil {
		return nil, err
	}
	if !containsTable(tables, s.request.Table) {
		return nil, fmt.Errorf("table %s not found in schema %s", s.request.Table, s.request.Schema)
	}

	t, err := conn.LoadTable(ctx, s.request)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded warehouse table",
		zap.String("table", s.Describe()),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()))
	return t, nil
}

// containsTable matches SHOW TABLES names, which Snowflake reports in upper
// case for unquoted identifiers
func containsTable(tables []string, table string) bool {
	for _, name := range tables {
		if strings.EqualFold(name, table) {
			return true
		}
	}
	return false
}
