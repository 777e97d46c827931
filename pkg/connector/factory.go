// pkg/connector/factory.go
package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, errors.New("snowflake is not configured")
	}
	f.logger.Info("Creating Snowflake connector")

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	if f.cfg.Postgres == nil {
		return nil, errors.New("postgres is not configured")
	}
	f.logger.Info("Creating PostgreSQL connector")

	var schemas []string
	if f.cfg.Sink != nil && f.cfg.Sink.Schema != "" {
		schemas = append(schemas, f.cfg.Sink.Schema)
	}

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres, schemas...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// CreateSQLiteConnector creates a new SQLite connector for the sink DSN
func (f *ConnectorFactory) CreateSQLiteConnector(ctx context.Context) (*SQLiteConnector, error) {
	if f.cfg.Sink == nil {
		return nil, errors.New("sink is not configured")
	}
	f.logger.Info("Creating SQLite connector", zap.String("path", f.cfg.Sink.DSN))

	connector, err := NewSQLiteConnector(ctx, f.cfg.Sink.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite connector: %w", err)
	}

	return connector, nil
}

// CreateSinkConnector creates and validates the connector for the
// configured sink driver
func (f *ConnectorFactory) CreateSinkConnector(ctx context.Context) (DatabaseConnector, error) {
	if f.cfg.Sink == nil {
		return nil, errors.New("sink is not configured")
	}

	var (
		conn DatabaseConnector
		err  error
	)
	switch f.cfg.Sink.Driver {
	case "pgx":
		conn, err = f.CreatePostgresConnector(ctx)
	case "sqlite":
		conn, err = f.CreateSQLiteConnector(ctx)
	default:
		return nil, fmt.Errorf("unsupported sink driver %q", f.cfg.Sink.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Validate(); err != nil {
		conn.Close() // Clean up the connection if validation fails
		return nil, err
	}
	return conn, nil
}
