// pkg/connector/sqlite.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
)

// SQLiteConnector implements the DatabaseConnector interface for a local
// SQLite file or an in-memory database
type SQLiteConnector struct {
	db     *sql.DB
	logger *zap.Logger
	path   string
}

// sqlitePool keeps a single connection: every connection to ":memory:" is a
// separate database, and SQLite serialises writers anyway
var sqlitePool = PoolSettings{MaxOpenConns: 1, MaxIdleConns: 1}

// NewSQLiteConnector opens the database at path (":memory:" for a
// throwaway database)
func NewSQLiteConnector(ctx context.Context, path string) (*SQLiteConnector, error) {
	logger := zap.L().Named("sqlite-connector")
	logger.Info("Opening SQLite database", zap.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite connection: %w", err)
	}

	ApplyConnectionSettings(db, sqlitePool)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		logger.Warn("Failed to enable foreign keys", zap.Error(err))
	}

	connector := &SQLiteConnector{
		db:     db,
		logger: logger,
		path:   path,
	}

	LogConnectionStats(logger, path, db, sqlitePool)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SQLiteConnector) DB() *sql.DB {
	return c.db
}

// Dialect returns DialectSQLite
func (c *SQLiteConnector) Dialect() converter.Dialect {
	return converter.DialectSQLite
}

// Validate checks that the database accepts writes
func (c *SQLiteConnector) Validate() error {
	var version string
	if err := c.db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query SQLite version: %w", err)
	}
	c.logger.Info("Connected to SQLite", zap.String("version", version))

	if _, err := c.db.Exec("CREATE TEMP TABLE _permission_check (test TEXT)"); err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}
	if _, err := c.db.Exec("DROP TABLE _permission_check"); err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *SQLiteConnector) Close() error {
	c.logger.Info("Closing SQLite database")
	LogConnectionStats(c.logger, c.path, c.db, sqlitePool)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *SQLiteConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}
