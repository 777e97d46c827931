// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
	conv   *converter.TypeConverter
}

// TableRequest describes a warehouse extract
type TableRequest struct {
	Schema    string
	Table     string
	Columns   []string // empty selects every column
	OrderBy   string   // required for batched reads so pages are stable
	BatchSize int      // 0 reads in one query
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Schema:        cfg.Schema,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(db, snowflakePool(cfg))

	if cfg.QueryTimeout > 0 {
		_, err = db.ExecContext(
			ctx,
			fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d",
				int(cfg.QueryTimeout.Seconds())),
		)
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
		conv:   converter.NewTypeConverter(logger),
	}

	LogConnectionStats(logger, cfg.Database, db, snowflakePool(cfg))
	return connector, nil
}

func snowflakePool(cfg *config.SnowflakeConfig) PoolSettings {
	return PoolSettings{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// Dialect returns DialectSnowflake
func (c *SnowflakeConnector) Dialect() converter.Dialect {
	return converter.DialectSnowflake
}

// Validate verifies the Snowflake connection and access rights
func (c *SnowflakeConnector) Validate() error {
	var role, database, warehouse string
	err := c.db.QueryRow("SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role),
		zap.String("database", database),
		zap.String("warehouse", warehouse))

	if !strings.EqualFold(database, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database, c.cfg.Database)
	}

	found, err := c.schemaExists(c.cfg.Schema)
	if err != nil {
		return fmt.Errorf("failed to verify schema: %w", err)
	}
	if !found {
		return fmt.Errorf("schema %s not found in database %s", c.cfg.Schema, c.cfg.Database)
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db, snowflakePool(c.cfg))
	return c.db.Close()
}

// schemaExists checks the configured schema against SHOW SCHEMAS
func (c *SnowflakeConnector) schemaExists(schema string) (bool, error) {
	rows, err := c.db.Query("SHOW SCHEMAS IN DATABASE " + c.cfg.Database)
	if err != nil {
		return false, fmt.Errorf("failed to query schemas: %w", err)
	}
	defer rows.Close()

	names, err := secondColumn(rows)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if strings.EqualFold(name, schema) {
			return true, nil
		}
	}
	return false, nil
}

// GetTables retrieves all tables in a schema
func (c *SnowflakeConnector) GetTables(schema string) ([]string, error) {
	rows, err := c.db.Query("SHOW TABLES IN SCHEMA " + schema)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tables from schema %s: %w", schema, err)
	}
	defer rows.Close()

	return secondColumn(rows)
}

// secondColumn collects the "name" column of SHOW output, whose width
// varies between Snowflake releases
func secondColumn(rows *sql.Rows) ([]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("unexpected SHOW output with %d columns", len(cols))
	}

	raw := make([]sql.RawBytes, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var names []string
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, string(raw[1]))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return names, nil
}

// ExecWithTimeout executes a statement with a timeout
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}

// LoadTable extracts a survey table into memory
func (c *SnowflakeConnector) LoadTable(ctx context.Context, req TableRequest) (*model.Table, error) {
	query := BuildSelect(req)
	c.logger.Info("Loading table",
		zap.String("schema", req.Schema),
		zap.String("table", req.Table),
		zap.Int("columns", len(req.Columns)),
		zap.Int("batch_size", req.BatchSize))

	if req.BatchSize <= 0 {
		rows, err := c.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", req.Table, err)
		}
		defer rows.Close()
		return ScanTable(rows, req.Table, c.conv)
	}

	if req.OrderBy == "" {
		return nil, fmt.Errorf("batched read of %s requires an order column", req.Table)
	}
	scanner := newTableScanner(req.Table, c.conv)
	err := c.BatchQuery(ctx, query, req.BatchSize, func(rows *sql.Rows) error {
		return scanner.scan(rows)
	}, scanner.reset)
	if err != nil {
		return nil, err
	}
	return scanner.table, nil
}

// BuildSelect renders the extract query of a request
func BuildSelect(req TableRequest) string {
	cols := "*"
	if len(req.Columns) > 0 {
		quoted := make([]string, len(req.Columns))
		for i, col := range req.Columns {
			quoted[i] = converter.QuoteIdentifier(col)
		}
		cols = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", cols, converter.QualifiedName(req.Schema, req.Table))
	if req.OrderBy != "" {
		query += " ORDER BY " + converter.QuoteIdentifier(req.OrderBy)
	}
	return query
}

// BatchQuery fetches data in batches to handle large result sets. newBatch,
// when set, runs before each page is read.
func (c *SnowflakeConnector) BatchQuery(
	ctx context.Context,
	query string,
	batchSize int,
	processor func(*sql.Rows) error,
	newBatch func(),
) error {
	if batchSize <= 0 {
		batchSize = 10000
	}

	offset := 0
	for {
		if newBatch != nil {
			newBatch()
		}

		rowCount, err := c.readBatch(ctx, query, batchSize, offset, processor)
		if err != nil {
			return err
		}

		c.logger.Debug("Fetched batch", zap.Int("offset", offset), zap.Int("rows", rowCount))

		// If fewer rows than batch size were returned, we're done
		if rowCount < batchSize {
			break
		}

		offset += batchSize
	}

	return nil
}

// readBatch reads one page; the timeout covers both the query and the scan
func (c *SnowflakeConnector) readBatch(
	ctx context.Context,
	query string,
	batchSize, offset int,
	processor func(*sql.Rows) error,
) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batchQuery := fmt.Sprintf("%s LIMIT %d OFFSET %d", query, batchSize, offset)
	rows, err := c.db.QueryContext(queryCtx, batchQuery)
	if err != nil {
		return 0, fmt.Errorf("batch query failed at offset %d: %w", offset, err)
	}
	defer rows.Close()

	rowCount := 0
	for rows.Next() {
		rowCount++
		if err := processor(rows); err != nil {
			return rowCount, fmt.Errorf("row processing failed at offset %d: %w", offset, err)
		}
	}
	if err := rows.Err(); err != nil {
		return rowCount, fmt.Errorf("error iterating rows at offset %d: %w", offset, err)
	}
	return rowCount, nil
}
