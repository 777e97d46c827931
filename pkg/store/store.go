// pkg/store/store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/connector"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

const (
	cleaningLogTable  = "cleaning_log"
	pipelineRunsTable = "pipeline_runs"

	// maxBindArgs stays under the smallest placeholder limit of the
	// supported drivers (SQLite's 32766)
	maxBindArgs = 30000
)

// Store persists cleaned tables, the cleaning log and run records
type Store struct {
	conn      connector.DatabaseConnector
	db        *sqlx.DB
	dialect   converter.Dialect
	schema    string
	batchSize int
	logger    *zap.Logger
}

// RunRecord is one row of the pipeline_runs table
type RunRecord struct {
	RunID        string         `db:"run_id"`
	Input        string         `db:"input"`
	Status       string         `db:"status"`
	StartedAt    time.Time      `db:"started_at"`
	FinishedAt   time.Time      `db:"finished_at"`
	RowsRaw      int            `db:"rows_raw"`
	RowsJoined   int            `db:"rows_joined"`
	RowsCleaned  int            `db:"rows_cleaned"`
	ErrorMessage sql.NullString `db:"error_message"`
}

type cleaningRow struct {
	RunID         string         `db:"run_id"`
	TableName     string         `db:"table_name"`
	ColumnName    string         `db:"column_name"`
	OriginalValue sql.NullString `db:"original_value"`
	RowIdentifier string         `db:"row_identifier"`
	Operation     string         `db:"operation"`
	Reason        string         `db:"reason"`
	CleanedAt     time.Time      `db:"cleaned_at"`
}

// New wraps an open connection. schema is ignored by SQLite.
func New(conn connector.DatabaseConnector, schema string, batchSize int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	dialect := conn.Dialect()
	if dialect == converter.DialectSQLite {
		schema = ""
	}

	return &Store{
		conn:      conn,
		db:        sqlx.NewDb(conn.DB(), driverName(dialect)),
		dialect:   dialect,
		schema:    schema,
		batchSize: batchSize,
		logger:    logger.Named("store"),
	}
}

// Open creates the configured sink connection and ensures the tracking
// tables exist
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("no sink configured")
	}

	conn, err := connector.NewConnectorFactory(cfg, logger).CreateSinkConnector(ctx)
	if err != nil {
		return nil, err
	}

	s := New(conn, cfg.Sink.Schema, cfg.Sink.BatchSize, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// driverName picks the sqlx bind style: $n for PostgreSQL, ? otherwise
func driverName(d converter.Dialect) string {
	switch d {
	case converter.DialectPostgres:
		return "pgx"
	default:
		return string(d)
	}
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// DB exposes the sqlx handle
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) qualified(table string) string {
	return converter.QualifiedName(s.schema, table)
}

// EnsureSchema creates the tracking tables if they don't exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.schema != "" {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+converter.QuoteIdentifier(s.schema)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", s.schema, err)
		}
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			original_value TEXT,
			row_identifier TEXT NOT NULL,
			operation TEXT NOT NULL,
			reason TEXT NOT NULL,
			cleaned_at TIMESTAMP NOT NULL
		)`, s.qualified(cleaningLogTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT PRIMARY KEY,
			input TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			rows_raw INTEGER NOT NULL,
			rows_joined INTEGER NOT NULL,
			rows_cleaned INTEGER NOT NULL,
			error_message TEXT
		)`, s.qualified(pipelineRunsTable)),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tracking table: %w", err)
		}
	}

	s.logger.Info("Ensured tracking tables exist",
		zap.String("schema", s.schema),
		zap.String("dialect", string(s.dialect)))
	return nil
}

// WriteTable replaces the database table named after t with its contents
func (s *Store) WriteTable(ctx context.Context, t *model.Table) (int64, error) {
	if t.NumCols() == 0 {
		return 0, fmt.Errorf("table %q has no columns", t.Name)
	}
	name := s.qualified(t.Name)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.Error(err))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, fmt.Errorf("failed to drop table %s: %w", name, err)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)",
		name, strings.Join(converter.ColumnDefinitions(t.Columns, s.dialect), ",\n\t"))
	if _, err = tx.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", name, err)
	}

	var inserted int64
	inserted, err = s.batchInsert(ctx, tx, name, t)
	if err != nil {
		return inserted, err
	}

	if err = tx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Wrote table",
		zap.String("table", name),
		zap.Int("columns", t.NumCols()),
		zap.Int64("rows", inserted))
	return inserted, nil
}

// batchInsert inserts the rows of t with multi-row VALUES statements
func (s *Store) batchInsert(ctx context.Context, tx *sqlx.Tx, name string, t *model.Table) (int64, error) {
	if t.NumRows() == 0 {
		return 0, nil
	}

	quoted := make([]string, t.NumCols())
	for i, col := range t.Columns {
		quoted[i] = converter.QuoteIdentifier(col.Name)
	}
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", t.NumCols()), ", ") + ")"

	batchSize := s.batchSize
	if limit := maxBindArgs / t.NumCols(); batchSize > limit {
		batchSize = limit
	}
	if batchSize < 1 {
		batchSize = 1
	}

	var total int64
	for i := 0; i < t.NumRows(); i += batchSize {
		end := i + batchSize
		if end > t.NumRows() {
			end = t.NumRows()
		}
		batch := t.Rows[i:end]

		placeholders := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*t.NumCols())
		for j, row := range batch {
			placeholders[j] = rowPlaceholder
			for k, v := range row {
				args = append(args, converter.ToSQLArg(v, t.Columns[k].Kind))
			}
		}

		query := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			name, strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("batch insert into %s failed at row %d: %w", name, i, err)
		}

		if n, err := result.RowsAffected(); err != nil {
			s.logger.Warn("Couldn't get rows affected", zap.Error(err))
			total += int64(len(batch))
		} else {
			total += n
		}
	}
	return total, nil
}

// RecordCleaningOperations batch inserts cleaning operations into the
// cleaning log
func (s *Store) RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.Error(err))
			}
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s
		(run_id, table_name, column_name, original_value, row_identifier, operation, reason, cleaned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.qualified(cleaningLogTable))))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range operations {
		_, err = stmt.ExecContext(ctx,
			op.RunID,
			op.TableName,
			op.ColumnName,
			toNullableString(op.OriginalValue),
			op.RowIdentifier,
			op.Operation,
			op.Reason,
			op.CleanedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}

// CleaningLog returns the operations recorded for a run in insertion order
func (s *Store) CleaningLog(ctx context.Context, runID string) ([]model.CleaningOperation, error) {
	var rows []cleaningRow
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT run_id, table_name, column_name, original_value, row_identifier, operation, reason, cleaned_at
		FROM %s WHERE run_id = ?`, s.qualified(cleaningLogTable)))
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to read cleaning log: %w", err)
	}

	ops := make([]model.CleaningOperation, len(rows))
	for i, r := range rows {
		ops[i] = model.CleaningOperation{
			RunID:         r.RunID,
			TableName:     r.TableName,
			ColumnName:    r.ColumnName,
			RowIdentifier: r.RowIdentifier,
			Operation:     r.Operation,
			Reason:        r.Reason,
			CleanedAt:     r.CleanedAt,
		}
		if r.OriginalValue.Valid {
			ops[i].OriginalValue = r.OriginalValue.String
		}
	}
	return ops, nil
}

// RecordRun inserts the summary row of a pipeline run
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(run_id, input, status, started_at, finished_at, rows_raw, rows_joined, rows_cleaned, error_message)
		VALUES (:run_id, :input, :status, :started_at, :finished_at, :rows_raw, :rows_joined, :rows_cleaned, :error_message)
	`, s.qualified(pipelineRunsTable))

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}

	s.logger.Info("Recorded pipeline run",
		zap.String("run_id", run.RunID),
		zap.String("status", run.Status))
	return nil
}

// Run reads back a recorded run
func (s *Store) Run(ctx context.Context, runID string) (*RunRecord, error) {
	var run RunRecord
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT run_id, input, status, started_at, finished_at, rows_raw, rows_joined, rows_cleaned, error_message
		FROM %s WHERE run_id = ?`, s.qualified(pipelineRunsTable)))
	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return &run, nil
}

// toNullableString renders an original cell value for the log
func toNullableString(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		return converter.FormatNumber(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
