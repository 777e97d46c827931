// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Recorder persists cleaning operations for auditing
type Recorder interface {
	RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) error
}

// DataCleaner applies listwise deletion to survey tables and records what it removed
type DataCleaner struct {
	policy   model.MissingPolicy
	key      string
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a DataCleaner
type Option func(*DataCleaner)

// WithRecorder sends cleaning operations to r after every pass
func WithRecorder(r Recorder) Option {
	return func(c *DataCleaner) {
		c.recorder = r
	}
}

// WithKeyColumn names the participant key used as row identifier
func WithKeyColumn(key string) Option {
	return func(c *DataCleaner) {
		c.key = key
	}
}

// NewDataCleaner creates a new DataCleaner instance
func NewDataCleaner(logger *zap.Logger, policy model.MissingPolicy, opts ...Option) (*DataCleaner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	cleaner := &DataCleaner{
		policy: policy,
		logger: logger.Named("cleaner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	return cleaner, nil
}

// Policy returns the missing-value policy in use
func (c *DataCleaner) Policy() model.MissingPolicy {
	return c.policy
}

// Clean drops incomplete rows from t. The returned table carries name,
// which lets callers keep background-only and joint cleaning apart.
func (c *DataCleaner) Clean(
	ctx context.Context,
	runID string,
	t *model.Table,
	name string,
) (*model.Table, *Report, error) {
	if t == nil {
		return nil, nil, errors.New("table cannot be nil")
	}
	if name == "" {
		name = t.Name + "_cleaned"
	}

	cctx := model.CleaningContext{RunID: runID, TableName: name, KeyColumn: c.key}
	cleaned, report := dropIncomplete(t, c.policy, cctx, c.now)
	cleaned = cleaned.Renamed(name)
	report.Table = name

	for _, cm := range report.MissingByColumn() {
		if cm.Total == 0 {
			continue
		}
		c.logger.Debug("Missing values",
			zap.String("table", t.Name),
			zap.String("column", cm.Column),
			zap.Int("total", cm.Total),
			zap.Any("by_reason", reasonCounts(cm.ByReason)))
	}

	c.logger.Info("Listwise deletion complete",
		zap.String("run_id", runID),
		zap.String("source", t.Name),
		zap.String("table", name),
		zap.Int("rows_in", report.RowsIn),
		zap.Int("rows_out", report.RowsOut),
		zap.Int("rows_dropped", report.RowsDropped()))

	if c.recorder != nil && len(report.Operations) > 0 {
		if err := c.recorder.RecordCleaningOperations(ctx, report.Operations); err != nil {
			return cleaned, report, fmt.Errorf("failed to record cleaning operations: %w", err)
		}
	}

	return cleaned, report, nil
}

// ValidateComplete returns an error if any cell of t is missing under the
// cleaner's policy
func (c *DataCleaner) ValidateComplete(t *model.Table) error {
	for r, row := range t.Rows {
		col, reason, found := firstMissing(t.Columns, row, c.policy)
		if found {
			return fmt.Errorf("row %d, column %s: %s value remains after cleaning",
				r, t.Columns[col].Name, reason)
		}
	}
	return nil
}

func reasonCounts(m map[model.MissingReason]int) map[string]int {
	out := make(map[string]int, len(m))
	for r, n := range m {
		out[r.String()] = n
	}
	return out
}
