// pkg/pipeline/metrics.go
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StageMetrics tracks one stage of a run
type StageMetrics struct {
	Stage     Stage
	Table     string
	StartTime time.Time
	EndTime   time.Time
	RowsIn    int
	RowsOut   int
	Columns   int
	Err       string
}

// Duration returns the time spent in the stage
func (sm *StageMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// Metrics tracks a pipeline run
type Metrics struct {
	mu          sync.Mutex
	logger      *zap.Logger
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	Stages      []*StageMetrics
	ErrorCounts map[ErrorCategory]int
	RowsDropped int
	Outputs     []string
}

// NewMetrics creates a new Metrics instance
func NewMetrics(runID string, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		RunID:       runID,
		StartTime:   time.Now(),
		ErrorCounts: make(map[ErrorCategory]int),
		logger:      logger,
	}
}

// StartStage begins tracking a stage
func (m *Metrics) StartStage(stage Stage) *StageMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm := &StageMetrics{Stage: stage, StartTime: time.Now()}
	m.Stages = append(m.Stages, sm)
	return sm
}

// EndStage completes tracking of a stage
func (m *Metrics) EndStage(sm *StageMetrics, err *StageError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm.EndTime = time.Now()
	if err != nil {
		sm.Err = err.Err.Error()
		m.ErrorCounts[err.Category]++
		return
	}

	m.logger.Info("Stage completed",
		zap.String("run_id", m.RunID),
		zap.String("stage", string(sm.Stage)),
		zap.String("table", sm.Table),
		zap.Int("rows_in", sm.RowsIn),
		zap.Int("rows_out", sm.RowsOut),
		zap.Int("columns", sm.Columns),
		zap.Duration("duration", sm.Duration()))
}

// RecordDropped adds rows removed by listwise deletion
func (m *Metrics) RecordDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RowsDropped += n
}

// RecordOutput remembers a written artifact
func (m *Metrics) RecordOutput(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outputs = append(m.Outputs, path)
}

// Complete marks the run as finished
func (m *Metrics) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// Duration returns the total duration of the run
func (m *Metrics) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// Stage returns the metrics of a stage, if it ran
func (m *Metrics) Stage(stage Stage) (*StageMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sm := range m.Stages {
		if sm.Stage == stage {
			return sm, true
		}
	}
	return nil, false
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// GenerateMetricsReport creates a plain text report of the run
func (m *Metrics) GenerateMetricsReport() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, `
Pipeline Metrics Report
=======================
Run ID:                  %s
Duration:                %s
Start Time:              %s
Rows Dropped:            %d

Stages
------
`,
		m.RunID,
		formatDuration(m.Duration()),
		m.StartTime.Format(time.RFC3339),
		m.RowsDropped,
	)

	for _, sm := range m.Stages {
		status := "ok"
		if sm.Err != "" {
			status = "failed: " + sm.Err
		}
		fmt.Fprintf(&sb, "- %-18s %-24s %6d -> %-6d %s  %s\n",
			sm.Stage, sm.Table, sm.RowsIn, sm.RowsOut, formatDuration(sm.Duration()), status)
	}

	if len(m.Outputs) > 0 {
		sb.WriteString("\nOutputs\n-------\n")
		for _, o := range m.Outputs {
			fmt.Fprintf(&sb, "- %s\n", o)
		}
	}

	if len(m.ErrorCounts) > 0 {
		sb.WriteString("\nErrors\n------\n")
		for category, count := range m.ErrorCounts {
			fmt.Fprintf(&sb, "- %s: %d\n", category, count)
		}
	}

	return sb.String()
}

// ToJSON serializes metrics to JSON
func (m *Metrics) ToJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type stage struct {
		Stage    Stage  `json:"stage"`
		Table    string `json:"table,omitempty"`
		RowsIn   int    `json:"rowsIn"`
		RowsOut  int    `json:"rowsOut"`
		Columns  int    `json:"columns"`
		Duration string `json:"duration"`
		Error    string `json:"error,omitempty"`
	}
	stages := make([]stage, len(m.Stages))
	for i, sm := range m.Stages {
		stages[i] = stage{
			Stage:    sm.Stage,
			Table:    sm.Table,
			RowsIn:   sm.RowsIn,
			RowsOut:  sm.RowsOut,
			Columns:  sm.Columns,
			Duration: formatDuration(sm.Duration()),
			Error:    sm.Err,
		}
	}

	return json.Marshal(struct {
		RunID       string                `json:"runId"`
		Duration    string                `json:"duration"`
		RowsDropped int                   `json:"rowsDropped"`
		Stages      []stage               `json:"stages"`
		Outputs     []string              `json:"outputs,omitempty"`
		Errors      map[ErrorCategory]int `json:"errors,omitempty"`
	}{
		RunID:       m.RunID,
		Duration:    formatDuration(m.Duration()),
		RowsDropped: m.RowsDropped,
		Stages:      stages,
		Outputs:     m.Outputs,
		Errors:      m.ErrorCounts,
	})
}
