// pkg/pipeline/pipeline.go
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/cleaner"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/export"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/frame"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/source"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/store"
)

// Stage names a step of the preparation pipeline
type Stage string

const (
	StageLoad            Stage = "load"
	StageSelect          Stage = "select"
	StageCleanBackground Stage = "clean_background"
	StageJoin            Stage = "join"
	StageDescribeRaw     Stage = "describe_raw"
	StageCleanJoint      Stage = "clean_joint"
	StageDescribeCleaned Stage = "describe_cleaned"
	StageVerify          Stage = "verify"
	StageExport          Stage = "export"
	StageSink            Stage = "sink"
)

// Output file names
const (
	RawSummaryName     = "Table1_Raw_Data"
	CleanedSummaryName = "Table2_Cleaned_Data"
	WorkbookFile       = "descriptives.xlsx"
	MissingSheet       = "missing_values"
)

// Run statuses recorded in the sink
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Result holds every table a run produced
type Result struct {
	RunID string
	Input string

	Raw    *model.Table
	Groups []*model.Table

	BackgroundCleaned *model.Table
	BackgroundReport  *cleaner.Report

	Joined      *model.Table
	Cleaned     *model.Table
	CleanReport *cleaner.Report

	RawSummary     *stats.Summary
	CleanedSummary *stats.Summary

	Verification *VerificationReport
	Metrics      *Metrics
}

// Pipeline runs select, join, clean, summarize and export over one extract
type Pipeline struct {
	cfg         *config.Config
	study       *config.Study
	source      source.Source
	store       *store.Store
	cleaner     *cleaner.DataCleaner
	verifier    *Verifier
	policy      model.MissingPolicy
	cardinality frame.Cardinality
	logger      *zap.Logger
	newRunID    func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSource replaces the configured input
func WithSource(src source.Source) Option {
	return func(p *Pipeline) {
		p.source = src
	}
}

// WithStore writes cleaned tables, the cleaning log and the run record to s
func WithStore(s *store.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithRunID fixes the run identifier
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.newRunID = func() string { return id }
	}
}

// New creates a pipeline for cfg. Unless WithSource is given, the input is
// opened from the configuration.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	study := cfg.Study
	if study == nil {
		study = config.DefaultStudy()
	}
	if len(study.Groups) == 0 {
		return nil, errors.New("study defines no variable groups")
	}

	key := cfg.KeyColumn
	if key == "" {
		key = study.Key
	}

	policy, err := study.Policy(cfg.MissingExclude)
	if err != nil {
		return nil, err
	}
	cardinality, err := frame.ParseCardinality(cfg.JoinCardinality)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		study:       study,
		policy:      policy,
		cardinality: cardinality,
		logger:      logger.Named("pipeline"),
		newRunID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.source == nil {
		if p.source, err = source.Open(cfg, logger); err != nil {
			return nil, err
		}
	}

	cleanerOpts := []cleaner.Option{cleaner.WithKeyColumn(key)}
	if p.store != nil {
		cleanerOpts = append(cleanerOpts, cleaner.WithRecorder(p.store))
	}
	if p.cleaner, err = cleaner.NewDataCleaner(logger, policy, cleanerOpts...); err != nil {
		return nil, err
	}
	// Fan-out joins repeat keys on purpose
	verifyKey := key
	if cardinality == frame.ManyToMany {
		verifyKey = ""
	}
	p.verifier = NewVerifier(policy, verifyKey, logger)

	// Keep the study's key in sync with the configured override
	if key != study.Key {
		s := *study
		s.Key = key
		p.study = &s
	}
	return p, nil
}

// Policy returns the missing-value policy of the pipeline
func (p *Pipeline) Policy() model.MissingPolicy {
	return p.policy
}

// Run executes every stage in order and stops at the first failure, which
// is returned as a *StageError
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	runID := p.newRunID()
	metrics := NewMetrics(runID, p.logger)
	res = &Result{RunID: runID, Input: p.source.Describe(), Metrics: metrics}

	p.logger.Info("Starting pipeline run",
		zap.String("run_id", runID),
		zap.String("input", res.Input),
		zap.String("cardinality", p.cardinality.String()))

	defer func() {
		metrics.Complete()
		if p.store != nil {
			p.recordRun(ctx, res, err)
		}
	}()

	key := p.study.Key
	summaryOpts := []stats.Option{stats.WithPolicy(p.policy), stats.WithDDOF(p.cfg.StdDDOF)}

	steps := []struct {
		stage Stage
		run   func(sm *StageMetrics) error
	}{
		{StageLoad, func(sm *StageMetrics) error {
			t, err := source.LoadAnnotated(ctx, p.source, p.study)
			if err != nil {
				return err
			}
			res.Raw = t
			sm.Table, sm.RowsOut, sm.Columns = t.Name, t.NumRows(), t.NumCols()
			return nil
		}},
		{StageSelect, func(sm *StageMetrics) error {
			sm.RowsIn = res.Raw.NumRows()
			for _, g := range p.study.Groups {
				t, err := frame.Select(res.Raw, p.study.SelectColumns(g)...)
				if err != nil {
					return err
				}
				res.Groups = append(res.Groups, t.Renamed(g.Name))
				sm.Columns += t.NumCols()
			}
			sm.Table = strings.Join(groupNames(res.Groups), ",")
			sm.RowsOut = res.Raw.NumRows()
			return nil
		}},
		{StageCleanBackground, func(sm *StageMetrics) error {
			bkg := res.Groups[0]
			t, report, err := p.cleaner.Clean(ctx, runID, bkg, bkg.Name+"_cleaned")
			if err != nil {
				return err
			}
			res.BackgroundCleaned, res.BackgroundReport = t, report
			sm.Table, sm.RowsIn, sm.RowsOut, sm.Columns = t.Name, report.RowsIn, report.RowsOut, t.NumCols()
			return nil
		}},
		{StageJoin, func(sm *StageMetrics) error {
			name := strings.Join(groupNames(res.Groups), "_") + "_raw"
			t, err := frame.JoinAll(key, res.Groups,
				frame.WithCardinality(p.cardinality), frame.WithName(name))
			if err != nil {
				return err
			}
			res.Joined = t
			sm.Table, sm.RowsIn, sm.RowsOut, sm.Columns = t.Name, res.Groups[0].NumRows(), t.NumRows(), t.NumCols()
			return nil
		}},
		{StageDescribeRaw, func(sm *StageMetrics) error {
			s, err := stats.Summarize(res.Joined, append(summaryOpts, stats.WithSummaryName(RawSummaryName))...)
			if err != nil {
				return err
			}
			res.RawSummary = s
			sm.Table, sm.RowsIn, sm.Columns = s.Name, res.Joined.NumRows(), len(s.Columns)
			return nil
		}},
		{StageCleanJoint, func(sm *StageMetrics) error {
			name := strings.TrimSuffix(res.Joined.Name, "_raw") + "_cleaned"
			t, report, err := p.cleaner.Clean(ctx, runID, res.Joined, name)
			if err != nil {
				return err
			}
			res.Cleaned, res.CleanReport = t, report
			metrics.RecordDropped(report.RowsDropped())
			sm.Table, sm.RowsIn, sm.RowsOut, sm.Columns = t.Name, report.RowsIn, report.RowsOut, t.NumCols()
			return nil
		}},
		{StageDescribeCleaned, func(sm *StageMetrics) error {
			s, err := stats.Summarize(res.Cleaned, append(summaryOpts, stats.WithSummaryName(CleanedSummaryName))...)
			if err != nil {
				return err
			}
			res.CleanedSummary = s
			sm.Table, sm.RowsIn, sm.Columns = s.Name, res.Cleaned.NumRows(), len(s.Columns)
			return nil
		}},
		{StageVerify, func(sm *StageMetrics) error {
			res.Verification = p.verifier.VerifyCleaned(res.Joined, res.Cleaned, res.CleanedSummary)
			sm.Table, sm.RowsIn = res.Cleaned.Name, res.Cleaned.NumRows()
			if err := res.Verification.Err(); err != nil {
				return err
			}
			bkg := p.verifier.VerifyCleaned(res.Groups[0], res.BackgroundCleaned, nil)
			return bkg.Err()
		}},
		{StageExport, func(sm *StageMetrics) error {
			return p.export(res, metrics)
		}},
		{StageSink, func(sm *StageMetrics) error {
			if p.store == nil {
				return nil
			}
			for _, t := range []*model.Table{res.BackgroundCleaned, res.Cleaned} {
				n, err := p.store.WriteTable(ctx, t)
				if err != nil {
					return err
				}
				sm.RowsOut += int(n)
			}
			sm.Table = res.Cleaned.Name
			return nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, p.fail(metrics, runID, step.stage, nil, err)
		}
		sm := metrics.StartStage(step.stage)
		if err := step.run(sm); err != nil {
			return res, p.fail(metrics, runID, step.stage, sm, err)
		}
		metrics.EndStage(sm, nil)
	}

	p.logger.Info("Pipeline run completed",
		zap.String("run_id", runID),
		zap.Int("rows_raw", res.Raw.NumRows()),
		zap.Int("rows_joined", res.Joined.NumRows()),
		zap.Int("rows_cleaned", res.Cleaned.NumRows()),
		zap.Duration("duration", metrics.Duration()))
	return res, nil
}

func (p *Pipeline) fail(metrics *Metrics, runID string, stage Stage, sm *StageMetrics, err error) error {
	se := newStageError(stage, err)
	if sm != nil {
		metrics.EndStage(sm, se)
	}
	logStageError(p.logger, runID, se)
	return se
}

// export writes the summary tables, cleaned tables and workbook to the
// output directory. An empty directory disables file output.
func (p *Pipeline) export(res *Result, metrics *Metrics) error {
	dir := p.cfg.OutputDir
	if dir == "" {
		return nil
	}

	write := func(name string, fn func(path string) error) error {
		path := filepath.Join(dir, name)
		if err := fn(path); err != nil {
			return err
		}
		metrics.RecordOutput(path)
		return nil
	}

	for _, s := range []*stats.Summary{res.RawSummary, res.CleanedSummary} {
		if err := write(s.Name+".csv", func(path string) error { return export.WriteSummaryFile(path, s) }); err != nil {
			return err
		}
	}
	for _, t := range []*model.Table{res.BackgroundCleaned, res.Cleaned} {
		if err := write(t.Name+".csv", func(path string) error { return export.WriteTableFile(path, t) }); err != nil {
			return err
		}
	}

	if !p.cfg.WriteWorkbook {
		return nil
	}
	wb := export.NewWorkbook()
	defer wb.Close()
	if err := wb.AddSummary(RawSummaryName, res.RawSummary); err != nil {
		return err
	}
	if err := wb.AddSummary(CleanedSummaryName, res.CleanedSummary); err != nil {
		return err
	}
	if err := wb.AddTable(MissingSheet, MissingTable(MissingSheet, res.CleanReport)); err != nil {
		return err
	}
	return write(WorkbookFile, wb.SaveAs)
}

// recordRun stores the run summary. Failures are logged only; the run's own
// outcome is already decided.
func (p *Pipeline) recordRun(ctx context.Context, res *Result, runErr error) {
	run := store.RunRecord{
		RunID:      res.RunID,
		Input:      res.Input,
		Status:     StatusSucceeded,
		StartedAt:  res.Metrics.StartTime.UTC(),
		FinishedAt: res.Metrics.EndTime.UTC(),
	}
	if res.Raw != nil {
		run.RowsRaw = res.Raw.NumRows()
	}
	if res.Joined != nil {
		run.RowsJoined = res.Joined.NumRows()
	}
	if res.Cleaned != nil {
		run.RowsCleaned = res.Cleaned.NumRows()
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	// A canceled run still gets its record
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.store.RecordRun(recordCtx, run); err != nil {
		p.logger.Error("Failed to record pipeline run",
			zap.String("run_id", res.RunID),
			zap.Error(err))
	}
}

// MissingTable renders the per-column missing-value overview of a
// cleaning pass, one column per reason
func MissingTable(name string, report *cleaner.Report) *model.Table {
	reasons := model.AllReasons()
	cols := []model.Column{
		{Name: "column", Kind: model.KindText},
		{Name: "total", Kind: model.KindNumber},
	}
	for _, r := range reasons {
		cols = append(cols, model.Column{Name: r.String(), Kind: model.KindNumber})
	}

	t := model.NewTable(name, cols)
	for _, cm := range report.MissingByColumn() {
		row := []model.Value{model.Text(cm.Column), model.Number(float64(cm.Total))}
		for _, r := range reasons {
			row = append(row, model.Number(float64(cm.ByReason[r])))
		}
		t.AppendRow(row)
	}
	return t
}

func groupNames(tables []*model.Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Describe loads the input and summarises it without cleaning, the quick
// look of the describe command
func (p *Pipeline) Describe(ctx context.Context) (*stats.Summary, error) {
	t, err := source.LoadAnnotated(ctx, p.source, p.study)
	if err != nil {
		return nil, newStageError(StageLoad, err)
	}
	s, err := stats.Summarize(t, stats.WithPolicy(p.policy), stats.WithDDOF(p.cfg.StdDDOF))
	if err != nil {
		return nil, newStageError(StageDescribeRaw, fmt.Errorf("failed to summarize %s: %w", t.Name, err))
	}
	return s, nil
}
