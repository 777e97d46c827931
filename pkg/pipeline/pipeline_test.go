package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/config"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/frame"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/store"
)

type tableSource struct {
	t *model.Table
}

func (s tableSource) Load(ctx context.Context) (*model.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.t.Clone(), nil
}

func (s tableSource) Describe() string {
	return "memory:" + s.t.Name
}

func testStudy() *config.Study {
	return &config.Study{
		Name: "test",
		Key:  "SEQID",
		Groups: []config.VariableGroup{
			{Name: "bkg", Columns: []string{"GENDER_R", "C_D05"}},
			{Name: "lit", Columns: []string{"PVLIT1", "PVLIT2"}},
			{Name: "num", Columns: []string{"PVNUM1"}},
		},
		Variables: map[string]config.Variable{
			"C_D05": {MissingCodes: map[float64]model.MissingReason{9: model.ReasonNotStated}},
		},
	}
}

// rawTable has five participants; the third has no employment status
func rawTable(seqids ...float64) *model.Table {
	if len(seqids) == 0 {
		seqids = []float64{1, 2, 3, 4, 5}
	}
	t := model.NewTable("prgusap1", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "GENDER_R", Kind: model.KindNumber},
		{Name: "C_D05", Kind: model.KindNumber},
		{Name: "PVLIT1", Kind: model.KindNumber},
		{Name: "PVLIT2", Kind: model.KindNumber},
		{Name: "PVNUM1", Kind: model.KindNumber},
		{Name: "CNTRYID", Kind: model.KindText},
	})
	for i, id := range seqids {
		status := model.Number(float64(i%3 + 1))
		if i == 2 {
			status = model.Null()
		}
		t.AppendRow([]model.Value{
			model.Number(id),
			model.Number(float64(i%2 + 1)),
			status,
			model.Number(250 + float64(i)*10),
			model.Number(255 + float64(i)*10),
			model.Number(240 + float64(i)*5),
			model.Text("840"),
		})
	}
	return t
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Study:         testStudy(),
		KeyColumn:     "SEQID",
		OutputDir:     t.TempDir(),
		WriteWorkbook: true,
		StdDDOF:       1,
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, raw *model.Table, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(cfg, zap.NewNop(), append([]Option{WithSource(tableSource{raw})}, opts...)...)
	require.NoError(t, err)
	return p
}

func summaryCount(t *testing.T, res *Result, column string, cleaned bool) int {
	t.Helper()
	s := res.RawSummary
	if cleaned {
		s = res.CleanedSummary
	}
	n, ok := s.Get("count", column)
	require.True(t, ok, column)
	return int(n)
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, rawTable())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "memory:prgusap1", res.Input)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, []string{"SEQID", "GENDER_R", "C_D05"}, res.Groups[0].ColumnNames())

	assert.Equal(t, "bkg_cleaned", res.BackgroundCleaned.Name)
	assert.Equal(t, 4, res.BackgroundCleaned.NumRows())

	assert.Equal(t, "bkg_lit_num_raw", res.Joined.Name)
	assert.Equal(t, 5, res.Joined.NumRows())
	assert.Equal(t, []string{"SEQID", "GENDER_R", "C_D05", "PVLIT1", "PVLIT2", "PVNUM1"}, res.Joined.ColumnNames())

	assert.Equal(t, "bkg_lit_num_cleaned", res.Cleaned.Name)
	assert.Equal(t, 4, res.Cleaned.NumRows())
	assert.Equal(t, []string{"3"}, res.CleanReport.DroppedKeys)

	assert.Equal(t, 5, summaryCount(t, res, "SEQID", false))
	assert.Equal(t, 4, summaryCount(t, res, "C_D05", false))
	for _, col := range res.Cleaned.ColumnNames() {
		assert.Equal(t, 4, summaryCount(t, res, col, true), col)
	}

	require.NotNil(t, res.Verification)
	assert.True(t, res.Verification.Passed())

	for _, name := range []string{"Table1_Raw_Data.csv", "Table2_Cleaned_Data.csv", "bkg_cleaned.csv", "bkg_lit_num_cleaned.csv", WorkbookFile} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, res.Metrics.Outputs, 5)

	f, err := excelize.OpenFile(filepath.Join(cfg.OutputDir, WorkbookFile))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{RawSummaryName, CleanedSummaryName, MissingSheet}, f.GetSheetList())

	assert.Len(t, res.Metrics.Stages, 10)
	sm, ok := res.Metrics.Stage(StageCleanJoint)
	require.True(t, ok)
	assert.Equal(t, 5, sm.RowsIn)
	assert.Equal(t, 4, sm.RowsOut)
	assert.Equal(t, 1, res.Metrics.RowsDropped)
}

func TestRunDropsDeclaredMissingCodes(t *testing.T) {
	raw := rawTable()
	raw.Rows[4][2] = model.Number(9) // not stated

	res, err := newTestPipeline(t, testConfig(t), raw).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Cleaned.NumRows())
	assert.Equal(t, 3, summaryCount(t, res, "C_D05", false), "codes are not counted as values")

	// Keeping "not stated" answers leaves the coded row in place
	cfg := testConfig(t)
	cfg.MissingExclude = []string{"system_missing"}
	res, err = newTestPipeline(t, cfg, raw).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Cleaned.NumRows())
	assert.True(t, res.Verification.Passed())
}

func TestRunRejectsDuplicateKeys(t *testing.T) {
	raw := rawTable(1, 2, 3, 7, 7)

	_, err := newTestPipeline(t, testConfig(t), raw).Run(context.Background())
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageJoin, se.Stage)
	assert.Equal(t, ErrorCategoryKey, se.Category)
	assert.ErrorIs(t, err, frame.ErrKey)

	var dup *frame.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "7", dup.Value)
	assert.Equal(t, 2, dup.Count)
}

func TestRunManyToManyFanOut(t *testing.T) {
	cfg := testConfig(t)
	cfg.JoinCardinality = "many_to_many"

	res, err := newTestPipeline(t, cfg, rawTable(1, 2, 3, 7, 7)).Run(context.Background())
	require.NoError(t, err)

	// SEQID 7 appears twice in each of three groups: 2*2*2 joined rows
	assert.Equal(t, 3+8, res.Joined.NumRows())
	assert.Equal(t, 2+8, res.Cleaned.NumRows())
	assert.True(t, res.Verification.Passed())
}

func TestRunUnknownColumn(t *testing.T) {
	cfg := testConfig(t)
	cfg.Study.Groups[1].Columns = append(cfg.Study.Groups[1].Columns, "PVLIT3")

	_, err := newTestPipeline(t, cfg, rawTable()).Run(context.Background())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSelect, se.Stage)
	assert.Equal(t, ErrorCategorySchema, se.Category)
	assert.ErrorIs(t, err, frame.ErrSchema)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, testConfig(t), rawTable()).Run(ctx)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLoad, se.Stage)
	assert.Equal(t, ErrorCategoryCanceled, se.Category)
}

func TestRunWithoutOutputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = ""

	res, err := newTestPipeline(t, cfg, rawTable()).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Metrics.Outputs)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := &config.Config{Sink: &config.SinkConfig{Driver: "sqlite", DSN: ":memory:", BatchSize: 2}}
	s, err := store.Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunWithStore(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	p := newTestPipeline(t, testConfig(t), rawTable(), WithStore(st), WithRunID("run-1"))
	_, err := p.Run(ctx)
	require.NoError(t, err)

	run, err := st.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, 5, run.RowsRaw)
	assert.Equal(t, 5, run.RowsJoined)
	assert.Equal(t, 4, run.RowsCleaned)

	var count int
	require.NoError(t, st.DB().GetContext(ctx, &count, `SELECT COUNT(*) FROM "bkg_lit_num_cleaned"`))
	assert.Equal(t, 4, count)

	ops, err := st.CleaningLog(ctx, "run-1")
	require.NoError(t, err)
	require.NotEmpty(t, ops)
	tables := map[string]bool{}
	for _, op := range ops {
		assert.Equal(t, "3", op.RowIdentifier)
		tables[op.TableName] = true
	}
	assert.Equal(t, map[string]bool{"bkg_cleaned": true, "bkg_lit_num_cleaned": true}, tables)
}

func TestRunRecordsFailure(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	p := newTestPipeline(t, testConfig(t), rawTable(1, 2, 3, 7, 7), WithStore(st), WithRunID("run-dup"))
	_, err := p.Run(ctx)
	require.Error(t, err)

	run, err := st.Run(ctx, "run-dup")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.True(t, run.ErrorMessage.Valid)
	assert.Contains(t, run.ErrorMessage.String, "SEQID=7")
	assert.Equal(t, 5, run.RowsRaw)
	assert.Equal(t, 0, run.RowsCleaned)
}

func TestDescribe(t *testing.T) {
	s, err := newTestPipeline(t, testConfig(t), rawTable()).Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SEQID", "GENDER_R", "C_D05", "PVLIT1", "PVLIT2", "PVNUM1"}, s.Columns)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.JoinCardinality = "one_to_many"
	_, err = New(cfg, zap.NewNop(), WithSource(tableSource{rawTable()}))
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.MissingExclude = []string{"nope"}
	_, err = New(cfg, zap.NewNop(), WithSource(tableSource{rawTable()}))
	assert.Error(t, err)
}

func TestVerifier(t *testing.T) {
	policy := model.DefaultMissingPolicy()
	v := NewVerifier(policy, "SEQID", zap.NewNop())

	source := rawTable()
	cleaned := source.Clone()
	report := v.VerifyCleaned(source, cleaned, nil)
	assert.False(t, report.Passed())

	err := report.Err()
	var ve *VerificationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Failed, 1)
	assert.Equal(t, "no_missing_values", ve.Failed[0].Name)
	assert.Equal(t, ErrorCategoryValidation, CategorizeError(StageVerify, err))

	dup := rawTable(1, 1)
	report = v.VerifyCleaned(dup, dup, nil)
	assert.False(t, report.Passed())
	assert.Contains(t, report.Err().Error(), "unique_key")
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		err   error
		want  ErrorCategory
	}{
		{"nil", StageLoad, nil, ErrorCategoryNone},
		{"schema", StageSelect, fmt.Errorf("wrapped: %w", &frame.SchemaError{Table: "t", Column: "c"}), ErrorCategorySchema},
		{"key", StageJoin, &frame.KeyError{Table: "t", Key: "SEQID"}, ErrorCategoryKey},
		{"canceled", StageJoin, context.Canceled, ErrorCategoryCanceled},
		{"path", StageSelect, &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, ErrorCategoryIO},
		{"sink", StageSink, errors.New("boom"), ErrorCategorySink},
		{"export", StageExport, errors.New("boom"), ErrorCategoryIO},
		{"other", StageJoin, errors.New("boom"), ErrorCategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.stage, tt.err))
		})
	}
}

func TestStageError(t *testing.T) {
	inner := &frame.SchemaError{Table: "bkg", Column: "C_D05"}
	err := newStageError(StageSelect, inner)
	assert.Contains(t, err.Error(), "stage select failed [Schema]")
	assert.ErrorIs(t, err, frame.ErrSchema)

	// Already categorised errors are not wrapped twice
	assert.Same(t, err, newStageError(StageExport, fmt.Errorf("again: %w", err)))
}

func TestMetricsReport(t *testing.T) {
	res, err := newTestPipeline(t, testConfig(t), rawTable(), WithRunID("run-42")).Run(context.Background())
	require.NoError(t, err)

	report := res.Metrics.GenerateMetricsReport()
	assert.Contains(t, report, "run-42")
	assert.Contains(t, report, "clean_joint")
	assert.Contains(t, report, "bkg_lit_num_cleaned")

	data, err := res.Metrics.ToJSON()
	require.NoError(t, err)
	var decoded struct {
		RunID       string `json:"runId"`
		RowsDropped int    `json:"rowsDropped"`
		Stages      []struct {
			Stage string `json:"stage"`
		} `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-42", decoded.RunID)
	assert.Equal(t, 1, decoded.RowsDropped)
	assert.Equal(t, "load", decoded.Stages[0].Stage)
}

func TestMissingTable(t *testing.T) {
	res, err := newTestPipeline(t, testConfig(t), rawTable()).Run(context.Background())
	require.NoError(t, err)

	tbl := MissingTable("missing", res.CleanReport)
	assert.Equal(t, "column", tbl.Columns[0].Name)
	assert.Equal(t, res.Joined.NumCols(), tbl.NumRows())

	idx := tbl.ColumnIndex("system_missing")
	for _, row := range tbl.Rows {
		want := 0.0
		if row[0].Text == "C_D05" {
			want = 1
		}
		assert.Equal(t, want, row[idx].Num, row[0].Text)
	}
}
