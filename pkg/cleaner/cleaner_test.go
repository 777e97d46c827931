package cleaner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

var notStated = map[float64]model.MissingReason{9: model.ReasonNotStated, 6: model.ReasonValidSkip}

// background returns five participants; the third has no employment status
func background() *model.Table {
	t := model.NewTable("bkg", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "GENDER_R", Kind: model.KindNumber},
		{Name: "C_D05", Kind: model.KindNumber, MissingCodes: notStated},
	})
	for i := 1; i <= 5; i++ {
		status := model.Number(float64(i%3 + 1))
		if i == 3 {
			status = model.Null()
		}
		t.AppendRow([]model.Value{model.Number(float64(i)), model.Number(float64(i%2 + 1)), status})
	}
	return t
}

type recorder struct {
	ops []model.CleaningOperation
	err error
}

func (r *recorder) RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) error {
	r.ops = append(r.ops, operations...)
	return r.err
}

func TestDropIncomplete(t *testing.T) {
	policy := model.DefaultMissingPolicy()
	src := background()

	out, report := DropIncomplete(src, policy)
	assert.Equal(t, 4, out.NumRows())
	assert.False(t, HasMissing(out, policy))
	assert.Equal(t, 5, report.RowsIn)
	assert.Equal(t, 4, report.RowsOut)
	assert.Equal(t, 1, report.RowsDropped())
	assert.Equal(t, []string{"#2"}, report.DroppedKeys, "row position without a key column")
	assert.Equal(t, 5, src.NumRows(), "input is not modified")

	require.Len(t, report.Operations, 1)
	op := report.Operations[0]
	assert.Equal(t, "C_D05", op.ColumnName)
	assert.Equal(t, "system_missing", op.Reason)
	assert.Nil(t, op.OriginalValue)
	assert.Equal(t, model.OperationListwiseDeletion, op.Operation)
}

func TestDropIncompleteIdempotent(t *testing.T) {
	policy := model.DefaultMissingPolicy()
	src := background()
	src.Rows[4][2] = model.Number(9)

	once, _ := DropIncomplete(src, policy)
	twice, report := DropIncomplete(once, policy)
	assert.Equal(t, once.Rows, twice.Rows)
	assert.Equal(t, 3, twice.NumRows())
	assert.Equal(t, 0, report.RowsDropped())
}

func TestDropIncompleteWithoutMissing(t *testing.T) {
	policy := model.DefaultMissingPolicy()
	complete, _ := DropIncomplete(background(), policy)

	out, report := DropIncomplete(complete, policy)
	assert.Equal(t, complete.NumRows(), out.NumRows(), "row count is equal iff nothing is missing")
	assert.Empty(t, report.DroppedKeys)
	assert.Empty(t, report.Operations)
}

func TestDropIncompleteKeepsIncludedReasons(t *testing.T) {
	src := background()
	src.Rows[0][2] = model.Number(6) // valid skip
	src.Rows[1][2] = model.Number(9) // not stated

	policy := model.DefaultMissingPolicy().WithExclude(model.ReasonNotStated)
	out, report := DropIncomplete(src, policy)

	// system missing and not stated rows go, the valid skip stays
	assert.Equal(t, 3, out.NumRows())
	assert.Equal(t, 6.0, out.Rows[0][2].Num)
	assert.Equal(t, []string{"#1", "#2"}, report.DroppedKeys)

	// the overview still counts every classified cell
	byColumn := report.MissingByColumn()
	require.Len(t, byColumn, 3)
	assert.Equal(t, "C_D05", byColumn[2].Column)
	assert.Equal(t, 3, byColumn[2].Total)
	assert.Equal(t, 1, byColumn[2].ByReason[model.ReasonValidSkip])
	assert.Equal(t, 0, byColumn[0].Total)
}

func TestDataCleanerClean(t *testing.T) {
	rec := &recorder{}
	c, err := NewDataCleaner(zap.NewNop(), model.DefaultMissingPolicy(), WithKeyColumn("SEQID"), WithRecorder(rec))
	require.NoError(t, err)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	out, report, err := c.Clean(context.Background(), "run-1", background(), "")
	require.NoError(t, err)
	assert.Equal(t, "bkg_cleaned", out.Name)
	assert.Equal(t, "bkg_cleaned", report.Table)
	assert.Equal(t, 4, out.NumRows())
	require.NoError(t, c.ValidateComplete(out))

	require.Len(t, rec.ops, 1)
	assert.Equal(t, "run-1", rec.ops[0].RunID)
	assert.Equal(t, "bkg_cleaned", rec.ops[0].TableName)
	assert.Equal(t, "3", rec.ops[0].RowIdentifier)
	assert.Equal(t, fixed, rec.ops[0].CleanedAt)
}

func TestDataCleanerRowPositionWithoutKey(t *testing.T) {
	c, err := NewDataCleaner(zap.NewNop(), model.DefaultMissingPolicy())
	require.NoError(t, err)

	_, report, err := c.Clean(context.Background(), "run-2", background(), "joint")
	require.NoError(t, err)
	assert.Equal(t, []string{"#2"}, report.DroppedKeys)
}

func TestDataCleanerRecorderFailure(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	c, err := NewDataCleaner(zap.NewNop(), model.DefaultMissingPolicy(), WithRecorder(rec))
	require.NoError(t, err)

	out, _, err := c.Clean(context.Background(), "run-3", background(), "")
	assert.ErrorContains(t, err, "disk full")
	assert.NotNil(t, out)
}

func TestDataCleanerValidation(t *testing.T) {
	_, err := NewDataCleaner(nil, model.DefaultMissingPolicy())
	assert.Error(t, err)

	c, err := NewDataCleaner(zap.NewNop(), model.DefaultMissingPolicy())
	require.NoError(t, err)
	_, _, err = c.Clean(context.Background(), "run", nil, "")
	assert.Error(t, err)

	assert.ErrorContains(t, c.ValidateComplete(background()), "C_D05")
}
