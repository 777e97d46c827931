package export

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

func sampleSummary() *stats.Summary {
	return &stats.Summary{
		Name:       "bkg",
		Columns:    []string{"SEQID", "C_D05"},
		Statistics: []string{"count", "mean", "std"},
		Values: [][]float64{
			{4, 0},
			{2.5, math.NaN()},
			{1.2909944487358056, math.NaN()},
		},
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, sampleSummary()))

	want := ",SEQID,C_D05\n" +
		"count,4,0\n" +
		"mean,2.5,\n" +
		"std,1.2909944487358056,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTableCSV(t *testing.T) {
	table := model.NewTable("clusters", []model.Column{
		{Name: "SEQID", Kind: model.KindNumber},
		{Name: "label", Kind: model.KindText},
	})
	table.AppendRow([]model.Value{model.Number(1), model.Text("a,b")})
	table.AppendRow([]model.Value{model.Number(2.75), model.Null()})

	var buf bytes.Buffer
	require.NoError(t, WriteTableCSV(&buf, table))
	assert.Equal(t, "SEQID,label\n1,\"a,b\"\n2.75,\n", buf.String())
}

func TestWriteSummaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "Table1_Raw_Data.csv")
	require.NoError(t, WriteSummaryFile(path, sampleSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "count,4,0")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestWriteFileRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.csv")

	boom := errors.New("boom")
	err := writeFile(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptives.xlsx")

	table := model.NewTable("elbow", []model.Column{
		{Name: "k", Kind: model.KindNumber},
		{Name: "sse", Kind: model.KindNumber},
	})
	table.AppendRow([]model.Value{model.Number(1), model.Number(100)})
	table.AppendRow([]model.Value{model.Number(2), model.Null()})

	wb := NewWorkbook()
	defer wb.Close()
	require.NoError(t, wb.AddSummary("Table1_Raw_Data", sampleSummary()))
	require.NoError(t, wb.AddTable("a_sheet_name_that_is_far_too_long_for_excel", table))
	assert.Error(t, wb.AddSummary("Table1_Raw_Data", sampleSummary()))
	require.NoError(t, wb.SaveAs(path))

	assert.Equal(t, []string{"Table1_Raw_Data", "a_sheet_name_that_is_far_too_lo"}, wb.Sheets())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Table1_Raw_Data", "a_sheet_name_that_is_far_too_lo"}, f.GetSheetList())

	rows, err := f.GetRows("Table1_Raw_Data")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "SEQID", "C_D05"}, rows[0])
	assert.Equal(t, []string{"count", "4", "0"}, rows[1])
	assert.Equal(t, []string{"mean", "2.5"}, rows[2], "NaN cells are left blank")

	rows, err = f.GetRows("a_sheet_name_that_is_far_too_lo")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"k", "sse"}, {"1", "100"}, {"2"}}, rows)
}

func TestEmptyWorkbook(t *testing.T) {
	wb := NewWorkbook()
	defer wb.Close()
	assert.Error(t, wb.SaveAs(filepath.Join(t.TempDir(), "empty.xlsx")))
}
