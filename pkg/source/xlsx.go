// pkg/source/xlsx.go
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// XLSXSource reads one sheet of a workbook export
type XLSXSource struct {
	path   string
	sheet  string
	logger *zap.Logger
	conv   *converter.TypeConverter
}

// NewXLSXSource creates a workbook source. An empty sheet selects the first one.
func NewXLSXSource(path, sheet string, logger *zap.Logger) *XLSXSource {
	return &XLSXSource{
		path:   path,
		sheet:  sheet,
		logger: logger.Named("xlsx-source"),
		conv:   converter.NewTypeConverter(logger),
	}
}

// Describe returns the file path and sheet
func (s *XLSXSource) Describe() string {
	if s.sheet == "" {
		return s.path
	}
	return s.path + "#" + s.sheet
}

// Load reads the sheet
func (s *XLSXSource) Load(ctx context.Context) (*model.Table, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	t, sheet, err := readWorkbook(f, s.sheet, tableName(s.path), s.conv)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded workbook",
		zap.String("path", s.path),
		zap.String("sheet", sheet),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()))
	return t, ctx.Err()
}

// ReadXLSX parses a workbook from r
func ReadXLSX(r io.Reader, sheet, name string, conv *converter.TypeConverter) (*model.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	t, _, err := readWorkbook(f, sheet, name, conv)
	return t, err
}

func readWorkbook(f *excelize.File, sheet, name string, conv *converter.TypeConverter) (*model.Table, string, error) {
	if conv == nil {
		conv = converter.NewTypeConverter(nil)
	}

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, "", fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, sheet, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, sheet, fmt.Errorf("sheet %s is empty", sheet)
	}

	t, err := parseRecords(rows[0], rows[1:], name, conv)
	if err != nil {
		return nil, sheet, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	return t, sheet, nil
}

// parseRecords builds a table from a header and string records. Short
// records are padded with empty cells, as spreadsheets omit trailing blanks.
func parseRecords(header []string, records [][]string, name string, conv *converter.TypeConverter) (*model.Table, error) {
	if conv == nil {
		conv = converter.NewTypeConverter(nil)
	}
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		if h == "" {
			return nil, fmt.Errorf("header cell %d is empty", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = true
	}
	for i, rec := range records {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+2, len(rec), len(header))
		}
	}

	cell := func(rec []string, j int) string {
		if j < len(rec) {
			return rec[j]
		}
		return ""
	}

	cols := make([]model.Column, len(header))
	for j, h := range header {
		samples := make([]string, len(records))
		for i, rec := range records {
			samples[i] = cell(rec, j)
		}
		cols[j] = model.Column{Name: h, Kind: conv.InferKind(samples)}
	}

	t := model.NewTable(name, cols)
	for i, rec := range records {
		row := make([]model.Value, len(cols))
		for j, col := range cols {
			v, err := conv.ParseValue(cell(rec, j), col.Kind)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", i+2, col.Name, err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
