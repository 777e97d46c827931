// pkg/source/csv.go
package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// CSVSource reads a comma-separated export of the public-use file
type CSVSource struct {
	path   string
	logger *zap.Logger
	conv   *converter.TypeConverter
}

// NewCSVSource creates a CSV source
func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	return &CSVSource{
		path:   path,
		logger: logger.Named("csv-source"),
		conv:   converter.NewTypeConverter(logger),
	}
}

// Describe returns the file path
func (s *CSVSource) Describe() string {
	return s.path
}

// Load reads the file
func (s *CSVSource) Load(ctx context.Context) (*model.Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f, tableName(s.path), s.conv)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded CSV",
		zap.String("path", s.path),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()))
	return t, ctx.Err()
}

// ReadCSV parses CSV with a header row. Columns whose values all parse as
// numbers become numeric; null tokens become system-missing cells.
func ReadCSV(r io.Reader, name string, conv *converter.TypeConverter) (*model.Table, error) {
	if conv == nil {
		conv = converter.NewTypeConverter(nil)
	}

	nanValues := append([]string{""}, conv.Config().NullTokens...)
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", df.Err)
	}

	return FromDataFrame(df, name)
}

// FromDataFrame converts a gota data frame into a table
func FromDataFrame(df dataframe.DataFrame, name string) (*model.Table, error) {
	names := df.Names()
	nrows, _ := df.Dims()

	cols := make([]model.Column, len(names))
	data := make([][]model.Value, len(names))
	for j, colName := range names {
		s := df.Col(colName)
		if s.Err != nil {
			return nil, fmt.Errorf("column %s: %w", colName, s.Err)
		}
		cols[j], data[j] = seriesValues(s)
	}

	t := model.NewTable(name, cols)
	t.Rows = make([][]model.Value, nrows)
	for i := 0; i < nrows; i++ {
		row := make([]model.Value, len(cols))
		for j := range cols {
			row[j] = data[j][i]
		}
		t.Rows[i] = row
	}
	return t, nil
}

func seriesValues(s series.Series) (model.Column, []model.Value) {
	nan := s.IsNaN()
	values := make([]model.Value, s.Len())

	switch s.Type() {
	case series.Int, series.Float, series.Bool:
		for i, f := range s.Float() {
			if nan[i] {
				values[i] = model.Null()
				continue
			}
			values[i] = model.Number(f)
		}
		return model.Column{Name: s.Name, Kind: model.KindNumber}, values
	default:
		for i, rec := range s.Records() {
			if nan[i] {
				values[i] = model.Null()
				continue
			}
			values[i] = model.Text(rec)
		}
		return model.Column{Name: s.Name, Kind: model.KindText}, values
	}
}
