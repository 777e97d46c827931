// pkg/export/csv.go
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/converter"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

// WriteSummaryCSV writes a descriptive summary in the describe() layout:
// a header of column names after an empty corner cell, then one row per
// statistic. Undefined statistics are written as empty cells.
func WriteSummaryCSV(w io.Writer, s *stats.Summary) error {
	cw := csv.NewWriter(w)

	header := append([]string{""}, s.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, stat := range s.Statistics {
		record := make([]string, 0, len(s.Columns)+1)
		record = append(record, stat)
		for _, v := range s.Values[i] {
			record = append(record, converter.FormatNumber(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummaryFile writes a summary to path
func WriteSummaryFile(path string, s *stats.Summary) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSummaryCSV(w, s)
	})
}

// WriteTableCSV writes a table with a header row. Missing cells are empty.
func WriteTableCSV(w io.Writer, t *model.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}

	record := make([]string, t.NumCols())
	for _, row := range t.Rows {
		for j, v := range row {
			record[j] = formatCell(t.Columns[j].Kind, v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTableFile writes a table to path
func WriteTableFile(path string, t *model.Table) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteTableCSV(w, t)
	})
}

func formatCell(kind model.Kind, v model.Value) string {
	if v.Null {
		return ""
	}
	if kind == model.KindNumber {
		return converter.FormatNumber(v.Num)
	}
	return v.Text
}

// writeFile writes through a temporary file in the target directory and
// renames it into place, so a failed write never leaves a partial file
func writeFile(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err = write(tmp); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
