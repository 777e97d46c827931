// pkg/export/workbook.go
package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

// maxSheetName is the Excel limit on sheet name length
const maxSheetName = 31

// Workbook collects tables into one spreadsheet, one sheet per table
type Workbook struct {
	f      *excelize.File
	sheets []string
}

// NewWorkbook creates an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile()}
}

// Sheets returns the sheet names in insertion order
func (wb *Workbook) Sheets() []string {
	return append([]string(nil), wb.sheets...)
}

// AddSummary adds a summary sheet in the describe() layout
func (wb *Workbook) AddSummary(sheet string, s *stats.Summary) error {
	rows := make([][]interface{}, 0, len(s.Statistics)+1)

	header := make([]interface{}, 0, len(s.Columns)+1)
	header = append(header, "")
	for _, c := range s.Columns {
		header = append(header, c)
	}
	rows = append(rows, header)

	for i, stat := range s.Statistics {
		row := make([]interface{}, 0, len(s.Columns)+1)
		row = append(row, stat)
		for _, v := range s.Values[i] {
			row = append(row, cellNumber(v))
		}
		rows = append(rows, row)
	}
	return wb.addSheet(sheet, rows)
}

// AddTable adds a table sheet with a header row
func (wb *Workbook) AddTable(sheet string, t *model.Table) error {
	rows := make([][]interface{}, 0, t.NumRows()+1)

	header := make([]interface{}, t.NumCols())
	for i, name := range t.ColumnNames() {
		header[i] = name
	}
	rows = append(rows, header)

	for _, r := range t.Rows {
		row := make([]interface{}, len(r))
		for j, v := range r {
			switch {
			case v.Null:
				row[j] = nil
			case t.Columns[j].Kind == model.KindNumber:
				row[j] = cellNumber(v.Num)
			default:
				row[j] = v.Text
			}
		}
		rows = append(rows, row)
	}
	return wb.addSheet(sheet, rows)
}

func (wb *Workbook) addSheet(sheet string, rows [][]interface{}) error {
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	for _, existing := range wb.sheets {
		if existing == sheet {
			return fmt.Errorf("sheet %q already exists", sheet)
		}
	}

	// A new file starts with Sheet1; the first table takes it over
	if len(wb.sheets) == 0 {
		if err := wb.f.SetSheetName(wb.f.GetSheetName(0), sheet); err != nil {
			return fmt.Errorf("failed to name sheet %s: %w", sheet, err)
		}
	} else if _, err := wb.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := wb.f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}

	wb.sheets = append(wb.sheets, sheet)
	return nil
}

// SaveAs writes the workbook to path
func (wb *Workbook) SaveAs(path string) error {
	if len(wb.sheets) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}
	return writeFile(path, func(w io.Writer) error {
		_, err := wb.f.WriteTo(w)
		return err
	})
}

// Close releases the workbook
func (wb *Workbook) Close() error {
	return wb.f.Close()
}

// cellNumber leaves undefined statistics blank; Excel has no NaN
func cellNumber(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
