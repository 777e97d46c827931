// pkg/cleaner/operations.go
package cleaner

import (
	"sort"
	"strconv"
	"time"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Report summarises a listwise deletion pass
type Report struct {
	Table        string
	RowsIn       int
	RowsOut      int
	DroppedKeys  []string
	Missing      map[string]map[model.MissingReason]int
	Operations   []model.CleaningOperation
	ColumnsOrder []string
}

// RowsDropped returns the number of removed rows
func (r *Report) RowsDropped() int {
	return r.RowsIn - r.RowsOut
}

// MissingByColumn returns the total missing count per column, in column order
func (r *Report) MissingByColumn() []ColumnMissing {
	out := make([]ColumnMissing, 0, len(r.ColumnsOrder))
	for _, name := range r.ColumnsOrder {
		cm := ColumnMissing{Column: name, ByReason: r.Missing[name]}
		for _, n := range cm.ByReason {
			cm.Total += n
		}
		out = append(out, cm)
	}
	return out
}

// ColumnMissing is one line of the missing-value overview
type ColumnMissing struct {
	Column   string
	Total    int
	ByReason map[model.MissingReason]int
}

// DropIncomplete removes every row holding at least one cell the policy
// treats as missing. The input is not modified; the output rows are
// contiguous and contain no missing cells.
func DropIncomplete(t *model.Table, policy model.MissingPolicy) (*model.Table, *Report) {
	return dropIncomplete(t, policy, model.CleaningContext{TableName: t.Name}, time.Now)
}

func dropIncomplete(
	t *model.Table,
	policy model.MissingPolicy,
	cctx model.CleaningContext,
	now func() time.Time,
) (*model.Table, *Report) {
	report := &Report{
		Table:        t.Name,
		RowsIn:       t.NumRows(),
		Missing:      MissingCounts(t, policy),
		ColumnsOrder: t.ColumnNames(),
	}

	keyIdx := -1
	if cctx.KeyColumn != "" {
		keyIdx = t.ColumnIndex(cctx.KeyColumn)
	}

	out := model.NewTable(t.Name, t.Columns)
	out.Rows = make([][]model.Value, 0, t.NumRows())
	for r, row := range t.Rows {
		col, reason, found := firstMissing(t.Columns, row, policy)
		if !found {
			out.Rows = append(out.Rows, row)
			continue
		}

		rowID := rowIdentifier(t, row, keyIdx, r)
		report.DroppedKeys = append(report.DroppedKeys, rowID)
		report.Operations = append(report.Operations, model.CleaningOperation{
			RunID:         cctx.RunID,
			TableName:     cctx.TableName,
			ColumnName:    t.Columns[col].Name,
			OriginalValue: originalValue(t.Columns[col], row[col]),
			RowIdentifier: rowID,
			Operation:     model.OperationListwiseDeletion,
			Reason:        reason.String(),
			CleanedAt:     now(),
		})
	}
	report.RowsOut = out.NumRows()
	return out, report
}

// MissingCounts counts missing cells per column and reason, regardless of
// which reasons the policy excludes
func MissingCounts(t *model.Table, policy model.MissingPolicy) map[string]map[model.MissingReason]int {
	counts := make(map[string]map[model.MissingReason]int, t.NumCols())
	for _, c := range t.Columns {
		counts[c.Name] = map[model.MissingReason]int{}
	}
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			if reason, ok := policy.Classify(c, row[i]); ok {
				counts[c.Name][reason]++
			}
		}
	}
	return counts
}

// HasMissing reports whether any cell of t is missing under the policy
func HasMissing(t *model.Table, policy model.MissingPolicy) bool {
	for _, row := range t.Rows {
		if _, _, found := firstMissing(t.Columns, row, policy); found {
			return true
		}
	}
	return false
}

// SortedDroppedKeys returns the dropped row identifiers in lexical order
func (r *Report) SortedDroppedKeys() []string {
	keys := append([]string(nil), r.DroppedKeys...)
	sort.Strings(keys)
	return keys
}

// Helper functions

func firstMissing(cols []model.Column, row []model.Value, policy model.MissingPolicy) (int, model.MissingReason, bool) {
	for i, c := range cols {
		if !policy.IsMissing(c, row[i]) {
			continue
		}
		reason, _ := policy.Classify(c, row[i])
		return i, reason, true
	}
	return -1, 0, false
}

func rowIdentifier(t *model.Table, row []model.Value, keyIdx, rowNum int) string {
	if keyIdx >= 0 && !row[keyIdx].Null {
		return row[keyIdx].Key(t.Columns[keyIdx].Kind)
	}
	// fall back to the 0-based row position
	return "#" + strconv.Itoa(rowNum)
}

// originalValue keeps declared codes for the audit trail; system-missing is nil
func originalValue(col model.Column, v model.Value) interface{} {
	if v.Null {
		return nil
	}
	if col.Kind == model.KindText {
		return v.Text
	}
	return v.Num
}
