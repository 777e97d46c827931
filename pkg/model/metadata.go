// pkg/model/metadata.go
package model

import "strings"

// TableMetadata contains the structure information for a table
type TableMetadata struct {
	Schema  string   // Schema name (empty for file sources)
	Table   string   // Table name
	Columns []Column // Column definitions
	Key     string   // Participant key column, if known
}

// Column represents metadata about a survey variable
type Column struct {
	Name         string                    // Variable name (e.g. SEQID, PVLIT1)
	Kind         Kind                      // Storage class
	Label        string                    // Variable label from the codebook
	ValueLabels  map[float64]string        // Code -> label for categorical variables
	MissingCodes map[float64]MissingReason // Declared missing codes for this variable
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	normalizedName := normalizeColumnName(name)
	for i, col := range tm.Columns {
		if normalizeColumnName(col.Name) == normalizedName {
			return &tm.Columns[i]
		}
	}
	return nil
}

// IsKeyColumn reports whether the column is the participant key
func (tm *TableMetadata) IsKeyColumn(col *Column) bool {
	return tm.Key != "" && normalizeColumnName(col.Name) == normalizeColumnName(tm.Key)
}

// LabelFor returns the value label for a code, or an empty string
func (col *Column) LabelFor(code float64) string {
	if col.ValueLabels == nil {
		return ""
	}
	return col.ValueLabels[code]
}

// IsPlausibleValue checks if a column holds a plausible value draw
// based on the PV<domain><n> naming pattern
func (col *Column) IsPlausibleValue() bool {
	name := normalizeColumnName(col.Name)
	return strings.HasPrefix(name, "pv") && len(name) > 2 && hasDigitSuffix(name)
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func hasDigitSuffix(s string) bool {
	last := s[len(s)-1]
	return last >= '0' && last <= '9'
}
