// pkg/model/cleaning.go
package model

import (
	"time"
)

// Cleaning operation names
const (
	OperationListwiseDeletion = "listwise_deletion"
)

// CleaningOperation represents a single data cleaning operation
type CleaningOperation struct {
	RunID         string      // Pipeline run that performed the cleaning
	TableName     string      // Table the row was removed from
	ColumnName    string      // First column that triggered the removal
	OriginalValue interface{} // Original value (nil for system-missing)
	RowIdentifier string      // Participant key of the removed row
	Operation     string      // Type of cleaning performed (e.g., "listwise_deletion")
	Reason        string      // Missing reason that triggered it (e.g., "valid_skip")
	CleanedAt     time.Time   // When the cleaning occurred
}

// CleaningContext contains information needed for cleaning a table
type CleaningContext struct {
	RunID     string
	TableName string
	KeyColumn string
}
