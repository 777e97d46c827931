// pkg/pipeline/error.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/frame"
)

// ErrorCategory classifies a failed stage
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategorySchema
	ErrorCategoryKey
	ErrorCategoryValidation
	ErrorCategoryIO
	ErrorCategorySink
	ErrorCategoryCanceled
	ErrorCategoryInternal
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategorySchema:
		return "Schema"
	case ErrorCategoryKey:
		return "Key"
	case ErrorCategoryValidation:
		return "Validation"
	case ErrorCategoryIO:
		return "IO"
	case ErrorCategorySink:
		return "Sink"
	case ErrorCategoryCanceled:
		return "Canceled"
	case ErrorCategoryInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// MarshalText renders the category in JSON reports
func (ec ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(ec.String()), nil
}

// StageError wraps the error that stopped a pipeline run
type StageError struct {
	Stage    Stage
	Category ErrorCategory
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed [%s]: %v", e.Stage, e.Category, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// newStageError categorises err in the context of stage
func newStageError(stage Stage, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Category: CategorizeError(stage, err), Err: err}
}

// VerificationError lists the checks a cleaned table failed
type VerificationError struct {
	Table  string
	Failed []Check
}

func (e *VerificationError) Error() string {
	names := make([]string, len(e.Failed))
	for i, c := range e.Failed {
		names[i] = c.Name
		if c.Detail != "" {
			names[i] += " (" + c.Detail + ")"
		}
	}
	return fmt.Sprintf("verification of %s failed: %s", e.Table, strings.Join(names, "; "))
}

// CategorizeError determines the category of an error raised by stage.
// Typed errors win; otherwise the stage decides.
func CategorizeError(stage Stage, err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var (
		pathErr   *fs.PathError
		verifyErr *VerificationError
	)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryCanceled
	case errors.Is(err, frame.ErrSchema):
		return ErrorCategorySchema
	case errors.Is(err, frame.ErrKey):
		return ErrorCategoryKey
	case errors.As(err, &verifyErr):
		return ErrorCategoryValidation
	case errors.As(err, &pathErr):
		return ErrorCategoryIO
	}

	switch stage {
	case StageSink:
		return ErrorCategorySink
	case StageLoad, StageExport:
		return ErrorCategoryIO
	case StageVerify:
		return ErrorCategoryValidation
	default:
		return ErrorCategoryInternal
	}
}

// logStageError logs a failure with the fields used across the pipeline
func logStageError(logger *zap.Logger, runID string, err *StageError) {
	logger.Error("Pipeline stage failed",
		zap.String("run_id", runID),
		zap.String("stage", string(err.Stage)),
		zap.String("category", err.Category.String()),
		zap.Error(err.Err))
}
