// pkg/pipeline/verifier.go
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/frame"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/stats"
)

// Check is the outcome of one verification
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// VerificationReport contains the results of a cleaned table verification
type VerificationReport struct {
	Table            string
	VerificationTime time.Time
	Checks           []Check
	Duration         time.Duration
}

// Passed reports whether every check passed
func (r *VerificationReport) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Err returns a *VerificationError listing the failed checks, or nil
func (r *VerificationReport) Err() error {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &VerificationError{Table: r.Table, Failed: failed}
}

func (r *VerificationReport) add(name string, passed bool, format string, args ...interface{}) {
	c := Check{Name: name, Passed: passed}
	if !passed {
		c.Detail = fmt.Sprintf(format, args...)
	}
	r.Checks = append(r.Checks, c)
}

// Verifier re-checks the invariants of a cleaned table
type Verifier struct {
	policy model.MissingPolicy
	key    string
	logger *zap.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(policy model.MissingPolicy, key string, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{policy: policy, key: key, logger: logger.Named("verifier")}
}

// VerifyCleaned checks cleaned against the table it was derived from and,
// when given, the summary computed from it
func (v *Verifier) VerifyCleaned(source, cleaned *model.Table, summary *stats.Summary) *VerificationReport {
	start := time.Now()
	report := &VerificationReport{Table: cleaned.Name, VerificationTime: start}

	missing := 0
	for _, row := range cleaned.Rows {
		for i, c := range cleaned.Columns {
			if v.policy.IsMissing(c, row[i]) {
				missing++
			}
		}
	}
	report.add("no_missing_values", missing == 0, "%d missing cells remain", missing)

	report.add("row_count", cleaned.NumRows() <= source.NumRows(),
		"%d rows after cleaning, %d before", cleaned.NumRows(), source.NumRows())

	report.add("columns_preserved", sameColumns(source, cleaned),
		"columns %v differ from %v", cleaned.ColumnNames(), source.ColumnNames())

	if v.key != "" {
		err := frame.CheckUniqueKey(cleaned, v.key)
		report.add("unique_key", err == nil, "%v", err)
	}

	if summary != nil {
		bad := ""
		for _, col := range summary.Columns {
			if n, ok := summary.Get("count", col); ok && int(n) != cleaned.NumRows() {
				bad = fmt.Sprintf("count of %s is %d, table has %d rows", col, int(n), cleaned.NumRows())
				break
			}
		}
		report.add("summary_counts", bad == "", "%s", bad)
	}

	report.Duration = time.Since(start)
	v.logger.Info("Verification complete",
		zap.String("table", report.Table),
		zap.Int("checks", len(report.Checks)),
		zap.Bool("passed", report.Passed()),
		zap.Duration("duration", report.Duration))
	return report
}

func sameColumns(a, b *model.Table) bool {
	if a.NumCols() != b.NumCols() {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name {
			return false
		}
	}
	return true
}
