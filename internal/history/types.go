package history

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/scoring"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/threshold"
)

// ErrNoRuns means no recorded run matched the query.
var ErrNoRuns = errors.New("no recorded runs")

// #region status
// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// #endregion status

// #region run-record
// RunRecord is one row of the runs table. Report is nil until the run finishes.
type RunRecord struct {
	RunID      string                        `json:"run_id"`
	Suite      string                        `json:"suite"`
	Format     string                        `json:"format"`
	TestBase   string                        `json:"test_base"`
	Status     Status                        `json:"status"`
	Error      string                        `json:"error,omitempty"`
	Images     int                           `json:"images"`
	Thresholds []threshold.RotationThreshold `json:"thresholds"`
	Report     *threshold.Report             `json:"report,omitempty"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at,omitempty"`
}
// #endregion run-record

// #region rotation-result
// RotationResult is the stored counters for one rotation of a finished run.
type RotationResult struct {
	Rotation float64          `json:"rotation"`
	Counters scoring.Counters `json:"counters"`
}
// #endregion rotation-result

// #region regression
// Regression is a counter that moved the wrong way between two runs.
type Regression struct {
	Rotation float64 `json:"rotation"`
	Field    string  `json:"field"` // "passed" | "misread" | "try_harder_passed" | "try_harder_misread"
	Before   int     `json:"before"`
	After    int     `json:"after"`
}
// #endregion regression
