package logging

import "time"

// #region outcome-entry
// OutcomeEntry is a single row in the outcome_log table: one scored decode
// attempt of one image at one rotation.
type OutcomeEntry struct {
	RunID     string
	Image     string
	Rotation  float64
	TryHarder bool
	Outcome   string // "matched" | "misread" | "not_detected"
	Detail    string
	CreatedAt time.Time
}
// #endregion outcome-entry
