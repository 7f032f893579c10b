package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region log-outcome
// LogOutcome writes an attempt to the outcome_log table.
func LogOutcome(ctx context.Context, db *sql.DB, entry OutcomeEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO outcome_log (run_id, image, rotation, try_harder, outcome, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Image,
		entry.Rotation,
		boolToInt(entry.TryHarder),
		entry.Outcome,
		nullIfEmpty(entry.Detail),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log outcome: %w", err)
	}
	return nil
}
// #endregion log-outcome

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
