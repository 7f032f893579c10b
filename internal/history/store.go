package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/logging"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/scoring"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/threshold"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	suite           TEXT NOT NULL,
	format          TEXT NOT NULL,
	test_base       TEXT NOT NULL,
	thresholds_json TEXT NOT NULL,
	status          TEXT NOT NULL,
	error           TEXT,
	images          INTEGER NOT NULL DEFAULT 0,
	report_json     TEXT,
	started_at      TEXT NOT NULL,
	finished_at     TEXT
);

CREATE TABLE IF NOT EXISTS rotation_results (
	run_id             TEXT NOT NULL,
	idx                INTEGER NOT NULL,
	rotation           REAL NOT NULL,
	passed             INTEGER NOT NULL,
	misread            INTEGER NOT NULL,
	try_harder_passed  INTEGER NOT NULL,
	try_harder_misread INTEGER NOT NULL,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS outcome_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	image      TEXT NOT NULL,
	rotation   REAL NOT NULL,
	try_harder INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	detail     TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite, started_at);
`
// #endregion schema

// #region store-struct
// Store records black-box runs in SQLite. It satisfies blackbox.Recorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection, so the per-connection foreign_keys pragma always applies.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region recorder
// BeginRun inserts a running row and returns its ID.
func (s *Store) BeginRun(ctx context.Context, suite string, format decode.BarcodeFormat, testBase string, thresholds []threshold.RotationThreshold) (string, error) {
	thJSON, err := json.Marshal(thresholds)
	if err != nil {
		return "", fmt.Errorf("marshal thresholds: %w", err)
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, suite, format, test_base, thresholds_json, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, suite, string(format), testBase, string(thJSON), string(StatusRunning), s.now().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordAttempt appends one scored attempt to the outcome log.
func (s *Store) RecordAttempt(ctx context.Context, runID string, a scoring.Attempt) error {
	return logging.LogOutcome(ctx, s.db, logging.OutcomeEntry{
		RunID:     runID,
		Image:     a.Image,
		Rotation:  a.Rotation,
		TryHarder: a.TryHarder,
		Outcome:   a.Outcome.String(),
		Detail:    a.Detail,
		CreatedAt: s.now(),
	})
}

// FinishRun stores the report and per-rotation counters atomically.
func (s *Store) FinishRun(ctx context.Context, runID string, report threshold.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	status := StatusPassed
	if !report.Passed() {
		status = StatusFailed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, images = ?, report_json = ?, finished_at = ? WHERE run_id = ?`,
		string(status), report.TotalImages, string(reportJSON), s.now().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}

	for i, rs := range report.Rotations {
		c := rs.Counters
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rotation_results (run_id, idx, rotation, passed, misread, try_harder_passed, try_harder_misread)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, i, rs.Threshold.Rotation, c.Passed, c.Misread, c.TryHarderPassed, c.TryHarderMisread,
		)
		if err != nil {
			return fmt.Errorf("insert rotation result: %w", err)
		}
	}

	return tx.Commit()
}

// AbortRun marks a run as aborted with the error that stopped it.
func (s *Store) AbortRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		string(StatusAborted), msg, s.now().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("abort run: %w", err)
	}
	return nil
}
// #endregion recorder

// #region queries
const runColumns = `run_id, suite, format, test_base, thresholds_json, status, error, images, report_json, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var thJSON, status, startedStr string
	var errMsg, reportJSON, finishedStr sql.NullString

	if err := row.Scan(&rec.RunID, &rec.Suite, &rec.Format, &rec.TestBase, &thJSON, &status,
		&errMsg, &rec.Images, &reportJSON, &startedStr, &finishedStr); err != nil {
		return RunRecord{}, err
	}
	rec.Status = Status(status)
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	if err := json.Unmarshal([]byte(thJSON), &rec.Thresholds); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	if reportJSON.Valid {
		var r threshold.Report
		if err := json.Unmarshal([]byte(reportJSON.String), &r); err != nil {
			return RunRecord{}, fmt.Errorf("unmarshal report: %w", err)
		}
		rec.Report = &r
	}
	rec.StartedAt, _ = time.Parse(timeLayout, startedStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(timeLayout, finishedStr.String)
	}
	return rec, nil
}

// GetRun retrieves one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, ErrNoRuns)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first. An empty suite lists every suite.
func (s *Store) ListRuns(ctx context.Context, suite string, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE (? = '' OR suite = ?)
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`, suite, suite, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PreviousRun returns the newest finished (passed or failed) run of the same
// suite that started before runID.
func (s *Store) PreviousRun(ctx context.Context, runID string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE suite = (SELECT suite FROM runs WHERE run_id = ?)
		   AND started_at < (SELECT started_at FROM runs WHERE run_id = ?)
		   AND status IN (?, ?)
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		runID, runID, string(StatusPassed), string(StatusFailed),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run before %s: %w", runID, ErrNoRuns)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("run before %s: %w", runID, err)
	}
	return rec, nil
}

// RotationResults returns a finished run's counters in declaration order.
func (s *Store) RotationResults(ctx context.Context, runID string) ([]RotationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rotation, passed, misread, try_harder_passed, try_harder_misread
		 FROM rotation_results WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("rotation results: %w", err)
	}
	defer rows.Close()

	var out []RotationResult
	for rows.Next() {
		var r RotationResult
		c := &r.Counters
		if err := rows.Scan(&r.Rotation, &c.Passed, &c.Misread, &c.TryHarderPassed, &c.TryHarderMisread); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcomes returns a run's attempt log in insertion order, optionally
// limited to one outcome ("" for all).
func (s *Store) Outcomes(ctx context.Context, runID, outcome string) ([]logging.OutcomeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, image, rotation, try_harder, outcome, detail, created_at
		 FROM outcome_log WHERE run_id = ? AND (? = '' OR outcome = ?) ORDER BY id`,
		runID, outcome, outcome,
	)
	if err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	defer rows.Close()

	var out []logging.OutcomeEntry
	for rows.Next() {
		var e logging.OutcomeEntry
		var tryHarder int
		var detail sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &e.Image, &e.Rotation, &tryHarder, &e.Outcome, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.TryHarder = tryHarder != 0
		if detail.Valid {
			e.Detail = detail.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion queries
