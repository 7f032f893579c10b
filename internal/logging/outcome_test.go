package logging

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE outcome_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL,
		image      TEXT NOT NULL,
		rotation   REAL NOT NULL,
		try_harder INTEGER NOT NULL,
		outcome    TEXT NOT NULL,
		detail     TEXT,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-outcome-tests
func TestLogOutcome_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := OutcomeEntry{
		RunID:     "r1",
		Image:     "/fixtures/qrcode-1/1.png",
		Rotation:  90,
		TryHarder: true,
		Outcome:   "misread",
		Detail:    "content mismatch",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogOutcome(context.Background(), db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM outcome_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, outcome string
	var rotation float64
	var tryHarder int
	db.QueryRow("SELECT run_id, rotation, try_harder, outcome FROM outcome_log").Scan(&runID, &rotation, &tryHarder, &outcome)
	if runID != "r1" {
		t.Errorf("expected run_id 'r1', got %q", runID)
	}
	if rotation != 90 {
		t.Errorf("expected rotation 90, got %v", rotation)
	}
	if tryHarder != 1 {
		t.Errorf("expected try_harder 1, got %d", tryHarder)
	}
	if outcome != "misread" {
		t.Errorf("expected outcome 'misread', got %q", outcome)
	}
}

func TestLogOutcome_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogOutcome(context.Background(), db, OutcomeEntry{RunID: "r2", Image: "a.png", Outcome: "matched"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM outcome_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogOutcome_EmptyDetailIsNull(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	err := LogOutcome(context.Background(), db, OutcomeEntry{RunID: "r3", Image: "a.png", Outcome: "not_detected"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var detail sql.NullString
	db.QueryRow("SELECT detail FROM outcome_log").Scan(&detail)
	if detail.Valid {
		t.Error("expected NULL detail for empty string")
	}
}

func TestLogOutcome_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogOutcome(context.Background(), db, OutcomeEntry{RunID: "r4", Outcome: "matched"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-outcome-tests

// #region logger-tests
func TestNew_Levels(t *testing.T) {
	quiet, err := New(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quiet.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug disabled without verbose")
	}

	loud, err := New(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loud.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug enabled with verbose")
	}
}

// #endregion logger-tests

// #region helper-tests
func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("hello") != "hello" {
		t.Error("expected 'hello'")
	}
}

// #endregion helper-tests
