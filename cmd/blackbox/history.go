package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/history"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/logging"
	"github.com/spf13/cobra"
)

// #region history-cmd

type historyOpts struct {
	db      string
	suite   string
	last    int
	runID   string
	outcome string
	jsonOut bool
}

func newHistoryCmd(a *app) *cobra.Command {
	o := &historyOpts{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `Lists recorded runs, newest first, or shows one run in detail with its
per-rotation counters, regressions against the previous run of the same
suite, and the attempts matching --outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.db
			if path == "" {
				path = a.cfg.History.Path
			}
			if path == "" {
				return fmt.Errorf("no history database (set history.path, BLACKBOX_DB or --db)")
			}
			store, err := history.NewStore(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if o.runID != "" {
				return runDetailMode(cmd.Context(), a.out, store, o)
			}
			return runListMode(cmd.Context(), a.out, store, o)
		},
	}
	cmd.Flags().StringVar(&o.db, "db", "", "history database (defaults to the configured one)")
	cmd.Flags().StringVar(&o.suite, "suite", "", "only runs of this suite")
	cmd.Flags().IntVar(&o.last, "last", 20, "show N most recent runs")
	cmd.Flags().StringVar(&o.runID, "run", "", "show a single run in detail")
	cmd.Flags().StringVar(&o.outcome, "outcome", "misread", "attempts to list in detail mode (matched, misread, not_detected, or empty for all)")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

// #endregion history-cmd

// #region list-mode

type listRow struct {
	RunID     string `json:"run_id"`
	Suite     string `json:"suite"`
	Status    string `json:"status"`
	Images    int    `json:"images"`
	Found     int    `json:"found"`
	Tests     int    `json:"tests"`
	Required  int    `json:"required"`
	StartedAt string `json:"started_at"`
}

func runListMode(ctx context.Context, w io.Writer, store *history.Store, o *historyOpts) error {
	runs, err := store.ListRuns(ctx, o.suite, o.last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		row := listRow{
			RunID:     r.RunID,
			Suite:     r.Suite,
			Status:    string(r.Status),
			Images:    r.Images,
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
		if r.Report != nil {
			row.Found = r.Report.TotalFound
			row.Tests = r.Report.TotalTests
			row.Required = r.Report.TotalMustPass
		}
		rows[i] = row
	}

	if o.jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-8s  %-20s  %-8s  %6s  %13s  %s\n", "Run", "Suite", "Status", "Images", "Found/Tests", "Started")
	fmt.Fprintf(w, "%-8s+-%-20s+-%-8s+-%6s+-%13s+-%s\n", "--------", "--------------------", "--------", "------", "-------------", "--------------------")
	for _, r := range rows {
		found := "-"
		if r.Tests > 0 {
			found = fmt.Sprintf("%d/%d", r.Found, r.Tests)
		}
		fmt.Fprintf(w, "%-8s  %-20s  %-8s  %6d  %13s  %s\n", shortID(r.RunID), r.Suite, r.Status, r.Images, found, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Run         history.RunRecord        `json:"run"`
	Rotations   []history.RotationResult `json:"rotations"`
	PreviousRun string                   `json:"previous_run,omitempty"`
	Regressions []history.Regression     `json:"regressions,omitempty"`
	Attempts    []attemptRow             `json:"attempts"`
}

type attemptRow struct {
	Image     string  `json:"image"`
	Rotation  float64 `json:"rotation"`
	TryHarder bool    `json:"try_harder"`
	Outcome   string  `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
}

func runDetailMode(ctx context.Context, w io.Writer, store *history.Store, o *historyOpts) error {
	rec, err := store.GetRun(ctx, o.runID)
	if err != nil {
		return err
	}
	rotations, err := store.RotationResults(ctx, rec.RunID)
	if err != nil {
		return err
	}
	entries, err := store.Outcomes(ctx, rec.RunID, o.outcome)
	if err != nil {
		return err
	}

	out := detailOutput{Run: rec, Rotations: rotations, Attempts: toAttemptRows(entries)}
	prev, err := store.PreviousRun(ctx, rec.RunID)
	switch {
	case err == nil:
		out.PreviousRun = prev.RunID
		out.Regressions, err = store.Compare(ctx, prev.RunID, rec.RunID)
		if err != nil {
			return err
		}
	case err != nil && !errors.Is(err, history.ErrNoRuns):
		return err
	}

	if o.jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run:      %s\n", rec.RunID)
	fmt.Fprintf(w, "Suite:    %s (%s)\n", rec.Suite, rec.Format)
	fmt.Fprintf(w, "Fixtures: %s\n", rec.TestBase)
	fmt.Fprintf(w, "Status:   %s\n", rec.Status)
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", rec.Error)
	}
	fmt.Fprintf(w, "Started:  %s\n", rec.StartedAt.Format("2006-01-02T15:04:05Z"))

	if rec.Report != nil {
		fmt.Fprintln(w)
		if err := rec.Report.Write(w); err != nil {
			return err
		}
	}

	if out.PreviousRun != "" {
		fmt.Fprintf(w, "\nCompared with %s:\n", shortID(out.PreviousRun))
		if len(out.Regressions) == 0 {
			fmt.Fprintln(w, "  no regressions")
		}
		for _, g := range out.Regressions {
			fmt.Fprintf(w, "  rotation %g: %s %d -> %d\n", g.Rotation, g.Field, g.Before, g.After)
		}
	}

	if len(out.Attempts) > 0 {
		fmt.Fprintf(w, "\nAttempts (%s):\n", outcomeLabel(o.outcome))
		for _, at := range out.Attempts {
			mode := "plain"
			if at.TryHarder {
				mode = "try-harder"
			}
			fmt.Fprintf(w, "  %-40s %6g  %-10s  %-12s  %s\n", at.Image, at.Rotation, mode, at.Outcome, at.Detail)
		}
	}
	return nil
}

func toAttemptRows(entries []logging.OutcomeEntry) []attemptRow {
	rows := make([]attemptRow, len(entries))
	for i, e := range entries {
		rows[i] = attemptRow{
			Image:     e.Image,
			Rotation:  e.Rotation,
			TryHarder: e.TryHarder,
			Outcome:   e.Outcome,
			Detail:    e.Detail,
		}
	}
	return rows
}

func outcomeLabel(o string) string {
	if o == "" {
		return "all"
	}
	return o
}

// #endregion detail-mode

// #region output

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
