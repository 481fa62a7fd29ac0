package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"flexfetch/internal/model"
	"flexfetch/internal/poll"
	"flexfetch/internal/store"
)

type FetchOptions struct {
	ReferenceCode string
	OutputPath    string
	OutputDir     string
	PollInterval  time.Duration
	MaxAttempts   int
	Progress      func(format string, args ...any)
	Sleep         func(ctx context.Context, d time.Duration) error
}

type FetchReport struct {
	ReferenceCode string `json:"reference_code"`
	QueryID       string `json:"query_id,omitempty"`
	Status        string `json:"status"`
	OutputPath    string `json:"output_path,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Error         string `json:"error,omitempty"`
}

// FetchByReference resumes a previously submitted request. The reference
// code usually comes from an exhausted earlier run; when history still
// knows which query it belonged to, the outcome is recorded against it.
func FetchByReference(ctx context.Context, st *store.Store, client Client, opts FetchOptions) (FetchReport, error) {
	reference := strings.TrimSpace(opts.ReferenceCode)
	if reference == "" {
		return FetchReport{}, fmt.Errorf("reference code is required")
	}
	report := FetchReport{ReferenceCode: reference}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, ...any) {}
	}

	queryID, known, err := st.QueryForReference(reference)
	if err != nil {
		return report, err
	}
	if known {
		report.QueryID = queryID
		progress("resuming reference %s for query %s\n", reference, queryID)
	} else {
		progress("resuming reference %s\n", reference)
	}

	loop := poll.New(client, poll.Options{
		Interval:    opts.PollInterval,
		MaxAttempts: opts.MaxAttempts,
		Sleep:       opts.Sleep,
		OnAttempt: func(attempt, max int) {
			progress("  attempt %d/%d...\n", attempt, max)
		},
	})
	outcome, err := loop.Run(ctx, reference)
	if err != nil {
		return report, err
	}
	report.Attempts = outcome.Attempts

	switch outcome.State {
	case model.StateSucceeded:
		path := strings.TrimSpace(opts.OutputPath)
		if path == "" {
			dir := strings.TrimSpace(opts.OutputDir)
			if dir == "" {
				dir = "."
			}
			path = filepath.Join(dir, fmt.Sprintf("statement_%s_%s.xml", reference, time.Now().Format("20060102")))
		}
		if err := writeStatement(path, outcome.Body); err != nil {
			report.Status = StatusFailed
			report.Error = err.Error()
			return report, nil
		}
		report.Status = StatusDownloaded
		report.OutputPath = path
		progress("  saved to %s\n", path)
		if known {
			recordOutcome(st, queryID, reference, model.OutcomeSuccess, path, progress)
		}
	case model.StateExhausted:
		report.Status = StatusExhausted
		report.Error = fmt.Sprintf("statement not ready after %d attempts", outcome.Attempts)
		progress("  gave up after %d attempts; the reference may still become ready\n", outcome.Attempts)
	case model.StateFailed:
		report.Status = StatusFailed
		report.Error = outcome.Reason.Error()
		progress("  failed: %v\n", outcome.Reason)
		if known {
			recordOutcome(st, queryID, reference, model.OutcomeFailure, report.Error, progress)
		}
	}
	return report, nil
}

func recordOutcome(st *store.Store, queryID, reference, outcome, detail string, progress func(string, ...any)) {
	err := st.RecordDownload(model.DownloadRecord{
		QueryID: queryID, ReferenceCode: reference,
		Outcome: outcome, Detail: detail,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		progress("  warning: history write failed: %v\n", err)
	}
}
