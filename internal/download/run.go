// Package download is the orchestration core: it decides which queries are
// due, drives submit → poll → save → record for each, and aggregates a
// batch result. Queries are processed strictly sequentially; the service is
// addressed by one token with one rate budget, so parallelism buys nothing
// and risks throttling.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flexfetch/internal/flexws"
	"flexfetch/internal/model"
	"flexfetch/internal/poll"
	"flexfetch/internal/store"
)

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusRejected   = "rejected"
	StatusExhausted  = "exhausted"
	StatusFailed     = "failed"
)

type Client interface {
	Submit(ctx context.Context, queryID string) (string, error)
	Fetch(ctx context.Context, referenceCode string) (flexws.FetchResult, error)
}

type Options struct {
	// Query selects single-query mode; empty means all queries.
	Query string
	// Force bypasses the due-ness check.
	Force bool
	// OutputPath is an explicit destination file; single-query mode only.
	OutputPath string
	OutputDir  string

	PollInterval time.Duration
	MaxAttempts  int

	// Progress receives human status lines; nil means silent (JSON mode).
	Progress func(format string, args ...any)
	// Sleep overrides the poll wait, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

type QueryReport struct {
	QueryID       string `json:"query_id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	OutputPath    string `json:"output_path,omitempty"`
	ReferenceCode string `json:"reference_code,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Result struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Reports   []QueryReport `json:"reports"`
}

// Run executes one download pass. Individual query failures are collected
// in the result, never propagated; the error return is reserved for
// precondition failures and operator cancellation.
func Run(ctx context.Context, st *store.Store, client Client, opts Options) (Result, error) {
	queries, err := selectQueries(st, opts)
	if err != nil {
		return Result{}, err
	}
	if opts.OutputPath != "" && len(queries) > 1 {
		return Result{}, fmt.Errorf("--output cannot be used with multiple queries; use --output-dir")
	}

	result := Result{Reports: make([]QueryReport, 0, len(queries))}
	for _, q := range queries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		report := processQuery(ctx, st, client, q, opts)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Reports = append(result.Reports, report)
		switch report.Status {
		case StatusDownloaded:
			result.Processed++
			result.Succeeded++
		case StatusSkipped:
			result.Skipped++
		default:
			result.Processed++
			result.Failed++
		}
	}
	return result, nil
}

func selectQueries(st *store.Store, opts Options) ([]model.Query, error) {
	if strings.TrimSpace(opts.Query) != "" {
		q, err := st.GetQuery(strings.TrimSpace(opts.Query))
		if err != nil {
			return nil, err
		}
		return []model.Query{q}, nil
	}
	return st.ListQueries()
}

func processQuery(ctx context.Context, st *store.Store, client Client, q model.Query, opts Options) QueryReport {
	report := QueryReport{QueryID: q.ID, Name: q.Name}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, ...any) {}
	}

	progress("downloading %s (id %s)\n", q.DisplayName(), q.ID)

	if !opts.Force {
		lastSuccess, hasSuccess, err := st.LastSuccess(q.ID)
		if err != nil {
			report.Status = StatusFailed
			report.Error = err.Error()
			return report
		}
		if !model.IsDue(q, lastSuccess, hasSuccess, time.Now().UTC()) {
			report.Status = StatusSkipped
			progress("  skipped: downloaded within the last %s (use --force to download anyway)\n", formatInterval(q.EffectiveInterval()))
			return report
		}
	}

	handle, err := submitQuery(ctx, client, q)
	if err != nil {
		if ctx.Err() != nil {
			return report
		}
		var remote *flexws.RemoteError
		if errors.As(err, &remote) {
			report.Status = StatusRejected
		} else {
			report.Status = StatusFailed
		}
		report.Error = err.Error()
		progress("  request rejected: %v\n", err)
		recordFailure(st, q.ID, "", "request failed: "+err.Error(), progress)
		return report
	}
	reference := handle.ReferenceCode
	report.ReferenceCode = reference
	progress("  reference code %s\n", reference)

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
		// Cancellation or a broken state machine; nothing terminal to record.
		report.Status = StatusFailed
		report.Error = err.Error()
		return report
	}
	report.Attempts = outcome.Attempts

	switch outcome.State {
	case model.StateSucceeded:
		path, err := resolveOutputPath(opts, q, time.Now())
		if err == nil {
			err = writeStatement(path, outcome.Body)
		}
		if err != nil {
			report.Status = StatusFailed
			report.Error = err.Error()
			progress("  %v\n", err)
			recordFailure(st, q.ID, reference, err.Error(), progress)
			return report
		}
		report.Status = StatusDownloaded
		report.OutputPath = path
		progress("  saved to %s\n", path)
		if err := st.RecordDownload(model.DownloadRecord{
			QueryID: q.ID, ReferenceCode: reference,
			Outcome: model.OutcomeSuccess, Detail: path,
			FinishedAt: time.Now().UTC(),
		}); err != nil {
			report.Status = StatusFailed
			report.Error = fmt.Sprintf("statement saved to %s but history write failed: %v", path, err)
		}
	case model.StateExhausted:
		report.Status = StatusExhausted
		report.Error = fmt.Sprintf("statement not ready after %d attempts", outcome.Attempts)
		progress("  gave up after %d attempts; resume later with: flexfetch fetch %s\n", outcome.Attempts, reference)
		recordFailure(st, q.ID, reference, report.Error, progress)
	case model.StateFailed:
		report.Status = StatusFailed
		report.Error = outcome.Reason.Error()
		progress("  failed: %v\n", outcome.Reason)
		recordFailure(st, q.ID, reference, report.Error, progress)
	}
	return report
}

// submitQuery sends one report request and wraps the returned reference
// code in a handle. The handle lives only for this process; the reference
// code itself is what survives a restart, via the history record and the
// printed resume hint.
func submitQuery(ctx context.Context, client Client, q model.Query) (model.RequestHandle, error) {
	reference, err := client.Submit(ctx, q.ID)
	if err != nil {
		return model.RequestHandle{}, err
	}
	return model.RequestHandle{
		QueryID:       q.ID,
		ReferenceCode: reference,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

func recordFailure(st *store.Store, queryID, reference, detail string, progress func(string, ...any)) {
	err := st.RecordDownload(model.DownloadRecord{
		QueryID: queryID, ReferenceCode: reference,
		Outcome: model.OutcomeFailure, Detail: detail,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		progress("  warning: history write failed: %v\n", err)
	}
}

func resolveOutputPath(opts Options, q model.Query, now time.Time) (string, error) {
	if strings.TrimSpace(opts.OutputPath) != "" {
		return opts.OutputPath, nil
	}
	dir := strings.TrimSpace(opts.OutputDir)
	if dir == "" {
		dir = "."
	}
	name := fmt.Sprintf("%s_%s.xml", sanitizeFileName(q.DisplayName()), now.Format("20060102"))
	return filepath.Join(dir, name), nil
}

func writeStatement(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func formatInterval(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
