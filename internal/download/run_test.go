package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flexfetch/internal/flexws"
	"flexfetch/internal/model"
	"flexfetch/internal/store"
)

type fakeClient struct {
	refs       map[string]string
	submitErrs map[string]error
	fetches    map[string][]flexws.FetchResult
	fetchCalls map[string]int
}

func (c *fakeClient) Submit(ctx context.Context, queryID string) (string, error) {
	if err, ok := c.submitErrs[queryID]; ok {
		return "", err
	}
	ref, ok := c.refs[queryID]
	if !ok {
		return "", fmt.Errorf("unexpected submit for query %s", queryID)
	}
	return ref, nil
}

func (c *fakeClient) Fetch(ctx context.Context, referenceCode string) (flexws.FetchResult, error) {
	if c.fetchCalls == nil {
		c.fetchCalls = make(map[string]int)
	}
	steps := c.fetches[referenceCode]
	i := c.fetchCalls[referenceCode]
	if i >= len(steps) {
		return flexws.FetchResult{}, fmt.Errorf("unexpected fetch %d for reference %s", i, referenceCode)
	}
	c.fetchCalls[referenceCode]++
	return steps[i], nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "flexfetch.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addQuery(t *testing.T, st *store.Store, id, name string) {
	t.Helper()
	if err := st.AddQuery(model.Query{ID: id, Name: name, Type: model.QueryTypeActivity}); err != nil {
		t.Fatal(err)
	}
}

func ready(body string) flexws.FetchResult {
	return flexws.FetchResult{Kind: flexws.FetchReady, Body: []byte(body)}
}

func pending() flexws.FetchResult {
	return flexws.FetchResult{
		Kind: flexws.FetchPending,
		Err:  &flexws.RemoteError{Code: "1019", Kind: flexws.KindPending},
	}
}

func TestBatchContinuesPastRejectedQuery(t *testing.T) {
	st := openTestStore(t)
	addQuery(t, st, "100", "First")
	addQuery(t, st, "200", "Second")
	addQuery(t, st, "300", "Third")

	client := &fakeClient{
		refs: map[string]string{"100": "ref-100", "300": "ref-300"},
		submitErrs: map[string]error{
			"200": &flexws.RemoteError{Code: "1018", Message: "Too many requests.", Kind: flexws.KindRejected},
		},
		fetches: map[string][]flexws.FetchResult{
			"ref-100": {ready("<FlexQueryResponse a='1'/>")},
			"ref-300": {pending(), ready("<FlexQueryResponse a='3'/>")},
		},
	}

	outDir := t.TempDir()
	res, err := Run(context.Background(), st, client, Options{
		OutputDir: outDir, MaxAttempts: 5, PollInterval: time.Second, Sleep: noSleep,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(res.Reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(res.Reports))
	}
	if res.Reports[0].Status != StatusDownloaded || res.Reports[2].Status != StatusDownloaded {
		t.Fatalf("queries 1 and 3 should download: %+v", res.Reports)
	}
	if res.Reports[1].Status != StatusRejected {
		t.Fatalf("query 2 should be rejected, got %q", res.Reports[1].Status)
	}
	if res.Succeeded != 2 || res.Failed != 1 || res.Processed != 3 {
		t.Fatalf("counts: %+v", res)
	}

	// Exactly two success records and one failure record persisted.
	for _, tc := range []struct {
		id          string
		wantOutcome string
	}{{"100", model.OutcomeSuccess}, {"200", model.OutcomeFailure}, {"300", model.OutcomeSuccess}} {
		rec, ok, err := st.LatestRecord(tc.id)
		if err != nil || !ok {
			t.Fatalf("query %s: missing record (err=%v)", tc.id, err)
		}
		if rec.Outcome != tc.wantOutcome {
			t.Fatalf("query %s: outcome %q, want %q", tc.id, rec.Outcome, tc.wantOutcome)
		}
	}

	// Downloaded statements are on disk at the derived names.
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 output files, got %d", len(entries))
	}
}

func TestSkipNotDueAndForceBypass(t *testing.T) {
	st := openTestStore(t)
	addQuery(t, st, "100", "Daily")
	if err := st.RecordDownload(model.DownloadRecord{
		QueryID: "100", Outcome: model.OutcomeSuccess, Detail: "/tmp/prev.xml",
		FinishedAt: time.Now().UTC().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		refs:    map[string]string{"100": "ref-100"},
		fetches: map[string][]flexws.FetchResult{"ref-100": {ready("<FlexQueryResponse/>")}},
	}

	res, err := Run(context.Background(), st, client, Options{
		Query: "100", OutputDir: t.TempDir(), MaxAttempts: 3, Sleep: noSleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || len(res.Reports) != 1 || res.Reports[0].Status != StatusSkipped {
		t.Fatalf("fresh query should be skipped: %+v", res)
	}

	res, err = Run(context.Background(), st, client, Options{
		Query: "100", Force: true, OutputDir: t.TempDir(), MaxAttempts: 3, Sleep: noSleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 || res.Reports[0].Status != StatusDownloaded {
		t.Fatalf("force must bypass due-ness: %+v", res)
	}
}

func TestFailedAttemptDoesNotSuppressNextRun(t *testing.T) {
	st := openTestStore(t)
	addQuery(t, st, "100", "Daily")

	client := &fakeClient{
		refs: map[string]string{"100": "ref-1"},
		fetches: map[string][]flexws.FetchResult{
			"ref-1": {{Kind: flexws.FetchFailed, Err: &flexws.RemoteError{Code: "1021", Kind: flexws.KindFailed}}},
		},
	}
	if _, err := Run(context.Background(), st, client, Options{
		Query: "100", OutputDir: t.TempDir(), MaxAttempts: 2, Sleep: noSleep,
	}); err != nil {
		t.Fatal(err)
	}

	// Second run: still due because only success counts.
	client.refs["100"] = "ref-2"
	client.fetches["ref-2"] = []flexws.FetchResult{ready("<FlexQueryResponse/>")}
	res, err := Run(context.Background(), st, client, Options{
		Query: "100", OutputDir: t.TempDir(), MaxAttempts: 2, Sleep: noSleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reports[0].Status != StatusDownloaded {
		t.Fatalf("failure must not suppress due-ness: %+v", res.Reports[0])
	}
}

func TestExhaustedRecordsReferenceForResume(t *testing.T) {
	st := openTestStore(t)
	addQuery(t, st, "100", "Daily")

	client := &fakeClient{
		refs:    map[string]string{"100": "ref-xyz"},
		fetches: map[string][]flexws.FetchResult{"ref-xyz": {pending(), pending()}},
	}
	res, err := Run(context.Background(), st, client, Options{
		Query: "100", OutputDir: t.TempDir(), MaxAttempts: 2, Sleep: noSleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reports[0].Status != StatusExhausted || res.Reports[0].ReferenceCode != "ref-xyz" {
		t.Fatalf("exhausted report should surface the reference: %+v", res.Reports[0])
	}

	rec, ok, err := st.LatestRecord("100")
	if err != nil || !ok {
		t.Fatal("expected a failure record")
	}
	if rec.Outcome != model.OutcomeFailure || rec.ReferenceCode != "ref-xyz" {
		t.Fatalf("record should keep the reference for a later fetch: %+v", rec)
	}

	// The reference resolves back to its query for a manual fetch.
	queryID, known, err := st.QueryForReference("ref-xyz")
	if err != nil || !known || queryID != "100" {
		t.Fatalf("reference lookup: id=%q known=%v err=%v", queryID, known, err)
	}
}

func TestRunUnknownQuery(t *testing.T) {
	st := openTestStore(t)
	if _, err := Run(context.Background(), st, &fakeClient{}, Options{Query: "nope", Sleep: noSleep}); err == nil {
		t.Fatal("expected error for unknown query")
	}
}

func TestExplicitOutputRejectedInBatchMode(t *testing.T) {
	st := openTestStore(t)
	addQuery(t, st, "100", "a")
	addQuery(t, st, "200", "b")
	_, err := Run(context.Background(), st, &fakeClient{}, Options{OutputPath: "out.xml", Sleep: noSleep})
	if err == nil {
		t.Fatal("expected error for --output with multiple queries")
	}
}

func TestDerivedOutputName(t *testing.T) {
	q := model.Query{ID: "123456", Name: "Daily Activity!"}
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	path, err := resolveOutputPath(Options{OutputDir: "/tmp/reports"}, q, now)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/tmp/reports", "Daily_Activity__20260830.xml")
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestFetchByReferenceRecordsKnownQuery(t *testing.T) {
	st := openTestStore(t)
	addQuery(t, st, "100", "Daily")
	if err := st.RecordDownload(model.DownloadRecord{
		QueryID: "100", ReferenceCode: "ref-old", Outcome: model.OutcomeFailure,
		Detail: "statement not ready after 2 attempts",
	}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		fetches: map[string][]flexws.FetchResult{"ref-old": {ready("<FlexQueryResponse/>")}},
	}
	report, err := FetchByReference(context.Background(), st, client, FetchOptions{
		ReferenceCode: "ref-old", OutputDir: t.TempDir(), MaxAttempts: 3, Sleep: noSleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != StatusDownloaded || report.QueryID != "100" {
		t.Fatalf("report: %+v", report)
	}

	ts, ok, err := st.LastSuccess("100")
	if err != nil || !ok {
		t.Fatalf("resumed fetch should record success (ok=%v err=%v)", ok, err)
	}
	if time.Since(ts) > time.Minute {
		t.Fatalf("unexpected success timestamp %v", ts)
	}
}
