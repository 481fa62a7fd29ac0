package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"flexfetch/internal/download"
	"flexfetch/internal/store"
)

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	output := fs.String("output", "", "output file")
	outputDir := fs.String("output-dir", "", "output directory for the derived file name")
	pollInterval := fs.Int("poll-interval", 0, "seconds between poll attempts (0 = config/default)")
	maxAttempts := fs.Int("max-attempts", 0, "poll attempts before giving up (0 = config/default)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: flexfetch fetch <reference-code> [--output ...]")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newFlexClient(st)
	if err != nil {
		return err
	}
	interval, attempts, err := effectivePollSettings(st, *pollInterval, *maxAttempts)
	if err != nil {
		return err
	}
	outDir, err := effectiveOutputDir(st, strings.TrimSpace(*outputDir))
	if err != nil {
		return err
	}

	opts := download.FetchOptions{
		ReferenceCode: fs.Arg(0),
		OutputPath:    strings.TrimSpace(*output),
		OutputDir:     outDir,
		PollInterval:  interval,
		MaxAttempts:   attempts,
	}
	if !*jsonOut {
		opts.Progress = func(format string, args ...any) {
			fmt.Printf(format, args...)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := download.FetchByReference(ctx, st, client, opts)
	if err != nil {
		return err
	}
	if *jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	}
	if report.Status != download.StatusDownloaded {
		return fmt.Errorf("fetch %s: %s", report.ReferenceCode, report.Error)
	}
	return nil
}
