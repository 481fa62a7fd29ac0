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
	"flexfetch/internal/flexws"
	"flexfetch/internal/store"
)

// BaseURLEnv points the client at a different Flex service endpoint,
// mainly for the test harness.
const BaseURLEnv = "FLEXFETCH_BASE_URL"

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	force := fs.Bool("force", false, "download even when the query is not due")
	output := fs.String("output", "", "output file (single query only)")
	outputDir := fs.String("output-dir", "", "output directory for derived file names")
	pollInterval := fs.Int("poll-interval", 0, "seconds between poll attempts (0 = config/default)")
	maxAttempts := fs.Int("max-attempts", 0, "poll attempts before giving up (0 = config/default)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := strings.TrimSpace(fs.Arg(0))
	if target == "" || strings.EqualFold(target, "all") {
		target = ""
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

	opts := download.Options{
		Query:        target,
		Force:        *force,
		OutputPath:   strings.TrimSpace(*output),
		OutputDir:    outDir,
		PollInterval: interval,
		MaxAttempts:  attempts,
	}
	if !*jsonOut {
		opts.Progress = func(format string, args ...any) {
			fmt.Printf(format, args...)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := download.Run(ctx, st, client, opts)
	if err != nil {
		return err
	}

	if *jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("\ndone: %d downloaded, %d failed, %d skipped\n", result.Succeeded, result.Failed, result.Skipped)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d quer%s failed", result.Failed, pluralYIes(result.Failed))
	}
	return nil
}

func newFlexClient(st *store.Store) (*flexws.Client, error) {
	token, ok, err := st.Token()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no token found; set one with: flexfetch token set <token>")
	}
	return flexws.NewClient(flexws.Options{
		Token:   token,
		BaseURL: os.Getenv(BaseURLEnv),
	})
}

func pluralYIes(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
