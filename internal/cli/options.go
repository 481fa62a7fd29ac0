package cli

import (
	"fmt"
	"strconv"
	"time"

	"flexfetch/internal/poll"
	"flexfetch/internal/store"
)

const (
	configOutputDir    = "default_output_dir"
	configPollInterval = "default_poll_interval"
	configMaxAttempts  = "default_max_attempts"
)

// knownConfigKeys maps operator-settable keys to a validator.
var knownConfigKeys = map[string]func(value string) error{
	configOutputDir:    func(string) error { return nil },
	configPollInterval: validatePositiveInt,
	configMaxAttempts:  validatePositiveInt,
}

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

// effectivePollSettings layers flag values over persisted config over the
// built-in defaults. Flag zero values mean "not provided".
func effectivePollSettings(st *store.Store, intervalSeconds, maxAttempts int) (time.Duration, int, error) {
	interval := poll.DefaultInterval
	attempts := poll.DefaultMaxAttempts

	if v, ok, err := st.Config(configPollInterval); err != nil {
		return 0, 0, err
	} else if ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid %s %q in config", configPollInterval, v)
		}
		interval = time.Duration(n) * time.Second
	}
	if v, ok, err := st.Config(configMaxAttempts); err != nil {
		return 0, 0, err
	} else if ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid %s %q in config", configMaxAttempts, v)
		}
		attempts = n
	}

	if intervalSeconds > 0 {
		interval = time.Duration(intervalSeconds) * time.Second
	}
	if maxAttempts > 0 {
		attempts = maxAttempts
	}
	return interval, attempts, nil
}

// effectiveOutputDir resolves --output-dir over config over the data dir.
func effectiveOutputDir(st *store.Store, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v, ok, err := st.Config(configOutputDir); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}
	return store.DefaultDataDir()
}
