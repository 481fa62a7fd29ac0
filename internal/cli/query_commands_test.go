package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	"flexfetch/internal/store"
)

func TestQueryAddAndInterval(t *testing.T) {
	setupDataDir(t)

	if err := Run([]string{"query", "add", "111", "--name", "Activity", "--type", "activity"}); err != nil {
		t.Fatal(err)
	}
	if err := Run([]string{"query", "add", "222", "--type", "trade-confirmation"}); err != nil {
		t.Fatal(err)
	}
	if err := Run([]string{"query", "add", "111"}); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
	if err := Run([]string{"query", "add", "333", "--type", "bogus"}); err == nil {
		t.Fatal("unknown type must be rejected")
	}

	if err := Run([]string{"query", "interval", "111", "12"}); err != nil {
		t.Fatal(err)
	}

	st := openHarnessStore(t)
	q, err := st.GetQuery("111")
	if err != nil {
		t.Fatal(err)
	}
	if q.EffectiveInterval() != 12*time.Hour {
		t.Fatalf("interval = %v, want 12h", q.EffectiveInterval())
	}

	if err := Run([]string{"query", "interval", "111", "--unset"}); err != nil {
		t.Fatal(err)
	}
	q, err = st.GetQuery("111")
	if err != nil {
		t.Fatal(err)
	}
	if q.EffectiveInterval() != 6*time.Hour {
		t.Fatalf("interval after unset = %v, want default 6h", q.EffectiveInterval())
	}
}

func TestQueryRenameAndRemove(t *testing.T) {
	setupDataDir(t)

	if err := Run([]string{"query", "add", "111", "--name", "Old"}); err != nil {
		t.Fatal(err)
	}
	if err := Run([]string{"query", "rename", "111", "New"}); err != nil {
		t.Fatal(err)
	}

	st := openHarnessStore(t)
	q, err := st.GetQuery("111")
	if err != nil {
		t.Fatal(err)
	}
	if q.Name != "New" {
		t.Fatalf("name = %q, want New", q.Name)
	}

	if err := Run([]string{"query", "remove", "111", "--yes"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetQuery("111"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("query should be gone, got %v", err)
	}

	if err := Run([]string{"query", "remove", "missing", "--yes"}); err == nil {
		t.Fatal("removing a missing query must fail")
	}
}

func TestConfigSetValidation(t *testing.T) {
	setupDataDir(t)

	if err := Run([]string{"config", "set", "default_poll_interval", "45"}); err != nil {
		t.Fatal(err)
	}
	if err := Run([]string{"config", "set", "default_max_attempts", "5"}); err != nil {
		t.Fatal(err)
	}
	err := Run([]string{"config", "set", "no_such_key", "x"})
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Fatalf("expected unknown-key error, got %v", err)
	}
	err = Run([]string{"config", "set", "default_poll_interval", "zero"})
	if err == nil {
		t.Fatal("non-numeric interval must be rejected")
	}

	st := openHarnessStore(t)
	interval, attempts, err := effectivePollSettings(st, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if interval != 45*time.Second || attempts != 5 {
		t.Fatalf("effective settings = %v/%d, want 45s/5", interval, attempts)
	}
}

func TestTokenLifecycle(t *testing.T) {
	setupDataDir(t)

	if err := Run([]string{"token", "get"}); err == nil {
		t.Fatal("token get before set must fail")
	}
	if err := Run([]string{"token", "set", "  secret  "}); err != nil {
		t.Fatal(err)
	}

	st := openHarnessStore(t)
	tok, ok, err := st.Token()
	if err != nil || !ok {
		t.Fatalf("token missing after set (ok=%v err=%v)", ok, err)
	}
	if tok != "secret" {
		t.Fatalf("token = %q, want trimmed value", tok)
	}

	if err := Run([]string{"token", "unset"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := st.Token(); ok {
		t.Fatal("token still present after unset")
	}
}
