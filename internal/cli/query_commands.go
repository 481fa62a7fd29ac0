package cli

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flexfetch/internal/model"
	"flexfetch/internal/store"

	"github.com/charmbracelet/lipgloss"
)

func runQuery(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing query subcommand (expected add, remove, rename, interval, or list)")
	}

	switch args[0] {
	case "add":
		return runQueryAdd(args[1:])
	case "remove":
		return runQueryRemove(args[1:])
	case "rename":
		return runQueryRename(args[1:])
	case "interval":
		return runQueryInterval(args[1:])
	case "list":
		return runQueryList(args[1:])
	default:
		return fmt.Errorf("unknown query subcommand %q (expected add, remove, rename, interval, or list)", args[0])
	}
}

func runQueryAdd(args []string) error {
	fs := flag.NewFlagSet("query add", flag.ContinueOnError)
	name := fs.String("name", "", "human-readable query name")
	queryType := fs.String("type", model.QueryTypeActivity, "query type: activity|trade-confirmation")
	interval := fs.Int("interval", 0, "minimum hours between downloads (0 = type default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: flexfetch query add <query-id> [--name ...] [--type ...] [--interval <hours>]")
	}
	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		return fmt.Errorf("query id is required")
	}
	normalized, err := model.NormalizeQueryType(*queryType)
	if err != nil {
		return err
	}
	if *interval < 0 {
		return fmt.Errorf("interval must be a positive number of hours")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	q := model.Query{ID: id, Name: strings.TrimSpace(*name), Type: normalized, IntervalHours: *interval}
	if err := st.AddQuery(q); err != nil {
		return err
	}
	if *interval > 0 {
		fmt.Printf("query %s added (%s, min interval %dh)\n", id, normalized, *interval)
	} else {
		fmt.Printf("query %s added (%s)\n", id, normalized)
	}
	return nil
}

func runQueryRemove(args []string) error {
	fs := flag.NewFlagSet("query remove", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: flexfetch query remove <query-id> [--yes]")
	}
	id := fs.Arg(0)

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetQuery(id); err != nil {
		return err
	}
	n, err := st.HistoryCount(id)
	if err != nil {
		return err
	}
	if n > 0 && !*yes {
		ok, err := promptConfirm(fmt.Sprintf("query %s has %d history record(s); removing deletes them too. Continue? [y/N] ", id, n))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}
	if err := st.RemoveQuery(id); err != nil {
		return err
	}
	fmt.Printf("query %s removed\n", id)
	return nil
}

func runQueryRename(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: flexfetch query rename <query-id> <new-name>")
	}
	id, newName := args[0], strings.TrimSpace(args[1])
	if newName == "" {
		return fmt.Errorf("new name is required")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RenameQuery(id, newName); err != nil {
		return err
	}
	fmt.Printf("query %s renamed to %q\n", id, newName)
	return nil
}

func runQueryInterval(args []string) error {
	fs := flag.NewFlagSet("query interval", flag.ContinueOnError)
	unset := fs.Bool("unset", false, "revert to the type default interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: flexfetch query interval <query-id> <hours> | --unset <query-id>")
	}
	id := fs.Arg(0)

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := st.GetQuery(id)
	if err != nil {
		return err
	}

	if *unset {
		if err := st.SetInterval(id, 0); err != nil {
			return err
		}
		cleared := model.Query{Type: q.Type}
		fmt.Printf("query %s will use the type default (%s)\n", id, formatHours(cleared.EffectiveInterval()))
		return nil
	}

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: flexfetch query interval <query-id> <hours> | --unset <query-id>")
	}
	hours, err := strconv.Atoi(fs.Arg(1))
	if err != nil || hours <= 0 {
		return fmt.Errorf("interval must be a positive number of hours")
	}
	if err := st.SetInterval(id, hours); err != nil {
		return err
	}
	fmt.Printf("query %s min interval set to %dh\n", id, hours)
	return nil
}

type queryListItem struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	IntervalHours     int    `json:"interval_hours,omitempty"`
	EffectiveInterval string `json:"effective_interval"`
	LastDownload      string `json:"last_download,omitempty"`
	LastOutcome       string `json:"last_outcome,omitempty"`
	LastDetail        string `json:"last_detail,omitempty"`
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tableMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func runQueryList(args []string) error {
	fs := flag.NewFlagSet("query list", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := collectQueryItems(st)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no queries found; add one with: flexfetch query add <query-id> --name \"Query name\"")
		return nil
	}

	fmt.Println(tableHeaderStyle.Render(fmt.Sprintf(
		"%-10s %-30s %-20s %-9s %-17s %s", "ID", "NAME", "TYPE", "INTERVAL", "LAST DOWNLOAD", "OUTCOME",
	)))
	for _, item := range items {
		last := item.LastDownload
		if last == "" {
			last = "never"
		}
		outcome := item.LastOutcome
		switch outcome {
		case model.OutcomeSuccess:
			outcome = okStyle.Render(outcome)
		case model.OutcomeFailure:
			outcome = failStyle.Render(outcome)
		default:
			outcome = tableMutedStyle.Render("-")
		}
		fmt.Printf("%-10s %-30s %-20s %-9s %-17s %s\n",
			item.ID, clip(item.Name, 30), item.Type, item.EffectiveInterval, last, outcome)
	}
	return nil
}

func collectQueryItems(st *store.Store) ([]queryListItem, error) {
	queries, err := st.ListQueries()
	if err != nil {
		return nil, err
	}
	items := make([]queryListItem, 0, len(queries))
	for _, q := range queries {
		item := queryListItem{
			ID:                q.ID,
			Name:              q.Name,
			Type:              q.Type,
			IntervalHours:     q.IntervalHours,
			EffectiveInterval: formatHours(q.EffectiveInterval()),
		}
		rec, ok, err := st.LatestRecord(q.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			item.LastDownload = rec.FinishedAt.Local().Format("2006-01-02 15:04")
			item.LastOutcome = rec.Outcome
			item.LastDetail = rec.Detail
		}
		items = append(items, item)
	}
	return items, nil
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%dh", int(d/time.Hour))
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
