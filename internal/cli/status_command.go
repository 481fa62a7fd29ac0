package cli

import (
	"flag"
	"fmt"
	"time"

	"flexfetch/internal/model"
	"flexfetch/internal/store"
)

type statusItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Due          bool   `json:"due"`
	LastSuccess  string `json:"last_success,omitempty"`
	NextDue      string `json:"next_due,omitempty"`
	LastOutcome  string `json:"last_outcome,omitempty"`
	FailedReason string `json:"failed_reason,omitempty"`
}

type statusSummary struct {
	Queries int          `json:"queries"`
	Due     int          `json:"due"`
	Items   []statusItem `json:"items"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := store.OpenDefault()
	if err != nil {
		return err
	}
	defer st.Close()

	queries, err := st.ListQueries()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	summary := statusSummary{Queries: len(queries), Items: make([]statusItem, 0, len(queries))}
	for _, q := range queries {
		item := statusItem{ID: q.ID, Name: q.Name, Type: q.Type}

		lastSuccess, hasSuccess, err := st.LastSuccess(q.ID)
		if err != nil {
			return err
		}
		item.Due = model.IsDue(q, lastSuccess, hasSuccess, now)
		if hasSuccess {
			item.LastSuccess = lastSuccess.Local().Format("2006-01-02 15:04")
			if !item.Due {
				item.NextDue = lastSuccess.Add(q.EffectiveInterval()).Local().Format("2006-01-02 15:04")
			}
		}
		if rec, ok, err := st.LatestRecord(q.ID); err != nil {
			return err
		} else if ok {
			item.LastOutcome = rec.Outcome
			if rec.Outcome == model.OutcomeFailure {
				item.FailedReason = rec.Detail
			}
		}
		if item.Due {
			summary.Due++
		}
		summary.Items = append(summary.Items, item)
	}

	if *jsonOut {
		return printJSON(summary)
	}

	if summary.Queries == 0 {
		fmt.Println("no queries configured")
		return nil
	}
	fmt.Printf("%d quer%s configured, %d due\n\n", summary.Queries, pluralYIes(summary.Queries), summary.Due)
	for _, item := range summary.Items {
		marker := tableMutedStyle.Render("up to date")
		if item.Due {
			marker = okStyle.Render("due")
		}
		name := item.Name
		if name == "" {
			name = item.ID
		}
		fmt.Printf("  %-30s %-10s %s", clip(name, 30), item.Type, marker)
		if item.LastSuccess != "" {
			fmt.Printf("  (last success %s)", item.LastSuccess)
		}
		if item.FailedReason != "" {
			fmt.Printf("  %s", failStyle.Render("last attempt failed"))
		}
		fmt.Println()
	}
	return nil
}
