package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	QueryTypeActivity          = "activity"
	QueryTypeTradeConfirmation = "trade-confirmation"
)

// Default minimum interval between successful downloads, per query type.
var typeIntervalDefaults = map[string]time.Duration{
	QueryTypeActivity:          6 * time.Hour,
	QueryTypeTradeConfirmation: time.Hour,
}

func QueryTypes() []string {
	return []string{QueryTypeActivity, QueryTypeTradeConfirmation}
}

func IsKnownQueryType(queryType string) bool {
	_, ok := typeIntervalDefaults[queryType]
	return ok
}

func NormalizeQueryType(raw string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return QueryTypeActivity, nil
	}
	if !IsKnownQueryType(t) {
		return "", fmt.Errorf("unknown query type %q (expected %s)", raw, strings.Join(QueryTypes(), " or "))
	}
	return t, nil
}

// Query is one Flex query definition known to this tool. ID is the
// remote query id and never changes; everything else is operator-editable.
type Query struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	IntervalHours int       `json:"interval_hours,omitempty"`
	AddedAt       time.Time `json:"added_at"`
}

// EffectiveInterval resolves the per-query override over the type default.
func (q Query) EffectiveInterval() time.Duration {
	if q.IntervalHours > 0 {
		return time.Duration(q.IntervalHours) * time.Hour
	}
	if d, ok := typeIntervalDefaults[q.Type]; ok {
		return d
	}
	return typeIntervalDefaults[QueryTypeActivity]
}

func (q Query) DisplayName() string {
	if strings.TrimSpace(q.Name) != "" {
		return q.Name
	}
	return q.ID
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// DownloadRecord is one terminal download attempt. Records are append-only;
// only success records count toward due-ness.
type DownloadRecord struct {
	QueryID       string    `json:"query_id"`
	ReferenceCode string    `json:"reference_code,omitempty"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail"`
	FinishedAt    time.Time `json:"finished_at"`
}

// RequestHandle identifies an in-flight report request. It is not persisted
// as such; if the process stops before the statement is retrieved the
// reference code is surfaced so a later fetch invocation can resume.
type RequestHandle struct {
	QueryID       string
	ReferenceCode string
	SubmittedAt   time.Time
}
