package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"flexfetch/internal/model"
)

const (
	tokenKey         = "token"
	schemaVersionKey = "schema_version"
)

// --- Token ---

func (s *Store) SetToken(token string) error {
	return s.SetConfig(tokenKey, strings.TrimSpace(token))
}

func (s *Store) Token() (string, bool, error) {
	return s.Config(tokenKey)
}

func (s *Store) UnsetToken() error {
	_, err := s.UnsetConfig(tokenKey)
	return err
}

// --- Config ---

func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

func (s *Store) Config(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read config %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) UnsetConfig(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM config WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("unset config %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListConfig returns operator-visible settings sorted by key. The token and
// schema version are internal and excluded.
func (s *Store) ListConfig() ([][2]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM config WHERE key NOT IN (?, ?)`,
		tokenKey, schemaVersionKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	out := make([][2]string, 0)
	for rows.Next() {
		var kv [2]string
		if err := rows.Scan(&kv[0], &kv[1]); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out, nil
}

// --- Queries ---

func (s *Store) AddQuery(q model.Query) error {
	addedAt := q.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO queries (id, name, type, interval_hours, added_at) VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.Name, q.Type, nullableHours(q.IntervalHours), addedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("query %s: %w", q.ID, ErrDuplicate)
		}
		return fmt.Errorf("add query %s: %w", q.ID, err)
	}
	return nil
}

func (s *Store) RemoveQuery(id string) error {
	res, err := s.db.Exec(`DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove query %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) RenameQuery(id, newName string) error {
	res, err := s.db.Exec(`UPDATE queries SET name = ? WHERE id = ?`, newName, id)
	if err != nil {
		return fmt.Errorf("rename query %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SetInterval sets the per-query override in whole hours; hours <= 0 clears
// the override back to the type default.
func (s *Store) SetInterval(id string, hours int) error {
	res, err := s.db.Exec(`UPDATE queries SET interval_hours = ? WHERE id = ?`, nullableHours(hours), id)
	if err != nil {
		return fmt.Errorf("set interval for query %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) GetQuery(id string) (model.Query, error) {
	row := s.db.QueryRow(
		`SELECT id, name, type, interval_hours, added_at FROM queries WHERE id = ?`, id,
	)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return model.Query{}, fmt.Errorf("query %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Query{}, fmt.Errorf("get query %s: %w", id, err)
	}
	return q, nil
}

// ListQueries returns all queries in insertion order.
func (s *Store) ListQueries() ([]model.Query, error) {
	rows, err := s.db.Query(
		`SELECT id, name, type, interval_hours, added_at FROM queries ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	out := make([]model.Query, 0)
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- Download history ---

// RecordDownload appends one terminal attempt. The row is durable before
// the call returns; the orchestrator relies on that before reporting
// success to its caller.
func (s *Store) RecordDownload(rec model.DownloadRecord) error {
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO downloads (query_id, reference_code, outcome, detail, finished_at) VALUES (?, ?, ?, ?, ?)`,
		rec.QueryID, rec.ReferenceCode, rec.Outcome, rec.Detail, finishedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("query %s: %w", rec.QueryID, ErrNotFound)
		}
		return fmt.Errorf("record download for query %s: %w", rec.QueryID, err)
	}
	return nil
}

// LastSuccess returns when the query last downloaded successfully.
func (s *Store) LastSuccess(queryID string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT finished_at FROM downloads
		 WHERE query_id = ? AND outcome = ?
		 ORDER BY id DESC LIMIT 1`,
		queryID, model.OutcomeSuccess,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last success for query %s: %w", queryID, err)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last success timestamp %q: %w", raw, err)
	}
	return ts, true, nil
}

// LatestRecord returns the most recent attempt of any outcome.
func (s *Store) LatestRecord(queryID string) (model.DownloadRecord, bool, error) {
	var rec model.DownloadRecord
	var raw string
	err := s.db.QueryRow(
		`SELECT query_id, reference_code, outcome, detail, finished_at FROM downloads
		 WHERE query_id = ? ORDER BY id DESC LIMIT 1`,
		queryID,
	).Scan(&rec.QueryID, &rec.ReferenceCode, &rec.Outcome, &rec.Detail, &raw)
	if err == sql.ErrNoRows {
		return model.DownloadRecord{}, false, nil
	}
	if err != nil {
		return model.DownloadRecord{}, false, fmt.Errorf("latest record for query %s: %w", queryID, err)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return model.DownloadRecord{}, false, fmt.Errorf("parse record timestamp %q: %w", raw, err)
	}
	rec.FinishedAt = ts
	return rec, true, nil
}

// QueryForReference maps a reference code from an earlier attempt back to
// its query, so a manual fetch can be recorded against the right history.
func (s *Store) QueryForReference(referenceCode string) (string, bool, error) {
	if strings.TrimSpace(referenceCode) == "" {
		return "", false, nil
	}
	var queryID string
	err := s.db.QueryRow(
		`SELECT query_id FROM downloads WHERE reference_code = ? ORDER BY id DESC LIMIT 1`,
		referenceCode,
	).Scan(&queryID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup reference %s: %w", referenceCode, err)
	}
	return queryID, true, nil
}

// HistoryCount reports how many records a query has accumulated.
func (s *Store) HistoryCount(queryID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM downloads WHERE query_id = ?`, queryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history for query %s: %w", queryID, err)
	}
	return n, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (model.Query, error) {
	var q model.Query
	var hours sql.NullInt64
	var addedAt string
	if err := row.Scan(&q.ID, &q.Name, &q.Type, &hours, &addedAt); err != nil {
		return model.Query{}, err
	}
	if hours.Valid {
		q.IntervalHours = int(hours.Int64)
	}
	if ts, err := time.Parse(time.RFC3339, addedAt); err == nil {
		q.AddedAt = ts
	}
	return q, nil
}

func nullableHours(hours int) any {
	if hours <= 0 {
		return nil
	}
	return hours
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("query %s: %w", id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
