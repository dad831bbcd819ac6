// Package history keeps a queryable journal of state-changing operations
// in SQLite. The structured log carries the same events; the journal
// survives log rotation and answers "who changed what" from the CLI.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"grimm.is/portgate/internal/clock"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	actor    TEXT NOT NULL,
	action   TEXT NOT NULL,
	resource TEXT NOT NULL,
	result   TEXT NOT NULL,
	stage    TEXT,
	error    TEXT,
	details  TEXT
);
CREATE INDEX IF NOT EXISTS idx_operations_ts ON operations(ts);
CREATE INDEX IF NOT EXISTS idx_operations_action ON operations(action);`

// DefaultRetentionDays applies when Open is given zero.
const DefaultRetentionDays = 90

// Result values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Entry is one journaled operation.
type Entry struct {
	ID        int64          `json:"id" yaml:"id"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Actor     string         `json:"actor" yaml:"actor"`
	Action    string         `json:"action" yaml:"action"`
	Resource  string         `json:"resource" yaml:"resource"`
	Result    string         `json:"result" yaml:"result"`
	Stage     string         `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Query filters Recent. Zero values match everything.
type Query struct {
	Action string
	Actor  string
	Since  time.Time
	Limit  int
}

// Journal stores entries in a SQLite database.
type Journal struct {
	mu        sync.Mutex
	db        *sql.DB
	retention time.Duration
}

// Open opens (creating if needed) the journal at path. Use ":memory:" for
// an ephemeral journal.
func Open(path string, retentionDays int) (*Journal, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Journal{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}, nil
}

// Record appends e. A zero timestamp is set to now and a blank actor to
// the actor carried by ctx.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = clock.Now()
	}
	if e.Actor == "" {
		e.Actor = ActorFrom(ctx)
	}
	if e.Result == "" {
		e.Result = ResultOK
	}

	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			details = []byte("{}")
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO operations (ts, actor, action, resource, result, stage, error, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UnixNano(), e.Actor, e.Action, e.Resource, e.Result,
		e.Stage, e.Error, string(details))
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Recent returns entries matching q, newest first.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, q.Action)
	}
	if q.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, q.Actor)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}

	query := `SELECT id, ts, actor, action, resource, result, stage, error, details FROM operations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                     Entry
			ts                    int64
			stage, errMsg, detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.Action, &e.Resource, &e.Result,
			&stage, &errMsg, &detail); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		e.Stage = stage.String
		e.Error = errMsg.String
		if detail.String != "" {
			json.Unmarshal([]byte(detail.String), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes entries older than the retention period.
func (j *Journal) Prune(ctx context.Context) (int64, error) {
	cutoff := clock.Now().Add(-j.retention)

	j.mu.Lock()
	defer j.mu.Unlock()
	res, err := j.db.ExecContext(ctx, `DELETE FROM operations WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations`).Scan(&n)
	return n, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
