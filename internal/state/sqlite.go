package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tunnels (
	position   INTEGER PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	backend_ip TEXT NOT NULL,
	ports      TEXT NOT NULL,
	mode       TEXT NOT NULL
);`

// SQLiteStore persists the TunnelSet in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	held chan struct{}
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, persistErr("create state dir", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistErr("open database", err)
	}
	// one connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, persistErr("init schema", err)
	}
	return &SQLiteStore{db: db, path: path, held: make(chan struct{}, 1)}, nil
}

// Load reads all settings and tunnels ordered by position.
func (s *SQLiteStore) Load(ctx context.Context) (*TunnelSet, error) {
	settings := make(map[string]string)
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, persistErr("query settings", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, persistErr("scan settings", err)
		}
		settings[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, persistErr("read settings", err)
	}

	set := NewTunnelSet()
	set.HealthCheck = parseHealthCheck(strings.TrimSpace(settings[keyHealthCheckPort]))
	set.Bot = BotSettings{Token: settings[keyBotToken], AdminID: settings[keyBotAdminID]}

	rows, err = s.db.QueryContext(ctx, `SELECT id, backend_ip, ports, mode FROM tunnels ORDER BY position`)
	if err != nil {
		return nil, persistErr("query tunnels", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.ID, &rec.BackendIP, &rec.Ports, &rec.Mode); err != nil {
			return nil, persistErr("scan tunnel", err)
		}
		t, err := rec.tunnel()
		if err != nil {
			return nil, persistErr(fmt.Sprintf("tunnel %s", rec.ID), err)
		}
		set.Tunnels = append(set.Tunnels, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("read tunnels", err)
	}
	return set, nil
}

// Save replaces all rows in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, set *TunnelSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return persistErr("clear settings", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tunnels`); err != nil {
		return persistErr("clear tunnels", err)
	}

	settings := map[string]string{
		keyHealthCheckPort: formatHealthCheck(set.HealthCheck),
		keyBotToken:        set.Bot.Token,
		keyBotAdminID:      set.Bot.AdminID,
	}
	for k, v := range settings {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, k, v); err != nil {
			return persistErr("insert setting", err)
		}
	}

	for i, t := range set.Tunnels {
		if t.ID == "" {
			t.ID = NewID()
			set.Tunnels[i].ID = t.ID
		}
		rec := toRecord(t)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tunnels (position, id, backend_ip, ports, mode) VALUES (?, ?, ?, ?, ?)`,
			i, rec.ID, rec.BackendIP, rec.Ports, rec.Mode); err != nil {
			return persistErr("insert tunnel", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	set.generatedIDs = false
	return nil
}

// Lock serializes callers sharing this store, then takes an exclusive
// advisory lock next to the database file. A ":memory:" store is private
// to the process and needs only the first.
func (s *SQLiteStore) Lock(ctx context.Context) (func(), error) {
	select {
	case s.held <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for state lock: %w", ctx.Err())
	}
	release := func() { <-s.held }
	if s.path == ":memory:" {
		return release, nil
	}

	unlock, err := lockFile(ctx, s.path+".lock")
	if err != nil {
		release()
		return nil, err
	}
	return func() {
		unlock()
		release()
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
