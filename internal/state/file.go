package state

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	keyHealthCheckPort = "HEALTH_CHECK_PORT"
	keyBotToken        = "TELEGRAM_BOT_TOKEN"
	keyBotAdminID      = "TELEGRAM_ADMIN_ID"

	markerStart = "TUNNEL_START"
	markerEnd   = "TUNNEL_END"
)

// FileStore persists the TunnelSet in the line-oriented state file.
type FileStore struct {
	path string
	perm os.FileMode
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, perm: 0o600}
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields an empty set.
func (f *FileStore) Load(ctx context.Context) (*TunnelSet, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewTunnelSet(), nil
	}
	if err != nil {
		return nil, persistErr("read state file", err)
	}
	set, err := Decode(data)
	if err != nil {
		return nil, persistErr(f.path, err)
	}
	return set, nil
}

// Save replaces the state file atomically (write temp, rename).
func (f *FileStore) Save(ctx context.Context, set *TunnelSet) error {
	data, err := Encode(set)
	if err != nil {
		return persistErr("encode state", err)
	}
	if err := writeFileAtomic(f.path, data, f.perm); err != nil {
		return persistErr("write state file", err)
	}
	set.generatedIDs = false
	return nil
}

// Lock takes an exclusive advisory lock on "<path>.lock".
func (f *FileStore) Lock(ctx context.Context) (func(), error) {
	return lockFile(ctx, f.path+".lock")
}

// Close is a no-op for the file backend.
func (f *FileStore) Close() error {
	return nil
}

// Decode parses the state file format. Header lines are KEY=VALUE pairs;
// every TUNNEL_START/TUNNEL_END pair encloses one JSON record, possibly
// spread across several lines. Unterminated or stray markers are ignored.
func Decode(data []byte) (*TunnelSet, error) {
	var (
		header  strings.Builder
		records []string
		body    []string
		inside  bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case markerStart:
			// a second START before END discards the unterminated body
			inside = true
			body = body[:0]
			continue
		case markerEnd:
			if inside {
				records = append(records, strings.Join(body, ""))
			}
			inside = false
			body = body[:0]
			continue
		}
		if inside {
			body = append(body, strings.TrimSpace(line))
			continue
		}
		header.WriteString(line)
		header.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan state: %w", err)
	}

	env, err := godotenv.Unmarshal(header.String())
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	set := NewTunnelSet()
	set.HealthCheck = parseHealthCheck(strings.TrimSpace(env[keyHealthCheckPort]))
	set.Bot = BotSettings{
		Token:   strings.TrimSpace(env[keyBotToken]),
		AdminID: strings.TrimSpace(env[keyBotAdminID]),
	}

	for i, raw := range records {
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("tunnel record %d: %w", i, err)
		}
		if rec.ID == "" {
			set.generatedIDs = true
		}
		t, err := rec.tunnel()
		if err != nil {
			return nil, fmt.Errorf("tunnel record %d: %w", i, err)
		}
		set.Tunnels = append(set.Tunnels, t)
	}
	return set, nil
}

// Encode renders set in the state file format.
func Encode(set *TunnelSet) ([]byte, error) {
	for k, v := range map[string]string{keyBotToken: set.Bot.Token, keyBotAdminID: set.Bot.AdminID} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("%s must be a single line", k)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s=%s\n", keyHealthCheckPort, formatHealthCheck(set.HealthCheck))
	fmt.Fprintf(&buf, "%s=%s\n", keyBotToken, set.Bot.Token)
	fmt.Fprintf(&buf, "%s=%s\n", keyBotAdminID, set.Bot.AdminID)

	for _, t := range set.Tunnels {
		line, err := json.Marshal(toRecord(t))
		if err != nil {
			return nil, fmt.Errorf("encode tunnel %s: %w", t.ID, err)
		}
		buf.WriteString(markerStart + "\n")
		buf.Write(line)
		buf.WriteString("\n" + markerEnd + "\n")
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
