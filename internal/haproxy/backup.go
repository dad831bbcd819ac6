package haproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grimm.is/portgate/internal/clock"
)

// ErrBackupNotFound is returned when a requested version does not exist.
var ErrBackupNotFound = errors.New("backup not found")

// BackupManager keeps versioned copies of the live haproxy.cfg.
type BackupManager struct {
	livePath   string
	backupDir  string
	maxBackups int
}

// BackupInfo describes one backup.
type BackupInfo struct {
	Version     int       `json:"version" yaml:"version"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Description string    `json:"description" yaml:"description"`
	Path        string    `json:"path" yaml:"path"`
	Size        int64     `json:"size" yaml:"size"`
	Hash        string    `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// NewBackupManager creates a manager for livePath. An empty backupDir
// places backups next to the live file.
func NewBackupManager(livePath, backupDir string, maxBackups int) *BackupManager {
	if maxBackups <= 0 {
		maxBackups = 10
	}
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(livePath), "portgate-backups")
	}
	return &BackupManager{
		livePath:   livePath,
		backupDir:  backupDir,
		maxBackups: maxBackups,
	}
}

// Dir returns the backup directory.
func (b *BackupManager) Dir() string {
	return b.backupDir
}

// CreateBackup copies the live file into a new version. It returns
// (nil, nil) when there is no live file yet.
func (b *BackupManager) CreateBackup(description string) (*BackupInfo, error) {
	data, err := os.ReadFile(b.livePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read live config: %w", err)
	}

	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	backups, _ := b.ListBackups()
	version := 1
	if len(backups) > 0 {
		version = backups[0].Version + 1
	}

	ts := clock.Now()
	name := fmt.Sprintf("haproxy.%d.%s.cfg", version, ts.Format("20060102-150405"))
	path := filepath.Join(b.backupDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	info := &BackupInfo{
		Version:     version,
		Timestamp:   ts,
		Description: description,
		Path:        path,
		Size:        int64(len(data)),
		Hash:        Document{Text: string(data)}.Hash(),
	}
	meta, _ := json.MarshalIndent(info, "", "  ")
	if err := os.WriteFile(path+".meta.json", meta, 0o644); err != nil {
		return nil, fmt.Errorf("write backup metadata: %w", err)
	}

	b.prune()
	return info, nil
}

// ListBackups returns backups newest first.
func (b *BackupManager) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(b.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cfg") {
			continue
		}
		path := filepath.Join(b.backupDir, entry.Name())

		var info BackupInfo
		if meta, err := os.ReadFile(path + ".meta.json"); err == nil {
			_ = json.Unmarshal(meta, &info)
		}
		info.Path = path
		if fi, err := entry.Info(); err == nil {
			if info.Timestamp.IsZero() {
				info.Timestamp = fi.ModTime()
			}
			if info.Size == 0 {
				info.Size = fi.Size()
			}
		}
		if info.Version == 0 {
			var v int
			fmt.Sscanf(entry.Name(), "haproxy.%d.", &v)
			info.Version = v
		}
		if info.Version == 0 {
			continue
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Version > backups[j].Version
	})
	return backups, nil
}

// GetBackup returns a specific version.
func (b *BackupManager) GetBackup(version int) (*BackupInfo, error) {
	backups, err := b.ListBackups()
	if err != nil {
		return nil, err
	}
	for i := range backups {
		if backups[i].Version == version {
			return &backups[i], nil
		}
	}
	return nil, fmt.Errorf("%w: version %d", ErrBackupNotFound, version)
}

// Content returns the stored configuration text of a version.
func (b *BackupManager) Content(version int) (string, error) {
	info, err := b.GetBackup(version)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		return "", fmt.Errorf("read backup %d: %w", version, err)
	}
	return string(data), nil
}

func (b *BackupManager) prune() {
	backups, err := b.ListBackups()
	if err != nil || len(backups) <= b.maxBackups {
		return
	}
	for _, old := range backups[b.maxBackups:] {
		os.Remove(old.Path)
		os.Remove(old.Path + ".meta.json")
	}
}
