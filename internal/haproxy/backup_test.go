package haproxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portgate/internal/clock"
)

func TestBackupManager(t *testing.T) {
	restore := clock.Use(clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	defer restore()

	dir := t.TempDir()
	live := filepath.Join(dir, "haproxy.cfg")
	bm := NewBackupManager(live, "", 2)
	assert.Equal(t, filepath.Join(dir, "portgate-backups"), bm.Dir())

	info, err := bm.CreateBackup("nothing yet")
	require.NoError(t, err)
	assert.Nil(t, info)

	for _, body := range []string{"one\n", "two\n", "three\n"} {
		require.NoError(t, os.WriteFile(live, []byte(body), 0o644))
		_, err := bm.CreateBackup("before " + body)
		require.NoError(t, err)
	}

	backups, err := bm.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, 3, backups[0].Version)
	assert.Equal(t, 2, backups[1].Version)
	assert.Equal(t, "before three\n", backups[0].Description)
	assert.Equal(t, int64(len("three\n")), backups[0].Size)

	content, err := bm.Content(2)
	require.NoError(t, err)
	assert.Equal(t, "two\n", content)

	_, err = bm.GetBackup(1)
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestBackupManager_MissingDir(t *testing.T) {
	bm := NewBackupManager(filepath.Join(t.TempDir(), "haproxy.cfg"), "", 0)
	backups, err := bm.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}
