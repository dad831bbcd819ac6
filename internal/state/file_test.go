package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.conf"))

	set, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.HealthCheck.Enabled())
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state", "tunnels.conf"))

	set := NewTunnelSet()
	set.HealthCheck = HealthCheck{Port: 8081}
	set.Bot = BotSettings{Token: "123456:ABC-def_ghi", AdminID: "42"}
	set.Append(Tunnel{Addresses: []string{"10.0.0.1", "2001:db8::1"}, Ports: []int{443, 80}, Mode: ModeTCP})
	set.Append(Tunnel{Addresses: []string{"192.0.2.7"}, Ports: []int{8080}, Mode: ModeHTTP})

	require.NoError(t, store.Save(ctx, set))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "tunnels.conf"))

	set := threeTunnels()
	require.NoError(t, store.Save(ctx, set))

	_, err := set.Remove(0)
	require.NoError(t, err)
	set.HealthCheck = HealthCheck{}
	require.NoError(t, store.Save(ctx, set))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)
}

func TestEncode_Format(t *testing.T) {
	set := NewTunnelSet()
	set.Append(Tunnel{ID: "abc", Addresses: []string{"10.0.0.1"}, Ports: []int{80, 443}, Mode: ModeTCP})

	data, err := Encode(set)
	require.NoError(t, err)

	want := "HEALTH_CHECK_PORT=\n" +
		"TELEGRAM_BOT_TOKEN=\n" +
		"TELEGRAM_ADMIN_ID=\n" +
		"TUNNEL_START\n" +
		`{"backend_ip":"10.0.0.1","ports":"80,443","mode":"tcp","id":"abc"}` + "\n" +
		"TUNNEL_END\n"
	assert.Equal(t, want, string(data))
}

func TestDecode_LegacyRecords(t *testing.T) {
	input := strings.Join([]string{
		"HEALTH_CHECK_PORT=none",
		"TELEGRAM_BOT_TOKEN=",
		"TELEGRAM_ADMIN_ID=",
		"TUNNEL_START",
		`{"backend_ip":"10.0.0.1,10.0.0.2",`,
		`  "ports":"80,443","mode":"HTTP"}`,
		"TUNNEL_END",
		"TUNNEL_START",
		`{"backend_ip":"10.9.9.9","ports":"22","mode":"tcp"}`, // unterminated
		"TUNNEL_START",
		`{"backend_ip":"::1","ports":"53","mode":""}`,
		"TUNNEL_END",
		"TUNNEL_END", // stray
		"",
	}, "\n")

	set, err := Decode([]byte(input))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, set.Tunnels[0].Addresses)
	assert.Equal(t, []int{80, 443}, set.Tunnels[0].Ports)
	assert.Equal(t, ModeHTTP, set.Tunnels[0].Mode)
	assert.Equal(t, ModeTCP, set.Tunnels[1].Mode, "blank mode defaults to tcp")
	assert.False(t, set.HealthCheck.Enabled())

	assert.True(t, set.HasGeneratedIDs())
	assert.NotEmpty(t, set.Tunnels[0].ID)
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad json": "TUNNEL_START\n{not json}\nTUNNEL_END\n",
		"bad port": "TUNNEL_START\n{\"backend_ip\":\"10.0.0.1\",\"ports\":\"70000\",\"mode\":\"tcp\"}\nTUNNEL_END\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestDecode_BadHealthCheckLoadsDisabled(t *testing.T) {
	input := "HEALTH_CHECK_PORT=abc\nTUNNEL_START\n{\"backend_ip\":\"10.0.0.1\",\"ports\":\"80\",\"mode\":\"tcp\"}\nTUNNEL_END\n"

	set, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.False(t, set.HealthCheck.Enabled())
	assert.Equal(t, 1, set.Len())

	set.HealthCheck = HealthCheck{Port: 8081}
	out, err := Encode(set)
	require.NoError(t, err)
	assert.Contains(t, string(out), "HEALTH_CHECK_PORT=8081\n")
}

func TestFileStore_LoadCorruptIsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunnels.conf")
	require.NoError(t, os.WriteFile(path, []byte("TUNNEL_START\n{\nTUNNEL_END\n"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestFileStore_Lock(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tunnels.conf"))

	unlock, err := store.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = store.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second lock should wait and time out")

	unlock()

	unlock2, err := store.Lock(context.Background())
	require.NoError(t, err)
	unlock2()
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file", filepath.Join(dir, "a.conf"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("etcd", "x")
	assert.Error(t, err)
}
