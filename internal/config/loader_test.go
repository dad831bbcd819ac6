package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_MissingYieldsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.Equal(t, "/etc/haproxy/haproxy.cfg", cfg.HAProxy.ConfigPath)
}

func TestLoadHCL(t *testing.T) {
	src := `
schema_version = "1.0"

state {
  backend = "sqlite"
}

haproxy {
  config_path     = "/tmp/haproxy.cfg"
  service         = "haproxy-edge"
  maxconn         = 1024
  timeout_connect = "250ms"
}

log {
  level = "debug"
  json  = true
}

metrics {
  listen = "127.0.0.1:9105"
}

history {
  retention_days = 30
}
`
	cfg, err := LoadHCL([]byte(src), "portgate.hcl")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.State.Backend)
	assert.Equal(t, "tunnels.db", filepath.Base(cfg.State.Path))
	assert.Equal(t, "/tmp/haproxy.cfg", cfg.HAProxy.ConfigPath)
	assert.Equal(t, "haproxy-edge", cfg.HAProxy.Service)
	assert.Equal(t, "haproxy", cfg.HAProxy.Binary)
	assert.Equal(t, 10, cfg.HAProxy.MaxBackups)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "127.0.0.1:9105", cfg.Metrics.Listen)
	assert.Equal(t, "https://api.telegram.org", cfg.Bot.APIURL)
	assert.Equal(t, 30, cfg.History.RetentionDays)
	assert.Equal(t, "history.db", filepath.Base(cfg.History.Path))
	assert.False(t, cfg.History.Disabled)

	opts, err := cfg.HAProxy.RenderOptions()
	require.NoError(t, err)
	assert.Equal(t, 1024, opts.MaxConn)
	assert.Equal(t, 250*time.Millisecond, opts.TimeoutConnect)
	assert.Equal(t, 50*time.Second, opts.TimeoutServer)

	act := cfg.HAProxy.ActivatorOptions()
	assert.Equal(t, "/tmp/haproxy.cfg", act.LivePath)
	assert.Equal(t, "haproxy-edge", act.Service)
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `state {`},
		{"unknown attribute", `colour = "blue"`},
		{"schema version", `schema_version = "9.0"`},
		{"backend", "state {\n  backend = \"etcd\"\n}\n"},
		{"duration", "haproxy {\n  timeout_client = \"soon\"\n}\n"},
		{"poll timeout", "bot {\n  poll_timeout = \"x\"\n}\n"},
		{"staging on live", "haproxy {\n  config_path  = \"/etc/haproxy/haproxy.cfg\"\n  staging_path = \"/etc/haproxy//haproxy.cfg\"\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"

	path := filepath.Join(t.TempDir(), "portgate.hcl")
	require.NoError(t, os.WriteFile(path, Encode(cfg), 0o644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
