package config

import (
	"fmt"
	"path/filepath"
	"time"

	"grimm.is/portgate/internal/brand"
	"grimm.is/portgate/internal/haproxy"
)

// CurrentSchemaVersion is the only schema version this build understands.
const CurrentSchemaVersion = "1.0"

// Config is the top-level application configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	State   *StateConfig   `hcl:"state,block" json:"state,omitempty"`
	HAProxy *HAProxyConfig `hcl:"haproxy,block" json:"haproxy,omitempty"`
	Log     *LogConfig     `hcl:"log,block" json:"log,omitempty"`
	Bot     *BotConfig     `hcl:"bot,block" json:"bot,omitempty"`
	Metrics *MetricsConfig `hcl:"metrics,block" json:"metrics,omitempty"`
	History *HistoryConfig `hcl:"history,block" json:"history,omitempty"`
}

// StateConfig selects the tunnel store.
type StateConfig struct {
	Backend string `hcl:"backend,optional" json:"backend,omitempty"` // "file" or "sqlite"
	Path    string `hcl:"path,optional" json:"path,omitempty"`
}

// HAProxyConfig describes the managed proxy.
type HAProxyConfig struct {
	ConfigPath  string `hcl:"config_path,optional" json:"config_path,omitempty"`
	StagingPath string `hcl:"staging_path,optional" json:"staging_path,omitempty"`
	Binary      string `hcl:"binary,optional" json:"binary,omitempty"`
	Service     string `hcl:"service,optional" json:"service,omitempty"`
	BackupDir   string `hcl:"backup_dir,optional" json:"backup_dir,omitempty"`
	MaxBackups  int    `hcl:"max_backups,optional" json:"max_backups,omitempty"`

	MaxConn        int    `hcl:"maxconn,optional" json:"maxconn,omitempty"`
	TimeoutConnect string `hcl:"timeout_connect,optional" json:"timeout_connect,omitempty"`
	TimeoutClient  string `hcl:"timeout_client,optional" json:"timeout_client,omitempty"`
	TimeoutServer  string `hcl:"timeout_server,optional" json:"timeout_server,omitempty"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// BotConfig tunes the Telegram long-poll loop. Credentials live in the
// state file, not here.
type BotConfig struct {
	PollTimeout string `hcl:"poll_timeout,optional" json:"poll_timeout,omitempty"`
	APIURL      string `hcl:"api_url,optional" json:"api_url,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint while the bot runs.
type MetricsConfig struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// HistoryConfig controls the operation journal.
type HistoryConfig struct {
	Disabled      bool   `hcl:"disabled,optional" json:"disabled,omitempty"`
	Path          string `hcl:"path,optional" json:"path,omitempty"`
	RetentionDays int    `hcl:"retention_days,optional" json:"retention_days,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		State: &StateConfig{
			Backend: "file",
			Path:    brand.StateFilePath(),
		},
		HAProxy: &HAProxyConfig{
			ConfigPath:     brand.ProxyConfigPath,
			StagingPath:    filepath.Join(brand.GetStateDir(), "haproxy.cfg.staging"),
			Binary:         brand.ProxyName,
			Service:        brand.ProxyServiceName,
			BackupDir:      filepath.Join(brand.GetStateDir(), "backups"),
			MaxBackups:     10,
			MaxConn:        4096,
			TimeoutConnect: "5s",
			TimeoutClient:  "50s",
			TimeoutServer:  "50s",
		},
		Log: &LogConfig{Level: "info"},
		Bot: &BotConfig{
			PollTimeout: "30s",
			APIURL:      "https://api.telegram.org",
		},
		Metrics: &MetricsConfig{},
		History: &HistoryConfig{
			Path:          filepath.Join(brand.GetStateDir(), "history.db"),
			RetentionDays: 90,
		},
	}
}

// applyDefaults fills every unset field from Default().
func (c *Config) applyDefaults() {
	d := Default()
	if c.SchemaVersion == "" {
		c.SchemaVersion = d.SchemaVersion
	}

	if c.State == nil {
		c.State = d.State
	} else {
		setDefault(&c.State.Backend, d.State.Backend)
		if c.State.Path == "" {
			c.State.Path = d.State.Path
			if c.State.Backend == "sqlite" {
				c.State.Path = filepath.Join(brand.GetStateDir(), "tunnels.db")
			}
		}
	}

	if c.HAProxy == nil {
		c.HAProxy = d.HAProxy
	} else {
		h, dh := c.HAProxy, d.HAProxy
		setDefault(&h.ConfigPath, dh.ConfigPath)
		setDefault(&h.StagingPath, dh.StagingPath)
		setDefault(&h.Binary, dh.Binary)
		setDefault(&h.Service, dh.Service)
		setDefault(&h.BackupDir, dh.BackupDir)
		setDefault(&h.TimeoutConnect, dh.TimeoutConnect)
		setDefault(&h.TimeoutClient, dh.TimeoutClient)
		setDefault(&h.TimeoutServer, dh.TimeoutServer)
		if h.MaxBackups <= 0 {
			h.MaxBackups = dh.MaxBackups
		}
		if h.MaxConn <= 0 {
			h.MaxConn = dh.MaxConn
		}
	}

	if c.Log == nil {
		c.Log = d.Log
	} else {
		setDefault(&c.Log.Level, d.Log.Level)
	}

	if c.Bot == nil {
		c.Bot = d.Bot
	} else {
		setDefault(&c.Bot.PollTimeout, d.Bot.PollTimeout)
		setDefault(&c.Bot.APIURL, d.Bot.APIURL)
	}

	if c.Metrics == nil {
		c.Metrics = d.Metrics
	}

	if c.History == nil {
		c.History = d.History
	} else {
		setDefault(&c.History.Path, d.History.Path)
		if c.History.RetentionDays <= 0 {
			c.History.RetentionDays = d.History.RetentionDays
		}
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks values that the decoder cannot.
func (c *Config) Validate() error {
	if c.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema_version %q (supported: %s)", c.SchemaVersion, CurrentSchemaVersion)
	}
	switch c.State.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("state.backend: unknown backend %q", c.State.Backend)
	}
	if c.HAProxy.StagingPath != "" && haproxy.SamePath(c.HAProxy.StagingPath, c.HAProxy.ConfigPath) {
		return fmt.Errorf("haproxy.staging_path: %q is the live config_path", c.HAProxy.StagingPath)
	}
	if _, err := c.HAProxy.RenderOptions(); err != nil {
		return err
	}
	if _, err := c.Bot.Timeout(); err != nil {
		return err
	}
	return nil
}

// RenderOptions converts the haproxy block into renderer options.
func (h *HAProxyConfig) RenderOptions() (haproxy.RenderOptions, error) {
	opts := haproxy.DefaultRenderOptions()
	opts.MaxConn = h.MaxConn

	for _, f := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout_connect", h.TimeoutConnect, &opts.TimeoutConnect},
		{"timeout_client", h.TimeoutClient, &opts.TimeoutClient},
		{"timeout_server", h.TimeoutServer, &opts.TimeoutServer},
	} {
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return opts, fmt.Errorf("haproxy.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return opts, nil
}

// ActivatorOptions converts the haproxy block into activator options.
// Runner and Logger are left for the caller.
func (h *HAProxyConfig) ActivatorOptions() haproxy.Options {
	return haproxy.Options{
		LivePath:    h.ConfigPath,
		StagingPath: h.StagingPath,
		Binary:      h.Binary,
		Service:     h.Service,
		BackupDir:   h.BackupDir,
		MaxBackups:  h.MaxBackups,
	}
}

// Timeout parses poll_timeout.
func (b *BotConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(b.PollTimeout)
	if err != nil {
		return 0, fmt.Errorf("bot.poll_timeout: %w", err)
	}
	return d, nil
}
