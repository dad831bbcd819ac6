// Package brand provides centralized naming and default paths.
//
// The brand identity is loaded from brand.json at compile time via go:embed,
// so packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultLogDir    string `json:"defaultLogDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	StateFileName    string `json:"stateFileName"`
	ProxyName        string `json:"proxyName"`
	ProxyConfigPath  string `json:"proxyConfigPath"`
	ProxyServiceName string `json:"proxyServiceName"`
	Copyright        string `json:"copyright"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultRunDir = b.DefaultRunDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	StateFileName = b.StateFileName
	ProxyName = b.ProxyName
	ProxyConfigPath = b.ProxyConfigPath
	ProxyServiceName = b.ProxyServiceName
}

// Exported variables for convenience
var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultRunDir    string
	BinaryName       string
	ConfigFileName   string
	StateFileName    string
	ProxyName        string
	ProxyConfigPath  string
	ProxyServiceName string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: PORTGATE_CONFIG_DIR > PORTGATE_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: PORTGATE_STATE_DIR > PORTGATE_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// ConfigFilePath returns the default location of the HCL config file.
func ConfigFilePath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// StateFilePath returns the default location of the tunnel state file.
func StateFilePath() string {
	return filepath.Join(GetConfigDir(), StateFileName)
}
