// Package config holds the application configuration: where the registry
// database, tool packages and execution work directory live, plus logging
// settings.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Config represents application configuration
type Config struct {
	// DataDir holds the registry database and fetched built-in binaries.
	DataDir string `json:"data_dir"`
	// ToolDir is watched for user tool packages (*.zip).
	ToolDir string `json:"tool_dir"`
	// WorkDir roots the real-filesystem bridge for file-access tools.
	// Empty disables the bridge entirely.
	WorkDir string `json:"work_dir,omitempty"`
	// BuiltinList points to the curated built-in tool list (YAML).
	BuiltinList string `json:"builtin_list,omitempty"`
	// DisableWorkers forces all executions onto the in-process path.
	DisableWorkers bool `json:"disable_workers,omitempty"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "wasmwerk")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "wasmwerk")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "wasmwerk")
	}
}

func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return defaultConfigDir()
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "share", "wasmwerk")
	}
}

// DefaultConfig returns default configuration. ToolDir and LogPath stay
// empty here so Load can derive them from the effective DataDir, which a
// config file may override.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     defaultDataDir(),
		BuiltinList: filepath.Join(defaultConfigDir(), "builtins.yaml"),
		LogLevel:    "info",
	}
}

// Load loads configuration from file. A missing file yields the defaults;
// fields present in the file override them.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, err
	}

	if config.DataDir == "" {
		config.DataDir = defaultDataDir()
	}
	if config.ToolDir == "" {
		config.ToolDir = filepath.Join(config.DataDir, "tools")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(config.DataDir, "wasmwerk.log")
	}
	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// RegistryPath returns the SQLite registry database path.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}
