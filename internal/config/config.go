// Package config holds the viper-backed configuration shared by the CLI and
// the daemon. Values resolve flag > environment > config file > default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/untoldecay/LoomLog/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .loom/config.yaml > ~/.config/loom/config.yaml >
	// ~/.loom/config.yaml
	configFileSet := false

	// Walk up from CWD so commands work from subdirectories.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".loom", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "loom", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".loom", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. LOOM_DB, LOOM_LOG_LEVEL, LOOM_SYNC_INTERVAL_MS.
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Store and process plumbing.
	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("data-dir", "")
	v.SetDefault("log_level", "info")

	// Adapter configuration.
	v.SetDefault("workspace_roots", []string{})
	v.SetDefault("editor_db_path", "")
	v.SetDefault("history_files", []map[string]string{})
	v.SetDefault("sync_interval_ms", 30000)
	v.SetDefault("clipboard_interval_ms", 1000)
	v.SetDefault("status_interval_ms", 2000)
	v.SetDefault("status_probe_cmd", "")

	// Retention and correlation.
	v.SetDefault("retention_days", 30)
	v.SetDefault("correlation_window_back_ms", 300000)
	v.SetDefault("correlation_window_forward_ms", 30000)

	// Facade and writer tuning.
	v.SetDefault("cache_ttl_ms", 60000)
	v.SetDefault("write_queue_depth", 256)

	// Pass-through options owned by downstream collaborators.
	v.SetDefault("pii_redaction", false)
	v.SetDefault("fuzz_semantic_expressiveness", 0)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("Debug: loaded config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("Debug: no config.yaml found; using defaults and environment variables\n")
	}

	return nil
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// MillisDuration reads a *_ms key as a time.Duration.
func MillisDuration(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Millisecond
}

// DataDir resolves the loom data directory: the data-dir key when set,
// otherwise ~/.loom.
func DataDir() string {
	if dir := GetString("data-dir"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loom"
	}
	return filepath.Join(home, ".loom")
}

// DBPath resolves the store path: the db key when set, otherwise
// <data-dir>/loom.db.
func DBPath() string {
	if p := GetString("db"); p != "" {
		return expandHome(p)
	}
	return filepath.Join(DataDir(), "loom.db")
}

// HistoryFile is one configured shell-history source.
type HistoryFile struct {
	Path  string
	Shell string
}

// HistoryFiles returns the configured {path, shell} pairs.
func HistoryFiles() []HistoryFile {
	if v == nil {
		return nil
	}
	raw, ok := v.Get("history_files").([]interface{})
	if !ok {
		return nil
	}
	var files []HistoryFile
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		hf := HistoryFile{}
		if p, ok := m["path"].(string); ok {
			hf.Path = expandHome(p)
		}
		if s, ok := m["shell"].(string); ok {
			hf.Shell = s
		}
		if hf.Path != "" {
			files = append(files, hf)
		}
	}
	return files
}

// DefaultHistoryFiles lists the conventional history locations that exist on
// this machine, for when history_files is not configured.
func DefaultHistoryFiles() []HistoryFile {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	candidates := []HistoryFile{
		{Path: filepath.Join(home, ".zsh_history"), Shell: "zsh"},
		{Path: filepath.Join(home, ".bash_history"), Shell: "bash"},
		{Path: filepath.Join(home, ".sh_history"), Shell: "sh"},
	}
	var found []HistoryFile
	for _, c := range candidates {
		if _, err := os.Stat(c.Path); err == nil {
			found = append(found, c)
		}
	}
	return found
}

// WorkspaceRoots returns the configured workspace roots with ~ expanded.
func WorkspaceRoots() []string {
	roots := GetStringSlice("workspace_roots")
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r = expandHome(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// EditorDBPath returns the sidecar store path with ~ expanded.
func EditorDBPath() string {
	return expandHome(GetString("editor_db_path"))
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
