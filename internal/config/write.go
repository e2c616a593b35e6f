package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// configKeys maps every key writable through `loom config set` to its value
// kind. history_files is structured (a list of path/shell pairs) and is
// managed by `loom init` rather than set.
var configKeys = map[string]string{
	"db":                            "string",
	"data-dir":                      "string",
	"log_level":                     "string",
	"workspace_roots":               "strings",
	"editor_db_path":                "string",
	"sync_interval_ms":              "int",
	"clipboard_interval_ms":         "int",
	"status_interval_ms":            "int",
	"status_probe_cmd":              "string",
	"retention_days":                "int",
	"correlation_window_back_ms":    "int",
	"correlation_window_forward_ms": "int",
	"cache_ttl_ms":                  "int",
	"write_queue_depth":             "int",
	"pii_redaction":                 "bool",
	"fuzz_semantic_expressiveness":  "int",
}

// WritableKeys returns the keys `loom config set` accepts, sorted.
func WritableKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// YamlConfigPath returns the file that writes target: the loaded config
// file when one exists, otherwise ~/.loom/config.yaml.
func YamlConfigPath() string {
	if path := ConfigFileUsed(); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".loom", "config.yaml")
	}
	return filepath.Join(home, ".loom", "config.yaml")
}

// SetYamlConfig persists key=value into config.yaml, preserving unrelated
// keys, and updates the live configuration so the current process sees the
// new value.
func SetYamlConfig(key, value string) error {
	key = strings.TrimSpace(key)
	kind, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(WritableKeys(), ", "))
	}

	parsed, err := coerceValue(kind, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	path := YamlConfigPath()
	settings, err := readYamlFile(path)
	if err != nil {
		return err
	}
	settings[key] = parsed

	if err := WriteYamlConfig(path, settings); err != nil {
		return err
	}
	Set(key, parsed)
	return nil
}

// UnsetYamlConfig removes key from config.yaml, reverting it to the
// default or environment value on next load.
func UnsetYamlConfig(key string) error {
	key = strings.TrimSpace(key)
	if _, ok := configKeys[key]; !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(WritableKeys(), ", "))
	}

	path := YamlConfigPath()
	settings, err := readYamlFile(path)
	if err != nil {
		return err
	}
	if _, present := settings[key]; !present {
		return nil
	}
	delete(settings, key)
	return WriteYamlConfig(path, settings)
}

// WriteYamlConfig writes settings to path as YAML, creating parent
// directories as needed.
func WriteYamlConfig(path string, settings map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func readYamlFile(path string) (map[string]interface{}, error) {
	settings := map[string]interface{}{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return settings, nil
}

func coerceValue(kind, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case "strings":
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case "int":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", raw)
		}
		return n, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}
