package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// EnvPrefix is the leading token of every configuration override
	// variable.
	EnvPrefix = "WRITEBACK"

	// maxConfigBytes caps the size of a config file read from disk.
	maxConfigBytes = 1 << 20

	// maxJSONDepth caps nesting in parsed config documents.
	maxJSONDepth = 32
)

// Loader assembles a Config from defaults, JSON layers, and environment
// overrides, in that order of precedence (later wins).
type Loader struct {
	layers []map[string]any
}

// NewLoader returns an empty Loader. Calling Load with no layers yields
// DefaultConfig with environment overrides applied.
func NewLoader() *Loader {
	return &Loader{}
}

// AddLayer parses raw JSON and stacks it on top of previously added
// layers.
func (l *Loader) AddLayer(raw []byte) error {
	layer, err := parseLayer(raw)
	if err != nil {
		return err
	}
	l.layers = append(l.layers, layer)
	return nil
}

// LoadFile reads a JSON config file and stacks it as a layer.
func (l *Loader) LoadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigBytes {
		return fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigBytes)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := l.AddLayer(raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Load merges defaults, layers, and environment overrides into a
// validated Config.
func (l *Loader) Load() (*Config, error) {
	base, err := toMap(DefaultConfig())
	if err != nil {
		return nil, err
	}
	for _, layer := range l.layers {
		deepMergeMaps(base, layer)
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("merge config layers: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(merged, cfg); err != nil {
		return nil, fmt.Errorf("decode merged config: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseLayer(raw []byte) (map[string]any, error) {
	var layer map[string]any
	if err := json.Unmarshal(raw, &layer); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if depth := jsonDepth(layer, 1); depth > maxJSONDepth {
		return nil, fmt.Errorf("JSON nesting exceeds %d levels", maxJSONDepth)
	}
	return layer, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return m, nil
}

// deepMergeMaps merges src into dst. Nested maps merge recursively;
// every other value, slices included, overwrites wholesale.
func deepMergeMaps(dst, src map[string]any) {
	for key, srcVal := range src {
		if dstMap, ok := dst[key].(map[string]any); ok {
			if srcMap, ok := srcVal.(map[string]any); ok {
				deepMergeMaps(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

func jsonDepth(v any, depth int) int {
	max := depth
	switch value := v.(type) {
	case map[string]any:
		for _, child := range value {
			if d := jsonDepth(child, depth+1); d > max {
				max = d
			}
		}
	case []any:
		for _, child := range value {
			if d := jsonDepth(child, depth+1); d > max {
				max = d
			}
		}
	}
	return max
}

// applyEnvOverrides applies WRITEBACK_* variables on top of the merged
// configuration. Only deployment-level settings are overridable; the
// full topology stays in config files.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvPrefix + "_SERVICE_NAME"); v != "" {
		cfg.Service.Name = v
	}
	if v := os.Getenv(EnvPrefix + "_ENVIRONMENT"); v != "" {
		cfg.Service.Environment = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv(EnvPrefix + "_BROKER_URLS"); v != "" {
		urls := strings.Split(v, ",")
		for i := range urls {
			urls[i] = strings.TrimSpace(urls[i])
		}
		cfg.Broker.URLs = urls
	}
	if v := os.Getenv(EnvPrefix + "_BROKER_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv(EnvPrefix + "_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv(EnvPrefix + "_BROKER_TOKEN"); v != "" {
		cfg.Broker.Token = v
	}
	if v := os.Getenv(EnvPrefix + "_DOCSTORE_DRIVER"); v != "" {
		cfg.DocStore.Driver = v
	}
	if v := os.Getenv(EnvPrefix + "_DOCSTORE_DSN"); v != "" {
		cfg.DocStore.DSN = v
	}
	if v := os.Getenv(EnvPrefix + "_FASTSTORE_MODE"); v != "" {
		cfg.FastStore.Mode = v
	}
	if v := os.Getenv(EnvPrefix + "_FASTSTORE_TTL"); v != "" {
		ttl, err := parseDurationWithDays(v)
		if err != nil {
			return fmt.Errorf("invalid %s_FASTSTORE_TTL: %w", EnvPrefix, err)
		}
		cfg.FastStore.TTL = Duration(ttl)
	}
	if v := os.Getenv(EnvPrefix + "_BATCH_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s_BATCH_SIZE: %w", EnvPrefix, err)
		}
		cfg.Batch.Size = size
	}
	if v := os.Getenv(EnvPrefix + "_BATCH_TIMEOUT"); v != "" {
		timeout, err := parseDurationWithDays(v)
		if err != nil {
			return fmt.Errorf("invalid %s_BATCH_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Batch.Timeout = Duration(timeout)
	}
	if v := os.Getenv(EnvPrefix + "_OPS_ADDR"); v != "" {
		cfg.Ops.ListenAddr = v
	}
	return nil
}
