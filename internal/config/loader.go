package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey lets one config file pull in shared base files.
const includeKey = "$include"

// LoadRaw reads a configuration file into a raw map with environment
// variables expanded and $include directives merged underneath it.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	return loadRaw(path, map[string]bool{})
}

func loadRaw(path string, visiting map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visiting[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	visiting[absPath] = true
	defer delete(visiting, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	raw, err := parseRawBytes([]byte(expandEnv(string(data))), absPath)
	if err != nil {
		return nil, err
	}

	includes, err := popIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(absPath), inc)
		}
		base, err := loadRaw(inc, visiting)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, base)
	}
	return mergeMaps(merged, raw), nil
}

// parseRawBytes decodes YAML by default and JSON5 for .json and .json5 files.
func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	raw := map[string]any{}

	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return nil, errors.New("failed to parse config: expected single document")
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// expandEnv substitutes $VAR and ${VAR} references, keeping the include
// key itself intact.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if "$"+name == includeKey {
			return includeKey
		}
		return os.Getenv(name)
	})
}

func popIncludes(raw map[string]any) ([]string, error) {
	value, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := value.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			path, ok := entry.(string)
			if !ok || strings.TrimSpace(path) == "" {
				return nil, errors.New("include entries must be non-empty strings")
			}
			paths = append(paths, path)
		}
		return paths, nil
	default:
		return nil, errors.New("include must be a string or list of strings")
	}
}

// mergeMaps overlays src onto dst, merging nested maps key by key.
func mergeMaps(dst, src map[string]any) map[string]any {
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, nested)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig round-trips the merged map through YAML so unknown keys are rejected.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
