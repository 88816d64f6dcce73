// Package idxconfig implements the per-index Config Store: user-tunable
// include/exclude globs, size caps, and indexing strategy selection,
// persisted as config.json with unknown and "_"-prefixed keys preserved
// verbatim across a save/load round trip.
package idxconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/codesearch/engine/internal/atomicstore"
)

// Strategy selects how file-change events are applied to the index.
type Strategy string

const (
	StrategyEager Strategy = "eager"
	StrategyLazy  Strategy = "lazy"
)

// Config is the per-index user-tunable configuration (spec.md §3).
type Config struct {
	Include          []string `json:"include"`
	Exclude          []string `json:"exclude"`
	RespectGitignore bool     `json:"respectGitignore"`
	MaxFileSize      string   `json:"maxFileSize"`
	MaxFiles         int      `json:"maxFiles"`
	IndexingStrategy Strategy `json:"indexingStrategy"`

	// DefaultAlpha and DefaultMode are search-time fallbacks seeded from
	// the global settings file (see settings.go) the first time a
	// project is indexed; zero/empty means "use hybridsearch's own
	// built-in default". A search request's own Alpha/Mode still wins
	// over both.
	DefaultAlpha float64 `json:"defaultAlpha,omitempty"`
	DefaultMode  string  `json:"defaultMode,omitempty"`

	// extra preserves unknown top-level keys (and any "_"-prefixed
	// documentation keys) verbatim across load/save.
	extra map[string]json.RawMessage
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Include:          []string{"**/*"},
		Exclude:          []string{},
		RespectGitignore: true,
		MaxFileSize:      "1MB",
		MaxFiles:         50000,
		IndexingStrategy: StrategyEager,
	}
}

// knownKeys lists the JSON keys Config itself understands; anything else
// found on load is preserved in extra.
var knownKeys = map[string]struct{}{
	"include": {}, "exclude": {}, "respectGitignore": {},
	"maxFileSize": {}, "maxFiles": {}, "indexingStrategy": {},
	"defaultAlpha": {}, "defaultMode": {},
}

// MaxFileSizeBytes parses the "<n>(KB|MB)" size-cap syntax.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	return ParseSize(c.MaxFileSize)
}

// ParseSize parses a "<n>(KB|MB)" string into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	var mult int64 = 1
	var numPart string
	switch {
	case strings.HasSuffix(upper, "KB"):
		mult = 1024
		numPart = s[:len(s)-2]
	case strings.HasSuffix(upper, "MB"):
		mult = 1024 * 1024
		numPart = s[:len(s)-2]
	case strings.HasSuffix(upper, "B"):
		numPart = s[:len(s)-1]
	default:
		numPart = s
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n * float64(mult)), nil
}

// Load reads config.json from path. A missing file yields Default()
// with no error (Config Store tolerates absence). Corrupt JSON falls
// back to defaults with a logged warning, per spec.md §4.4.
func Load(path string) *Config {
	var raw map[string]json.RawMessage
	if err := atomicstore.LoadJSON(path, &raw, 0); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config_invalid_falling_back_to_defaults", slog.String("path", path), slog.String("error", err.Error()))
		}
		return Default()
	}

	cfg := Default()
	if v, ok := raw["include"]; ok {
		_ = json.Unmarshal(v, &cfg.Include)
	}
	if v, ok := raw["exclude"]; ok {
		_ = json.Unmarshal(v, &cfg.Exclude)
	}
	if v, ok := raw["respectGitignore"]; ok {
		_ = json.Unmarshal(v, &cfg.RespectGitignore)
	}
	if v, ok := raw["maxFileSize"]; ok {
		_ = json.Unmarshal(v, &cfg.MaxFileSize)
	}
	if v, ok := raw["maxFiles"]; ok {
		_ = json.Unmarshal(v, &cfg.MaxFiles)
	}
	if v, ok := raw["indexingStrategy"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			cfg.IndexingStrategy = Strategy(s)
		}
	}
	if v, ok := raw["defaultAlpha"]; ok {
		_ = json.Unmarshal(v, &cfg.DefaultAlpha)
	}
	if v, ok := raw["defaultMode"]; ok {
		_ = json.Unmarshal(v, &cfg.DefaultMode)
	}

	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if _, known := knownKeys[k]; known {
			continue
		}
		extra[k] = v
	}
	cfg.extra = extra

	if _, err := cfg.MaxFileSizeBytes(); err != nil {
		slog.Warn("config_invalid_falling_back_to_defaults", slog.String("path", path), slog.String("error", err.Error()))
		fresh := Default()
		fresh.extra = extra
		return fresh
	}

	return cfg
}

// Save persists cfg to path atomically, preserving unknown/"_"-prefixed
// keys exactly as they were loaded.
func Save(path string, cfg *Config) error {
	merged := make(map[string]any, len(cfg.extra)+6)
	for k, v := range cfg.extra {
		merged[k] = v
	}
	merged["include"] = cfg.Include
	merged["exclude"] = cfg.Exclude
	merged["respectGitignore"] = cfg.RespectGitignore
	merged["maxFileSize"] = cfg.MaxFileSize
	merged["maxFiles"] = cfg.MaxFiles
	merged["indexingStrategy"] = cfg.IndexingStrategy
	if cfg.DefaultAlpha > 0 {
		merged["defaultAlpha"] = cfg.DefaultAlpha
	}
	if cfg.DefaultMode != "" {
		merged["defaultMode"] = cfg.DefaultMode
	}
	return atomicstore.SaveJSON(path, merged)
}
