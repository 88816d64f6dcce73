package idxconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalSettings is the process-wide ~/.mcp/search/settings.yaml layer:
// defaults that seed a fresh per-index config.json the first time
// create_index runs for a project. A project's own config.json always
// wins over these once it exists.
type GlobalSettings struct {
	DefaultAlpha   float64 `yaml:"defaultAlpha"`
	DefaultBackend string  `yaml:"defaultBackend"`
	LogLevel       string  `yaml:"logLevel"`
}

// GlobalSettingsPath returns ~/.mcp/search/settings.yaml.
func GlobalSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcp", "search", "settings.yaml")
	}
	return filepath.Join(home, ".mcp", "search", "settings.yaml")
}

// LoadGlobalSettings reads the global settings file. A missing or
// unparsable file yields a zero-value GlobalSettings (no overrides),
// the same tolerant-of-absence contract as the per-index Config Store.
func LoadGlobalSettings() GlobalSettings {
	data, err := os.ReadFile(GlobalSettingsPath())
	if err != nil {
		return GlobalSettings{}
	}
	var s GlobalSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return GlobalSettings{}
	}
	return s
}

// DefaultWithGlobalSettings returns Default() with any non-zero global
// settings layered on top, for seeding a brand-new config.json.
func DefaultWithGlobalSettings(s GlobalSettings) *Config {
	cfg := Default()
	if s.DefaultAlpha > 0 {
		cfg.DefaultAlpha = s.DefaultAlpha
	}
	if s.DefaultBackend != "" {
		cfg.DefaultMode = s.DefaultBackend
	}
	return cfg
}
