package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/k4r01q/rung/internal/logs"
)

// Config is the per-repository configuration persisted next to the stack.
type Config struct {
	Trunk       string `json:"trunk"`
	Remote      string `json:"remote"`
	MergeMethod string `json:"merge_method"`
	NoColor     bool   `json:"no_color"`
}

// Default returns the repo config defaults, with global-config overrides
// applied where set.
func Default() Config {
	cfg := Config{
		Trunk:       "main",
		Remote:      "origin",
		MergeMethod: "squash",
	}
	g := global()
	if g.Trunk != "" {
		cfg.Trunk = g.Trunk
	}
	if g.MergeMethod != "" {
		cfg.MergeMethod = g.MergeMethod
	}
	cfg.NoColor = cfg.NoColor || g.NoColor
	return cfg
}

// APIBaseURL returns the forge API base, overridable for GitHub Enterprise
// via the global config or RUNG_API_URL.
func APIBaseURL() string {
	if v := os.Getenv("RUNG_API_URL"); v != "" {
		return v
	}
	if g := global(); g.APIURL != "" {
		return g.APIURL
	}
	return "https://api.github.com"
}

// Global user-level settings, read from $XDG_CONFIG_HOME/rung/config.yaml.
type globalConfig struct {
	Trunk       string `yaml:"trunk,omitempty"`
	MergeMethod string `yaml:"merge_method,omitempty"`
	NoColor     bool   `yaml:"no_color,omitempty"`
	APIURL      string `yaml:"github_api_url,omitempty"`
}

var (
	globalCfg    globalConfig
	globalLoaded bool
)

func global() globalConfig {
	if globalLoaded {
		return globalCfg
	}
	globalLoaded = true

	path, err := globalPath()
	if err != nil {
		return globalCfg
	}
	content, err := os.ReadFile(path)
	if err != nil {
		// Missing file is the common case on first run.
		return globalCfg
	}
	if err := yaml.Unmarshal(content, &globalCfg); err != nil {
		logs.Warn("Ignoring malformed global config %s: %v", path, err)
		globalCfg = globalConfig{}
	}
	return globalCfg
}

func globalPath() (string, error) {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "rung", "config.yaml"), nil
}
