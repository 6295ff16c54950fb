// Package config manages YAML-based configuration and the configured workspace list.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	ErrDuplicateWorkspace = errors.New("workspace already exists")
	ErrInvalidWorkspace   = errors.New("invalid workspace")
)

// Workspace is a directory tree served by fxv: a local directory, a git ref of a local
// repository, or a JSON snapshot file.
type Workspace struct {
	Name     string   `yaml:"name" json:"name"`
	Path     string   `yaml:"path,omitempty" json:"path,omitempty"`
	GitRef   string   `yaml:"git_ref,omitempty" json:"git_ref,omitempty"`
	SubPath  string   `yaml:"sub_path,omitempty" json:"sub_path,omitempty"`
	Exclude  []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Snapshot string   `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
}

// Kind describes where the workspace tree comes from.
func (w Workspace) Kind() string {
	switch {
	case w.Snapshot != "":
		return "snapshot"
	case w.GitRef != "":
		return "git"
	default:
		return "local"
	}
}

// Latency is the simulated request latency range, in milliseconds.
type Latency struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Range returns the bounds as durations.
func (l Latency) Range() (time.Duration, time.Duration) {
	return time.Duration(l.Min) * time.Millisecond, time.Duration(l.Max) * time.Millisecond
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds all configuration options for fxv
type Config struct {
	Port         int           `yaml:"port"`
	Watch        bool          `yaml:"watch"`
	Exclude      []string      `yaml:"exclude"`
	Workspaces   []Workspace   `yaml:"workspaces,omitempty"`
	LatencyMS    Latency       `yaml:"latency_ms"`
	RefreshDelay time.Duration `yaml:"refresh_delay"`
	Log          Log           `yaml:"log"`

	// Internal: path to config file for saving
	configPath string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Watch:        true,
		Exclude:      []string{"node_modules", ".git", ".svn"},
		RefreshDelay: 300 * time.Millisecond,
		Log:          Log{Level: "info", Format: "console"},
		configPath:   GetConfigPath(),
	}
}

// GetConfigDir returns the config directory path
func GetConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "fxv")
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load loads the configuration. An explicit path must exist; without one the global file
// under the XDG config home is tried first, then ./fxv.yaml, and defaults are used when
// neither exists.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	cfgPath := path
	if cfgPath == "" {
		if _, err := os.Stat(GetConfigPath()); err == nil {
			cfgPath = GetConfigPath()
		} else if _, err := os.Stat("fxv.yaml"); err == nil {
			cfgPath = "fxv.yaml"
		}
	}

	if cfgPath != "" {
		if err := cfg.loadFromFile(cfgPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", cfgPath, err)
		}
		cfg.configPath = cfgPath
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Normalize resolves workspace paths to absolute ones, fills in missing names and
// validates the result.
func (c *Config) Normalize() error {
	seen := make(map[string]bool, len(c.Workspaces))
	for i := range c.Workspaces {
		ws := &c.Workspaces[i]
		if err := normalizeWorkspace(ws); err != nil {
			return err
		}
		if seen[ws.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateWorkspace, ws.Name)
		}
		seen[ws.Name] = true
	}
	if c.LatencyMS.Min < 0 || c.LatencyMS.Max < c.LatencyMS.Min {
		return fmt.Errorf("invalid latency range %d..%d ms", c.LatencyMS.Min, c.LatencyMS.Max)
	}
	return nil
}

func normalizeWorkspace(ws *Workspace) error {
	if ws.Path == "" && ws.Snapshot == "" {
		return fmt.Errorf("%w: %q needs a path or a snapshot", ErrInvalidWorkspace, ws.Name)
	}
	if ws.Path != "" {
		if abs, err := filepath.Abs(ws.Path); err == nil {
			ws.Path = abs
		}
	}
	if ws.Snapshot != "" {
		if abs, err := filepath.Abs(ws.Snapshot); err == nil {
			ws.Snapshot = abs
		}
	}
	if ws.Name == "" {
		src := ws.Path
		if src == "" {
			src = ws.Snapshot
		}
		ws.Name = filepath.Base(src)
		if ws.GitRef != "" {
			ws.Name += "@" + ws.GitRef
		}
	}
	return nil
}

// Save saves the current configuration to the config file
func (c *Config) Save() error {
	// Ensure config directory exists
	configDir := filepath.Dir(c.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.configPath, data, 0644)
}

// AddWorkspace normalizes ws and appends it. Names must be unique.
func (c *Config) AddWorkspace(ws Workspace) (Workspace, error) {
	if err := normalizeWorkspace(&ws); err != nil {
		return Workspace{}, err
	}
	if _, ok := c.Workspace(ws.Name); ok {
		return Workspace{}, fmt.Errorf("%w: %q", ErrDuplicateWorkspace, ws.Name)
	}
	c.Workspaces = append(c.Workspaces, ws)
	return ws, nil
}

// RemoveWorkspace removes the named workspace and reports whether it existed.
func (c *Config) RemoveWorkspace(name string) bool {
	for i, ws := range c.Workspaces {
		if ws.Name == name {
			c.Workspaces = append(c.Workspaces[:i], c.Workspaces[i+1:]...)
			return true
		}
	}
	return false
}

// Workspace returns the named workspace.
func (c *Config) Workspace(name string) (Workspace, bool) {
	for _, ws := range c.Workspaces {
		if ws.Name == name {
			return ws, true
		}
	}
	return Workspace{}, false
}

// SetGlobalExclude sets the global exclude patterns
func (c *Config) SetGlobalExclude(patterns []string) {
	c.Exclude = patterns
}

// ExcludeFor returns the global patterns followed by the workspace's own.
func (c *Config) ExcludeFor(ws Workspace) []string {
	out := make([]string, 0, len(c.Exclude)+len(ws.Exclude))
	out = append(out, c.Exclude...)
	return append(out, ws.Exclude...)
}

// GetConfigFilePath returns the path to the config file
func (c *Config) GetConfigFilePath() string {
	return c.configPath
}

// SetConfigFilePath changes where Save writes to.
func (c *Config) SetConfigFilePath(path string) {
	c.configPath = path
}
