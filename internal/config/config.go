// Package config handles loading, saving, and resolving the repobar
// settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory repobar config file.
	LocalConfigFilename = ".repobar.yaml"
	// ConfigEnvVar overrides the config location.
	ConfigEnvVar = "REPOBAR_CONFIG"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/repobar/v1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "RepoBarConfig"

	MinMaxDepth = 1
	MaxMaxDepth = 6

	defaultMaxDepth      = 2
	defaultFetchInterval = 300
	defaultTimeout       = 60
	minFetchInterval     = 30
)

// Config is the user-facing settings record.
type Config struct {
	APIVersion           string            `yaml:"apiVersion" toml:"apiVersion"`
	Kind                 string            `yaml:"kind" toml:"kind"`
	RootPath             string            `yaml:"root_path" toml:"root_path"`
	MaxDepth             int               `yaml:"max_depth" toml:"max_depth"`
	AutoSyncEnabled      bool              `yaml:"auto_sync_enabled" toml:"auto_sync_enabled"`
	FetchIntervalSeconds int               `yaml:"fetch_interval_seconds" toml:"fetch_interval_seconds"`
	PreferredLocalPaths  map[string]string `yaml:"preferred_local_paths,omitempty" toml:"preferred_local_paths,omitempty"`
	IncludeOnly          []string          `yaml:"include_only,omitempty" toml:"include_only,omitempty"`
	Exclude              []string          `yaml:"exclude" toml:"exclude"`
	FollowSymlinks       bool              `yaml:"follow_symlinks" toml:"follow_symlinks"`
	Concurrency          int               `yaml:"concurrency" toml:"concurrency"`
	// TimeoutSeconds bounds each git invocation. Negative disables the bound.
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
	GitBin         string `yaml:"git_bin,omitempty" toml:"git_bin,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion:           ConfigAPIVersion,
		Kind:                 ConfigKind,
		RootPath:             "~/Projects",
		MaxDepth:             defaultMaxDepth,
		AutoSyncEnabled:      true,
		FetchIntervalSeconds: defaultFetchInterval,
		Exclude:              []string{},
		Concurrency:          defaultConcurrency(),
		TimeoutSeconds:       defaultTimeout,
		GitBin:               "git",
	}
}

func defaultConcurrency() int {
	return min(8, 2*runtime.NumCPU())
}

// ConfigDir returns the platform-appropriate config directory path.
// It checks, in order: the override parameter, REPOBAR_CONFIG,
// and finally os.UserConfigDir()/repobar.
func ConfigDir(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return filepath.Dir(override), nil
		}
		return override, nil
	}

	if env := os.Getenv(ConfigEnvVar); env != "" {
		if isConfigFilePath(env) {
			return filepath.Dir(env), nil
		}
		return env, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "repobar"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}

	if env := os.Getenv(ConfigEnvVar); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}

	dir, err := ConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, REPOBAR_CONFIG, nearest local dotfile in cwd/parents,
// then the global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(ConfigEnvVar) != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for .repobar.yaml.
// It returns an empty string when no local config file is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the config file at path. A missing file yields DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, err
	}

	if isTOMLPath(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency()
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = defaultTimeout
	}
	if cfg.FetchIntervalSeconds == 0 {
		cfg.FetchIntervalSeconds = defaultFetchInterval
	}
	if strings.TrimSpace(cfg.GitBin) == "" {
		cfg.GitBin = "git"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to the given path, as TOML when the path ends in .toml.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isTOMLPath(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxDepth < MinMaxDepth || c.MaxDepth > MaxMaxDepth {
		return fmt.Errorf("max_depth %d out of range [%d, %d]", c.MaxDepth, MinMaxDepth, MaxMaxDepth)
	}
	if c.FetchIntervalSeconds < minFetchInterval {
		return fmt.Errorf("fetch_interval_seconds must be at least %d, got %d", minFetchInterval, c.FetchIntervalSeconds)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	for fullName := range c.PreferredLocalPaths {
		if strings.Count(fullName, "/") < 1 {
			return fmt.Errorf("preferred_local_paths key %q is not owner/name", fullName)
		}
	}
	return nil
}

// ExpandedRoot returns RootPath with a leading ~ expanded.
func (c *Config) ExpandedRoot() (string, error) {
	return ExpandPath(c.RootPath)
}

// ExpandedPreferredPaths returns PreferredLocalPaths with every path expanded.
func (c *Config) ExpandedPreferredPaths() (map[string]string, error) {
	out := make(map[string]string, len(c.PreferredLocalPaths))
	for fullName, path := range c.PreferredLocalPaths {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		out[fullName] = expanded
	}
	return out, nil
}

// ExpandPath replaces a leading "~" or "~/" with the user's home directory.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

func isConfigFilePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml" || ext == ".toml"
}

func isTOMLPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
