package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultGitBinary    = "git"
	defaultGitUserName  = "Git Wagon"
	defaultGitUserEmail = "no-reply@gitwagon.local"
)

// Config captures runtime options sourced from an optional YAML file and GITWAGON_* environment variables.
type Config struct {
	Debug           bool   `yaml:"debug"`
	SafeCheckout    bool   `yaml:"safe_checkout"`
	SkipEmptyCommit bool   `yaml:"skip_empty_commit"`
	DryRun          bool   `yaml:"dry_run"`
	CacheDir        string `yaml:"cache_dir"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	Git             string `yaml:"git"`
	GitUserName     string `yaml:"git_user_name"`
	GitUserEmail    string `yaml:"git_user_email"`
	Token           string `yaml:"token"`
	GitHubBaseURL   string `yaml:"github_base_url"`
	GitHubUploadURL string `yaml:"github_upload_url"`
}

var boolSettings = []struct {
	env string
	set func(*Config, bool)
}{
	{"GITWAGON_DEBUG", func(c *Config, v bool) { c.Debug = v }},
	{"GITWAGON_SAFE_CHECKOUT", func(c *Config, v bool) { c.SafeCheckout = v }},
	{"GITWAGON_SKIP_EMPTY_COMMIT", func(c *Config, v bool) { c.SkipEmptyCommit = v }},
	{"GITWAGON_DRY_RUN", func(c *Config, v bool) { c.DryRun = v }},
}

var stringSettings = []struct {
	env string
	set func(*Config, string)
}{
	{"GITWAGON_CACHE_DIR", func(c *Config, v string) { c.CacheDir = v }},
	{"GITWAGON_LOG_LEVEL", func(c *Config, v string) { c.LogLevel = v }},
	{"GITWAGON_LOG_FORMAT", func(c *Config, v string) { c.LogFormat = v }},
	{"GITWAGON_GIT", func(c *Config, v string) { c.Git = v }},
	{"GITWAGON_GIT_USER_NAME", func(c *Config, v string) { c.GitUserName = v }},
	{"GITWAGON_GIT_USER_EMAIL", func(c *Config, v string) { c.GitUserEmail = v }},
	{"GITWAGON_GITHUB_BASE_URL", func(c *Config, v string) { c.GitHubBaseURL = v }},
	{"GITWAGON_GITHUB_UPLOAD_URL", func(c *Config, v string) { c.GitHubUploadURL = v }},
}

// LoadConfig reads the file named by GITWAGON_CONFIG, if any, overlays the
// environment, applies defaults, and performs validation.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := strings.TrimSpace(os.Getenv("GITWAGON_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read GITWAGON_CONFIG: %w", err)
		}
		if err := decodeConfigFile(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse GITWAGON_CONFIG %s: %w", path, err)
		}
	}

	for _, s := range boolSettings {
		raw := strings.TrimSpace(os.Getenv(s.env))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", s.env, err)
		}
		s.set(&cfg, v)
	}

	for _, s := range stringSettings {
		if v := strings.TrimSpace(os.Getenv(s.env)); v != "" {
			s.set(&cfg, v)
		}
	}

	if token := envFirst("GITWAGON_TOKEN", "GITHUB_TOKEN"); token != "" {
		cfg.Token = token
	}

	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize applies defaults and validates the configuration. It is called
// again by the CLI after command-line flags have been applied.
func (c *Config) Normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.CacheDir = strings.TrimSpace(c.CacheDir)
	c.GitHubBaseURL = strings.TrimSpace(c.GitHubBaseURL)
	c.GitHubUploadURL = strings.TrimSpace(c.GitHubUploadURL)

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if strings.TrimSpace(c.Git) == "" {
		c.Git = defaultGitBinary
	}
	if strings.TrimSpace(c.GitUserName) == "" {
		c.GitUserName = defaultGitUserName
	}
	if strings.TrimSpace(c.GitUserEmail) == "" {
		c.GitUserEmail = defaultGitUserEmail
	}
	if c.CacheDir == "" {
		c.CacheDir = os.TempDir()
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("parse GITWAGON_LOG_LEVEL: %w", err)
	}

	supportedFormats := map[string]struct{}{"text": {}, "json": {}}
	if _, ok := supportedFormats[c.LogFormat]; !ok {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if (c.GitHubBaseURL == "") != (c.GitHubUploadURL == "") {
		return fmt.Errorf("GITWAGON_GITHUB_BASE_URL and GITWAGON_GITHUB_UPLOAD_URL must both be set for GitHub Enterprise")
	}
	return nil
}

// Level returns the level the CLI logs at. Debug wins over LogLevel, and
// LogLevel can only add debug output: info, warn and error are always kept.
func (c Config) Level() string {
	if c.Debug || strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return "debug"
	}
	return defaultLogLevel
}

func decodeConfigFile(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func envFirst(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
