package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultUpstreamTimeout = 300
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig describes the single upstream chat service.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`

	// Browser-impersonation headers required by the upstream. Origin and
	// Referer default to the base URL's origin when left empty.
	Origin    string `yaml:"origin"`
	Referer   string `yaml:"referer"`
	UserAgent string `yaml:"user_agent"`

	// TimeoutSeconds bounds session creation and non-streaming completion
	// calls. Streaming reads are bounded by the client connection instead.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured upstream call timeout.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// Load reads YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	base := strings.TrimRight(strings.TrimSpace(c.Upstream.BaseURL), "/")
	c.Upstream.BaseURL = base
	if base == "" {
		return nil
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parse upstream.base_url %q: %w", base, err)
	}
	origin := parsed.Scheme + "://" + parsed.Host

	if c.Upstream.Origin == "" {
		c.Upstream.Origin = origin
	}
	if c.Upstream.Referer == "" {
		c.Upstream.Referer = origin + "/"
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = defaultUserAgent
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = defaultUpstreamTimeout
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	base := c.Upstream.BaseURL
	if base == "" {
		return fmt.Errorf("upstream.base_url must be provided")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("upstream.base_url %q is not a valid URL: %w", base, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("upstream.base_url %q must use http or https", base)
	}
	if parsed.Host == "" {
		return fmt.Errorf("upstream.base_url %q must include a host", base)
	}

	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must not be negative, got %d", c.Upstream.TimeoutSeconds)
	}
	return nil
}
