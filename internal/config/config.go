package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/scanfetch/internal/progress"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "SCANFETCH_"

// Config defines configuration for the scanfetch CLI.
type Config struct {
	URI         string           `yaml:"uri"`
	OutDir      string           `yaml:"out_dir"`
	Talkgroups  []string         `yaml:"talkgroups"`
	PageSize    int              `yaml:"page_size"`
	RequestRate float64          `yaml:"request_rate"`
	Progress    bool             `yaml:"progress"`
	Verbose     bool             `yaml:"verbose"`
	Connection  ConnectionConfig `yaml:"connection"`
}

// ConnectionConfig defines websocket behavior.
type ConnectionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		PageSize: 200,
		Connection: ConnectionConfig{
			HandshakeTimeout: 10 * time.Second,
			ReadLimit:        64 * 1024 * 1024, // 64MiB
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	URI         string               `yaml:"uri"`
	OutDir      string               `yaml:"out_dir"`
	Talkgroups  []string             `yaml:"talkgroups"`
	PageSize    int                  `yaml:"page_size"`
	RequestRate float64              `yaml:"request_rate"`
	Progress    bool                 `yaml:"progress"`
	Verbose     bool                 `yaml:"verbose"`
	Connection  yamlConnectionConfig `yaml:"connection"`
}

type yamlConnectionConfig struct {
	HandshakeTimeout string `yaml:"handshake_timeout"`
	ReadLimit        string `yaml:"read_limit"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	cfg.URI = yc.URI
	cfg.OutDir = yc.OutDir
	cfg.Talkgroups = yc.Talkgroups
	if yc.PageSize != 0 {
		cfg.PageSize = yc.PageSize
	}
	cfg.RequestRate = yc.RequestRate
	cfg.Progress = yc.Progress
	cfg.Verbose = yc.Verbose
	if yc.Connection.HandshakeTimeout != "" {
		d, err := time.ParseDuration(yc.Connection.HandshakeTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse connection.handshake_timeout: %w", err)
		}
		cfg.Connection.HandshakeTimeout = d
	}
	if yc.Connection.ReadLimit != "" {
		size, err := progress.ParseBytes(yc.Connection.ReadLimit)
		if err != nil {
			return Config{}, fmt.Errorf("parse connection.read_limit: %w", err)
		}
		cfg.Connection.ReadLimit = size
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SCANFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "URI"); v != "" {
		c.URI = v
	}
	if v := os.Getenv(EnvPrefix + "OUT_DIR"); v != "" {
		c.OutDir = v
	}
	if v := os.Getenv(EnvPrefix + "TALKGROUPS"); v != "" {
		c.Talkgroups = SplitList(v)
	}
	if v := os.Getenv(EnvPrefix + "PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPAGE_SIZE: %w", EnvPrefix, err)
		}
		c.PageSize = n
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %sREQUEST_RATE: %w", EnvPrefix, err)
		}
		c.RequestRate = r
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "VERBOSE"); v != "" {
		c.Verbose = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "HANDSHAKE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sHANDSHAKE_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Connection.HandshakeTimeout = d
	}
	if v := os.Getenv(EnvPrefix + "READ_LIMIT"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sREAD_LIMIT: %w", EnvPrefix, err)
		}
		c.Connection.ReadLimit = size
	}

	return nil
}

// Validate validates the settings shared by every command.
func (c *Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("config: out_dir is required")
	}
	if c.PageSize <= 0 {
		return errors.New("config: page_size must be positive")
	}
	if c.RequestRate < 0 {
		return errors.New("config: request_rate must not be negative")
	}
	if c.Connection.HandshakeTimeout <= 0 {
		return errors.New("config: connection.handshake_timeout must be positive")
	}
	if c.Connection.ReadLimit <= 0 {
		return errors.New("config: connection.read_limit must be positive")
	}
	return nil
}

// ValidateRemote validates the settings of commands that contact a server.
func (c *Config) ValidateRemote() error {
	if c.URI == "" {
		return errors.New("config: uri is required")
	}
	return c.Validate()
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URI != "" {
		c.URI = override.URI
	}
	if override.OutDir != "" {
		c.OutDir = override.OutDir
	}
	if len(override.Talkgroups) > 0 {
		c.Talkgroups = override.Talkgroups
	}
	if override.PageSize != 0 {
		c.PageSize = override.PageSize
	}
	if override.RequestRate != 0 {
		c.RequestRate = override.RequestRate
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Verbose {
		c.Verbose = override.Verbose
	}
	if override.Connection.HandshakeTimeout != 0 {
		c.Connection.HandshakeTimeout = override.Connection.HandshakeTimeout
	}
	if override.Connection.ReadLimit != 0 {
		c.Connection.ReadLimit = override.Connection.ReadLimit
	}
	return c
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
