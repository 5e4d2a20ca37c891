// Package config loads the slack-chat configuration: a YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig           `yaml:"server"`
	Storage StorageConfig          `yaml:"storage"`
	Log     LogConfig              `yaml:"log"`
	Watch   map[string][]WatchRule `yaml:"watch"`
	Pull    PullConfig             `yaml:"pull"`
	Exec    ExecConfig             `yaml:"exec"`
}

// ServerConfig points at the local token-bridge server.
type ServerConfig struct {
	URL string `yaml:"url" env:"SLACK_CHAT_SERVER_URL"`
}

type StorageConfig struct {
	Dir string `yaml:"dir" env:"SLACK_CHAT_STORAGE_DIR"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"SLACK_CHAT_LOG_LEVEL"`
	Format string `yaml:"format" env:"SLACK_CHAT_LOG_FORMAT"`
}

// WatchRule is one configured automation: pattern, command, and how
// to handle its output. Rules are grouped by channel name in the
// watch: section.
type WatchRule struct {
	Pattern         string `yaml:"pattern"`
	Shell           string `yaml:"shell"`
	Reply           bool   `yaml:"reply"`
	CaseInsensitive *bool  `yaml:"case_insensitive"`
}

// IsCaseInsensitive reports the effective case flag; matching is
// case-insensitive unless explicitly disabled.
func (r WatchRule) IsCaseInsensitive() bool {
	return r.CaseInsensitive == nil || *r.CaseInsensitive
}

// PullConfig drives the background history pull. Schedule is a cron
// expression; empty disables scheduling.
type PullConfig struct {
	Schedule string   `yaml:"schedule" env:"SLACK_CHAT_PULL_SCHEDULE"`
	Channels []string `yaml:"channels"`
	Limit    int      `yaml:"limit" env:"SLACK_CHAT_PULL_LIMIT"`
}

type ExecConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env:"SLACK_CHAT_EXEC_TIMEOUT_SECONDS"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{URL: "http://localhost:3002"},
		Storage: StorageConfig{Dir: "storage"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Pull:    PullConfig{Limit: 50},
		Exec:    ExecConfig{TimeoutSeconds: 300},
	}
}

// Load reads the config file, then applies environment overrides. A
// missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BufferPath is the well-known hand-off file location, next to the
// storage directory.
func (c *Config) BufferPath() string {
	return filepath.Join(filepath.Dir(c.Storage.Dir), "buffer.json")
}

// CacheDir is where the resolution caches live.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Storage.Dir, "_cache")
}
