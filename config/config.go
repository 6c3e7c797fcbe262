// Package config provides configuration loading and management for the
// proposals tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/proposals/proposal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	NATS    NATSConfig    `yaml:"nats"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// OutputConfig configures where and how records are written
type OutputConfig struct {
	// Root is the directory holding <term>/<version> folders (default: Proposals)
	Root string `yaml:"root"`
	// Markdown also renders README.md next to input.json
	Markdown bool `yaml:"markdown"`
	// Atomic writes input.json through a temp file and rename
	Atomic *bool `yaml:"atomic"`
}

// NATSConfig configures the optional NATS side channels
type NATSConfig struct {
	// URL is the NATS server URL (empty = events and index disabled)
	URL string `yaml:"url"`
	// Subject is the prefix for recorded-proposal events
	Subject string `yaml:"subject"`
	// Bucket is the JetStream KV bucket for the proposal index (empty = no index)
	Bucket string `yaml:"bucket"`
	// Timeout bounds connecting and each publish
	Timeout time.Duration `yaml:"timeout"`
}

// WatchConfig configures the watch command
type WatchConfig struct {
	// Dir is the directory of input files to watch
	Dir string `yaml:"dir"`
	// Debounce is how long to wait for more changes before recording
	Debounce time.Duration `yaml:"debounce"`
	// Extensions lists input file extensions to react to
	Extensions []string `yaml:"extensions"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics during watch (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config that reproduces plain recording with no
// side channels.
func DefaultConfig() *Config {
	atomic := true
	return &Config{
		Output: OutputConfig{
			Root:     proposal.DefaultRoot,
			Markdown: false,
			Atomic:   &atomic,
		},
		NATS: NATSConfig{
			URL:     "",
			Subject: "proposals.recorded",
			Bucket:  "PROPOSALS",
			Timeout: 5 * time.Second,
		},
		Watch: WatchConfig{
			Dir:        "inputs",
			Debounce:   500 * time.Millisecond,
			Extensions: []string{".yaml", ".yml", ".json"},
		},
	}
}

// AtomicWrites reports whether input.json is written atomically.
func (c *Config) AtomicWrites() bool {
	return c.Output.Atomic == nil || *c.Output.Atomic
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.Root) == "" {
		return fmt.Errorf("output.root is required")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject is required when nats.url is set")
	}
	if c.NATS.Timeout < 0 {
		return fmt.Errorf("nats.timeout must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	for _, ext := range c.Watch.Extensions {
		if !proposal.IsRecordFile("x" + normalizeExt(ext)) {
			return fmt.Errorf("watch.extensions: unsupported extension %q", ext)
		}
	}
	return nil
}

func normalizeExt(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Output
	if other.Output.Root != "" {
		c.Output.Root = other.Output.Root
	}
	if other.Output.Markdown {
		c.Output.Markdown = true
	}
	if other.Output.Atomic != nil {
		atomic := *other.Output.Atomic
		c.Output.Atomic = &atomic
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
	if other.NATS.Bucket != "" {
		c.NATS.Bucket = other.NATS.Bucket
	}
	if other.NATS.Timeout != 0 {
		c.NATS.Timeout = other.NATS.Timeout
	}

	// Watch
	if other.Watch.Dir != "" {
		c.Watch.Dir = other.Watch.Dir
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
