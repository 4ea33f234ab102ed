package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models arremate.yml.
type Config struct {
	Platform struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"platform"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Queue struct {
		PollIntervalMS int `yaml:"poll_interval_ms"`
		MaxAttempts    int `yaml:"max_attempts"`
		RetryBackoffMS int `yaml:"retry_backoff_ms"`
	} `yaml:"queue"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return fmt.Errorf("config.platform.id is required")
	}
	if c.Queue.PollIntervalMS < 0 {
		return fmt.Errorf("config.queue.poll_interval_ms must not be negative")
	}
	if c.Queue.MaxAttempts < 0 {
		return fmt.Errorf("config.queue.max_attempts must not be negative")
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// PollInterval returns the worker poll interval with the default applied.
func (c *Config) PollInterval() time.Duration {
	if c.Queue.PollIntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Queue.PollIntervalMS) * time.Millisecond
}

// RetryBackoff returns the delay before a failed job runs again.
func (c *Config) RetryBackoff() time.Duration {
	if c.Queue.RetryBackoffMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Queue.RetryBackoffMS) * time.Millisecond
}

// JobMaxAttempts returns the attempt ceiling with the default applied.
func (c *Config) JobMaxAttempts() int {
	if c.Queue.MaxAttempts <= 0 {
		return 5
	}
	return c.Queue.MaxAttempts
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "arremate.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with arremate init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default("arremate"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config for a platform id.
func Default(platformID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(platformID)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(platformID string) string {
	return fmt.Sprintf(defaultTemplate, platformID)
}

const defaultTemplate = `platform:
  id: %s
  name: Judicial Auction Governance

server:
  addr: ":8787"
  base_path: /v1

queue:
  poll_interval_ms: 2000
  max_attempts: 5
  retry_backoff_ms: 5000

webhooks: []
`
