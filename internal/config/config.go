package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models tideline.yml.
type Config struct {
	Operator struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"operator"`
	Booking struct {
		LockWaitMs     int    `yaml:"lock_wait_ms"`
		DefaultStatus  string `yaml:"default_status"`
		DefaultPrice   float64 `yaml:"default_price"`
	} `yaml:"booking"`
	Sync struct {
		IntervalSeconds    int `yaml:"interval_seconds"`
		PullTimeoutSeconds int `yaml:"pull_timeout_seconds"`
		BatchSize          int `yaml:"batch_size"`
	} `yaml:"sync"`
	Notifications struct {
		DefaultRecipients []string `yaml:"default_recipients"`
	} `yaml:"notifications"`
	RBAC struct {
		// OverrideRoles may confirm bookings despite a block-severity
		// eligibility failure.
		OverrideRoles []string `yaml:"override_roles"`
	} `yaml:"rbac"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Operator.ID == "" {
		return fmt.Errorf("config.operator.id is required")
	}
	if c.Booking.LockWaitMs < 0 {
		return fmt.Errorf("config.booking.lock_wait_ms must not be negative")
	}
	switch c.Booking.DefaultStatus {
	case "", "pending", "confirmed":
	default:
		return fmt.Errorf("config.booking.default_status must be pending or confirmed")
	}
	if c.Sync.IntervalSeconds < 0 {
		return fmt.Errorf("config.sync.interval_seconds must not be negative")
	}
	if c.Sync.PullTimeoutSeconds < 0 {
		return fmt.Errorf("config.sync.pull_timeout_seconds must not be negative")
	}
	for _, r := range c.Notifications.DefaultRecipients {
		if r == "" {
			return fmt.Errorf("config.notifications.default_recipients contains empty recipient")
		}
	}
	for _, role := range c.RBAC.OverrideRoles {
		if role == "" {
			return fmt.Errorf("config.rbac.override_roles contains empty role")
		}
	}
	return nil
}

// LockWait returns the per-resource lock acquisition budget.
func (c *Config) LockWait() time.Duration {
	if c.Booking.LockWaitMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Booking.LockWaitMs) * time.Millisecond
}

// SyncInterval returns the poll interval for the sync coordinator.
func (c *Config) SyncInterval() time.Duration {
	if c.Sync.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// PullTimeout bounds a single sync pull.
func (c *Config) PullTimeout() time.Duration {
	if c.Sync.PullTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Sync.PullTimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tideline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(operatorID string) string {
	return fmt.Sprintf(defaultTemplate, operatorID)
}

// Default returns the default Config struct for an operator.
func Default(operatorID string) *Config {
	var cfg Config
	cfg.Operator.ID = operatorID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, operatorID))).Decode(&cfg)
	return &cfg
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `operator:
  id: %s
  name: Tideline Operator

booking:
  lock_wait_ms: 2000
  default_status: pending

sync:
  interval_seconds: 30
  pull_timeout_seconds: 10
  batch_size: 100

notifications:
  default_recipients: [dispatch]

rbac:
  override_roles: [manager, dispatcher]
`
