package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config models agora.yml.
type Config struct {
	Timezone string `yaml:"timezone"`
	Storage  struct {
		Driver    string `yaml:"driver"`
		Workspace string `yaml:"workspace"`
		DSN       string `yaml:"dsn"`
		Connect   struct {
			Attempts int    `yaml:"attempts"`
			Backoff  string `yaml:"backoff"`
		} `yaml:"connect"`
	} `yaml:"storage"`
	Registration struct {
		DefaultResource string `yaml:"default_resource"`
		ConflictRetries int    `yaml:"conflict_retries"`
	} `yaml:"registration"`
	Socrates struct {
		Stream            string         `yaml:"stream"`
		ReservationWindow string         `yaml:"reservation_window"`
		RoomTypeLimits    map[string]int `yaml:"room_type_limits"`
	} `yaml:"socrates"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with agora config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config.timezone: %w", err)
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config.storage.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.storage.driver must be 'sqlite' or 'postgres'")
	}
	if c.Storage.Connect.Attempts < 1 {
		return fmt.Errorf("config.storage.connect.attempts must be at least 1")
	}
	if _, err := c.ConnectBackoff(); err != nil {
		return fmt.Errorf("config.storage.connect.backoff: %w", err)
	}
	if c.Registration.DefaultResource == "" {
		return fmt.Errorf("config.registration.default_resource is required")
	}
	if c.Registration.ConflictRetries < 0 {
		return fmt.Errorf("config.registration.conflict_retries must not be negative")
	}
	if w, err := c.ReservationWindow(); err != nil {
		return fmt.Errorf("config.socrates.reservation_window: %w", err)
	} else if w <= 0 {
		return fmt.Errorf("config.socrates.reservation_window must be positive")
	}
	for roomType, limit := range c.Socrates.RoomTypeLimits {
		if roomType == "" {
			return fmt.Errorf("config.socrates.room_type_limits has empty room type")
		}
		if limit < 0 {
			return fmt.Errorf("room type %s has negative limit", roomType)
		}
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is unknown", c.Log.Level)
	}
	return nil
}

// Location resolves the timezone activities are entered and shown in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) ConnectBackoff() (time.Duration, error) {
	if c.Storage.Connect.Backoff == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Storage.Connect.Backoff)
}

func (c *Config) ReservationWindow() (time.Duration, error) {
	if c.Socrates.ReservationWindow == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(c.Socrates.ReservationWindow)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "agora.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `timezone: Europe/Berlin

storage:
  driver: sqlite
  workspace: .
  connect:
    attempts: 5
    backoff: 2s

registration:
  default_resource: Veranstaltung
  conflict_retries: 3

socrates:
  stream: socrates
  reservation_window: 30m
  room_type_limits: {}

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  pretty: false
`
