package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the workspace config file.
const FileName = "contagion.yml"

// Config models contagion.yml.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn,omitempty"`
	} `yaml:"store"`
	Artifacts Artifacts `yaml:"artifacts"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Report struct {
		Level int  `yaml:"level"`
		Chart bool `yaml:"chart"`
	} `yaml:"report"`
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret,omitempty"`
	} `yaml:"server"`
	Webhooks []Webhook `yaml:"webhooks,omitempty"`
}

type Artifacts struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir,omitempty"`
	S3     struct {
		Bucket    string `yaml:"bucket,omitempty"`
		Region    string `yaml:"region,omitempty"`
		Endpoint  string `yaml:"endpoint,omitempty"`
		PathStyle bool   `yaml:"path_style,omitempty"`
		Prefix    string `yaml:"prefix,omitempty"`
	} `yaml:"s3,omitempty"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (w Webhook) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ctg init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "pgx", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config.store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config.store.driver must be sqlite or pgx, got %q", c.Store.Driver)
	}
	switch c.Artifacts.Driver {
	case "", "none":
	case "fs":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("config.artifacts.dir is required for driver fs")
		}
	case "s3":
		if c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("config.artifacts.s3.bucket is required for driver s3")
		}
	default:
		return fmt.Errorf("config.artifacts.driver must be fs, s3 or none, got %q", c.Artifacts.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a level", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("config.log.format must be text, json or logfmt")
	}
	if c.Report.Level < 0 || c.Report.Level > 2 {
		return fmt.Errorf("config.report.level must be between 0 and 2")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
		if wh.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has a negative timeout", i)
		}
		for _, evt := range wh.Events {
			if evt == "" {
				return fmt.Errorf("webhook %d has an empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections keep their defaults.
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

const defaultTemplate = `store:
  driver: sqlite

artifacts:
  driver: fs
  dir: .contagion/artifacts

log:
  level: info
  format: text

report:
  level: 1
  chart: true

server:
  addr: 127.0.0.1:8080
`
