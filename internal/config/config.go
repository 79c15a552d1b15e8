package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir   string          `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	Store     StoreConfig     `yaml:"store" toml:"store" json:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler" json:"scheduler"`
	Telegram  TelegramConfig  `yaml:"telegram" toml:"telegram" json:"telegram"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http" json:"http"`
}

type StoreConfig struct {
	// Driver is one of memory, file, sqlite, postgres.
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn" json:"dsn"`
}

type SchedulerConfig struct {
	HorizonDays   int   `yaml:"horizon_days" toml:"horizon_days" json:"horizon_days"`
	Exact         *bool `yaml:"exact" toml:"exact" json:"exact,omitempty"`
	ResyncMinutes int   `yaml:"resync_minutes" toml:"resync_minutes" json:"resync_minutes"`
}

// ExactAlarms reports whether alarms should be armed exact first. Unset means true.
func (s SchedulerConfig) ExactAlarms() bool {
	return s.Exact == nil || *s.Exact
}

type TelegramConfig struct {
	Token  string `yaml:"token" toml:"token" json:"-"`
	ChatID int64  `yaml:"chat_id" toml:"chat_id" json:"chat_id"`
}

// Enabled reports whether reminders should also go to Telegram.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// HTTPConfig enables the local JSON API in serve. Blank Addr leaves it off.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr" json:"addr"`
	// Token, when set, is required as a bearer token on API calls.
	Token string `yaml:"token" toml:"token" json:"token"`
}

func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if c.Scheduler.HorizonDays <= 0 {
		c.Scheduler.HorizonDays = 30
	}
	if c.Scheduler.ResyncMinutes <= 0 {
		c.Scheduler.ResyncMinutes = 15
	}
}

func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// Load reads a YAML config, or TOML when the file ends in .toml.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, &r)
	default:
		err = yaml.Unmarshal(b, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	r.ApplyDefaults()
	return &r, nil
}

// Resolve loads path (defaults when blank) and layers the environment on top.
func Resolve(path string) (*Config, error) {
	c := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	if err := ApplyEnv(c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	return c, nil
}
