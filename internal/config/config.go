// Package config loads the service configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// MaxConns bounds the pool. Each realtime subscription holds one
	// connection for its whole lifetime.
	MaxConns int32 `yaml:"max_conns"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Tenant configures the bootstrap of the organization and default location.
type Tenant struct {
	// OwnerUserID identifies the authenticated user of this session. When
	// empty, bootstrap does nothing.
	OwnerUserID         string `yaml:"owner_user_id"`
	DefaultOrganization string `yaml:"default_organization"`
	DefaultLocation     string `yaml:"default_location"`
}

// Speech configures the announcement voice.
type Speech struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
	// Command overrides the synthesizer binary. Empty means auto-detect.
	Command string `yaml:"command"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen"`
	// Timezone is the IANA zone used to decide whether an appointment is
	// "today" and to render its time of day.
	Timezone string   `yaml:"timezone"`
	Database Database `yaml:"database"`
	Tenant   Tenant   `yaml:"tenant"`
	Speech   Speech   `yaml:"speech"`
	Log      Log      `yaml:"log"`
}

// Default returns an in-memory default configuration.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Timezone: "America/Sao_Paulo",
		Database: Database{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "barbersoft",
			SSLMode:  "disable",
			MaxConns: 20,
		},
		Tenant: Tenant{
			DefaultOrganization: "Minha Empresa",
			DefaultLocation:     "Barbearia Principal",
		},
		Speech: Speech{
			Enabled:  true,
			Language: "pt-BR",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Normalize fills zero values with defaults so partially filled files still
// behave.
func (c *Config) Normalize() {
	def := Default()
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = def.Listen
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = def.Timezone
	}
	if c.Database.Host == "" {
		c.Database.Host = def.Database.Host
	}
	if c.Database.Port == "" {
		c.Database.Port = def.Database.Port
	}
	if c.Database.User == "" {
		c.Database.User = def.Database.User
	}
	if c.Database.Name == "" {
		c.Database.Name = def.Database.Name
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = def.Database.SSLMode
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = def.Database.MaxConns
	}
	if strings.TrimSpace(c.Tenant.DefaultOrganization) == "" {
		c.Tenant.DefaultOrganization = def.Tenant.DefaultOrganization
	}
	if strings.TrimSpace(c.Tenant.DefaultLocation) == "" {
		c.Tenant.DefaultLocation = def.Tenant.DefaultLocation
	}
	if c.Speech.Language == "" {
		c.Speech.Language = def.Speech.Language
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads the YAML file at path (a missing file yields defaults), applies
// environment overrides, normalizes and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("DB_HOST", &cfg.Database.Host)
	set("DB_PORT", &cfg.Database.Port)
	set("DB_USER", &cfg.Database.User)
	set("DB_PASSWORD", &cfg.Database.Password)
	set("DB_NAME", &cfg.Database.Name)
	set("DB_SSLMODE", &cfg.Database.SSLMode)
	set("OWNER_USER_ID", &cfg.Tenant.OwnerUserID)
	set("TZ_NAME", &cfg.Timezone)
	set("LOG_LEVEL", &cfg.Log.Level)
	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.Listen = ":" + port
	}
}
