// Package config carries the daemon's process configuration. Values come
// from an optional YAML file with environment variables layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults for everything the file and the environment leave unset.
const (
	DefaultListen               = ":9000"
	DefaultRedisURL             = "redis://localhost:6379/0"
	DefaultSigningLatency       = 2 * time.Second
	DefaultPollAttempts         = 5
	DefaultPollBaseInterval     = time.Second
	DefaultOriginCapacity       = 1000
	DefaultRegistrationInterval = time.Second
	DefaultRegistrationBurst    = 10
)

// Config is the resolved configuration handed to the builders in main.
type Config struct {
	Listen      string
	RedisURL    string
	PostgresDSN string // empty keeps the anchor ledger in memory

	// AuthorityURL points at another instance's signing authority API.
	// Empty runs the embedded authority in this process.
	AuthorityURL string

	SigningLatency   time.Duration
	PollAttempts     int
	PollBaseInterval time.Duration

	OriginCapacity int

	// Token bucket on anchor registration. A zero interval disables it.
	RegistrationInterval time.Duration
	RegistrationBurst    int
}

// fileConfig mirrors the YAML layout. Duration fields are strings in Go
// syntax ("2s", "1m30s") and parsed on load.
type fileConfig struct {
	Listen               string `yaml:"listen"`
	RedisURL             string `yaml:"redis_url"`
	PostgresDSN          string `yaml:"postgres_dsn"`
	AuthorityURL         string `yaml:"authority_url"`
	SigningLatency       string `yaml:"signing_latency"`
	PollAttempts         int    `yaml:"poll_attempts"`
	PollBaseInterval     string `yaml:"poll_base_interval"`
	OriginCapacity       int    `yaml:"origin_capacity"`
	RegistrationInterval string `yaml:"registration_interval"`
	RegistrationBurst    int    `yaml:"registration_burst"`
}

// Load resolves the configuration. The file named by path, or by
// VOUCH_CONFIG when path is empty, is read first; a missing name skips the
// file entirely. Environment variables override whatever the file set.
func Load(path string) (Config, error) {
	cfg := Config{
		Listen:               DefaultListen,
		RedisURL:             DefaultRedisURL,
		SigningLatency:       DefaultSigningLatency,
		PollAttempts:         DefaultPollAttempts,
		PollBaseInterval:     DefaultPollBaseInterval,
		OriginCapacity:       DefaultOriginCapacity,
		RegistrationInterval: DefaultRegistrationInterval,
		RegistrationBurst:    DefaultRegistrationBurst,
	}

	if path == "" {
		path = os.Getenv("VOUCH_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}

		var file fileConfig
		if err := yaml.UnmarshalStrict(data, &file); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := cfg.applyFile(file); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyFile(file fileConfig) error {
	if file.Listen != "" {
		c.Listen = file.Listen
	}
	if file.RedisURL != "" {
		c.RedisURL = file.RedisURL
	}
	if file.PostgresDSN != "" {
		c.PostgresDSN = file.PostgresDSN
	}
	if file.AuthorityURL != "" {
		c.AuthorityURL = file.AuthorityURL
	}
	if file.PollAttempts != 0 {
		c.PollAttempts = file.PollAttempts
	}
	if file.OriginCapacity != 0 {
		c.OriginCapacity = file.OriginCapacity
	}
	if file.RegistrationBurst != 0 {
		c.RegistrationBurst = file.RegistrationBurst
	}

	durations := []struct {
		name  string
		value string
		into  *time.Duration
	}{
		{"signing_latency", file.SigningLatency, &c.SigningLatency},
		{"poll_base_interval", file.PollBaseInterval, &c.PollBaseInterval},
		{"registration_interval", file.RegistrationInterval, &c.RegistrationInterval},
	}
	for _, field := range durations {
		if field.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
		*field.into = parsed
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("VOUCH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("VOUCH_AUTHORITY_URL"); v != "" {
		c.AuthorityURL = v
	}

	if err := envDuration("VOUCH_SIGNING_LATENCY", &c.SigningLatency); err != nil {
		return err
	}
	if err := envDuration("VOUCH_POLL_BASE_INTERVAL", &c.PollBaseInterval); err != nil {
		return err
	}
	if err := envDuration("VOUCH_REGISTRATION_INTERVAL", &c.RegistrationInterval); err != nil {
		return err
	}

	if err := envInt("VOUCH_POLL_ATTEMPTS", &c.PollAttempts); err != nil {
		return err
	}
	if err := envInt("VOUCH_ORIGIN_CAPACITY", &c.OriginCapacity); err != nil {
		return err
	}
	if err := envInt("VOUCH_REGISTRATION_BURST", &c.RegistrationBurst); err != nil {
		return err
	}

	return nil
}

func envDuration(name string, into *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*into = parsed
	return nil
}

func envInt(name string, into *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*into = parsed
	return nil
}
