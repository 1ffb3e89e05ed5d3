// Package config loads service configuration from an optional YAML file
// overlaid with environment variables. Environment wins.
package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPort is used when neither the file nor PORT specifies one.
const DefaultPort = "3001"

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		Secret string `yaml:"secret"`
	} `yaml:"session"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
}

// Config is the resolved service configuration.
type Config struct {
	Port          string
	DatabaseURL   string
	SessionSecret string
	// RedisAddr is optional; empty disables the history publisher.
	RedisAddr string
}

// Load resolves configuration. path may be empty, in which case only
// environment variables apply.
func Load(path string) (Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Port:          firstOf(os.Getenv("PORT"), fc.Server.Port, DefaultPort),
		DatabaseURL:   firstOf(os.Getenv("DATABASE_URL"), fc.Postgres.URL),
		SessionSecret: firstOf(os.Getenv("SESSION_SECRET"), fc.Session.Secret),
		RedisAddr:     firstOf(os.Getenv("REDIS_ADDR"), fc.Redis.Addr),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	return nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
