package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gamification-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// TTL overrides content.ttl for the Redis content cache.
		TTL string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Content struct {
		TTL string `yaml:"ttl"`
	} `yaml:"content"`
	Leaderboard struct {
		DefaultLimit int `yaml:"defaultLimit"`
	} `yaml:"leaderboard"`
	// Contents seeds the in-memory loader when no Postgres URL is configured.
	Contents []domain.Content `yaml:"contents"`
	// Users are provisioned at startup in memory mode, and by the seed command.
	Users []string `yaml:"users"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for i, content := range c.Contents {
		if content.ID == "" {
			return fmt.Errorf("contents[%d]: id is required", i)
		}
		t, err := domain.ParseContentType(string(content.Type))
		if err != nil {
			return fmt.Errorf("contents[%d] %s: %w", i, content.ID, err)
		}
		c.Contents[i].Type = t
	}
	return nil
}

const defaultContentTTL = 10 * time.Minute

// ContentTTL is how long resolved content stays cached.
func (c Config) ContentTTL() time.Duration {
	return TTLDuration(c.Content.TTL, defaultContentTTL)
}

// RedisTTL is the Redis content cache TTL, falling back to ContentTTL.
func (c Config) RedisTTL() time.Duration {
	return TTLDuration(c.Redis.TTL, c.ContentTTL())
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
