package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		StorageBaseURL string `yaml:"storage_base_url"`
		CacheTTL       string `yaml:"cache_ttl"`
	} `yaml:"catalog"`
	Rewards struct {
		SegmentSeconds int    `yaml:"segment_seconds"`
		RefillLives    int    `yaml:"refill_lives"`
		RefillCoins    int    `yaml:"refill_coins"`
		SessionTTL     string `yaml:"session_ttl"`
		PurgeInterval  string `yaml:"purge_interval"`
	} `yaml:"rewards"`
	Wallet struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Retry   struct {
			MaxAttempts int    `yaml:"max_attempts"`
			BaseDelay   string `yaml:"base_delay"`
			MaxDelay    string `yaml:"max_delay"`
		} `yaml:"retry"`
	} `yaml:"wallet"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
		Burst     int `yaml:"burst"`
	} `yaml:"ratelimit"`
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
	return cfg, nil
}

// SegmentDuration is the per-video watch time, 15s unless configured.
func (c Config) SegmentDuration() time.Duration {
	if c.Rewards.SegmentSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Rewards.SegmentSeconds) * time.Second
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
