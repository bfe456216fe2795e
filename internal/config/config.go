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
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// DeadlineGrace keeps mirrored deadlines this long past expiry.
		DeadlineGrace string `yaml:"deadline_grace"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Bank struct {
		TTL string `yaml:"ttl"`
	} `yaml:"bank"`
	Scheduler struct {
		Workers int `yaml:"workers"`
	} `yaml:"scheduler"`
	Session struct {
		StateFile string `yaml:"state_file"`
		Tick      string `yaml:"tick"`
	} `yaml:"session"`
}

// Load reads YAML config from path. A missing file yields the zero config.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
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

// Workers returns the scheduler worker bound, at least 1.
func (c Config) Workers() int {
	if c.Scheduler.Workers <= 0 {
		return 4
	}
	return c.Scheduler.Workers
}
