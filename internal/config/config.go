// Package config loads the process configuration from an optional YAML file
// plus environment overrides. A .env file, if present, is folded into the
// environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RecurringJob declares a cron-driven enqueue the scheduler registers at
// startup.
type RecurringJob struct {
	Cron    string `yaml:"cron"`
	Type    string `yaml:"type"`
	Payload string `yaml:"payload"` // JSON document, passed through opaque
}

type Config struct {
	ListenAddr           string         `yaml:"listen_addr"`
	DBPath               string         `yaml:"db_path"`
	SchedulerIntervalSec int            `yaml:"scheduler_interval_sec"`
	AllowedOrigins       []string       `yaml:"allowed_origins"`
	RecurringJobs        []RecurringJob `yaml:"recurring_jobs"`
}

// SchedulerInterval returns the polling interval as a duration.
func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSec) * time.Second
}

func defaults() Config {
	return Config{
		ListenAddr:           ":8080",
		DBPath:               "aria.db",
		SchedulerIntervalSec: 60,
		AllowedOrigins:       []string{"http://localhost:5173"},
	}
}

// Load reads the YAML file at path (skipped when the file does not exist),
// then applies environment overrides on top of defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No config file is fine; env and defaults carry it.
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("ARIA_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ARIA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ARIA_SCHEDULER_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return Config{}, fmt.Errorf("invalid ARIA_SCHEDULER_INTERVAL_SEC: %q", v)
		}
		cfg.SchedulerIntervalSec = sec
	}

	if cfg.SchedulerIntervalSec <= 0 {
		cfg.SchedulerIntervalSec = 60
	}
	return cfg, nil
}
