package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Update log drivers.
const (
	UpdateLogPostgres = "postgres"
	UpdateLogSQLite   = "sqlite"
	UpdateLogMemory   = "memory"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	Assessment struct {
		CacheTTL string `yaml:"cacheTTL" env:"ASSESSMENT_CACHE_TTL"`
	} `yaml:"assessment"`
	Rating struct {
		MinGap          string `yaml:"minGap" env:"RATING_MIN_GAP"`
		QueueCapacity   int    `yaml:"queueCapacity" env:"RATING_QUEUE_CAPACITY"`
		SweepSpec       string `yaml:"sweepSpec" env:"RATING_SWEEP_SPEC"`
		PersistRetries  int    `yaml:"persistRetries" env:"RATING_PERSIST_RETRIES"`
		RetryDelay      string `yaml:"retryDelay" env:"RATING_RETRY_DELAY"`
		StarvationTicks int    `yaml:"starvationTicks" env:"RATING_STARVATION_TICKS"`
	} `yaml:"rating"`
	Regrade struct {
		Workers int `yaml:"workers" env:"REGRADE_WORKERS"`
	} `yaml:"regrade"`
	UpdateLog struct {
		Driver     string `yaml:"driver" env:"UPDATE_LOG_DRIVER"`
		SQLitePath string `yaml:"sqlitePath" env:"UPDATE_LOG_SQLITE_PATH"`
	} `yaml:"updateLog"`
}

// Load reads YAML config from path, lets environment variables override it and fills defaults.
// A missing file is not an error; the service then runs on env and defaults alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Assessment.CacheTTL == "" {
		c.Assessment.CacheTTL = "10m"
	}
	if c.Rating.MinGap == "" {
		c.Rating.MinGap = "10s"
	}
	if c.Rating.QueueCapacity <= 0 {
		c.Rating.QueueCapacity = 64
	}
	if c.Rating.SweepSpec == "" {
		c.Rating.SweepSpec = "@every 5m"
	}
	if c.Rating.PersistRetries <= 0 {
		c.Rating.PersistRetries = 3
	}
	if c.Rating.RetryDelay == "" {
		c.Rating.RetryDelay = "200ms"
	}
	if c.Rating.StarvationTicks <= 0 {
		c.Rating.StarvationTicks = 5
	}
	if c.Regrade.Workers <= 0 {
		c.Regrade.Workers = 4
	}
	if c.UpdateLog.Driver == "" {
		if c.Postgres.URL != "" {
			c.UpdateLog.Driver = UpdateLogPostgres
		} else {
			c.UpdateLog.Driver = UpdateLogMemory
		}
	}
	if c.UpdateLog.Driver == UpdateLogSQLite && c.UpdateLog.SQLitePath == "" {
		c.UpdateLog.SQLitePath = "data/rating-log.db"
	}
}

func (c Config) validate() error {
	switch c.UpdateLog.Driver {
	case UpdateLogMemory, UpdateLogSQLite:
	case UpdateLogPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("updateLog.driver postgres needs postgres.url")
		}
	default:
		return fmt.Errorf("unknown updateLog.driver %q", c.UpdateLog.Driver)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
