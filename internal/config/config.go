package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is the API server configuration, read from PHARMA_* variables.
type Config struct {
	Env                   string `envconfig:"ENV" default:"development"`
	Port                  string `envconfig:"PORT" default:"8000"`
	AllowedOrigin         string `envconfig:"ALLOWED_ORIGIN" default:"http://localhost:3000"`
	DatabaseURL           string `envconfig:"DATABASE_URL"`
	RedisAddr             string `envconfig:"REDIS_ADDR"`
	RedisPassword         string `envconfig:"REDIS_PASSWORD"`
	RedisDB               int    `envconfig:"REDIS_DB" default:"0"`
	DashboardTTLSeconds   int    `envconfig:"DASHBOARD_TTL_SECONDS" default:"20"`
	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	SeedAdminPassword     string `envconfig:"SEED_ADMIN_PASSWORD"`
	LogLevel              string `envconfig:"LOG_LEVEL"`
	LogFormat             string `envconfig:"LOG_FORMAT"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("PHARMA", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load server config")
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.DashboardTTLSeconds < 1 {
		cfg.DashboardTTLSeconds = 20
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) DashboardTTL() time.Duration {
	return time.Duration(c.DashboardTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// ClientConfig configures pharmactl, read from PHARMACTL_* variables.
type ClientConfig struct {
	APIURL        string        `envconfig:"API_URL" default:"http://localhost:8000"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"15s"`
	SessionFile   string        `envconfig:"SESSION_FILE"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"warn"`
}

func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("PHARMACTL", &cfg); err != nil {
		return ClientConfig{}, errors.Wrap(err, "load client config")
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return cfg, nil
}
