package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	SentryEnabled bool `toml:"sentry_enabled"`

	// redis, the single source of truth for credentials,
	// sessions, login attempt counters and content
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// login attempt counting backend: "redis" for the durable store,
	// "memory" for a process-local fallback on single instance setups
	LoginAttemptsBackend string `toml:"login_attempts_backend"`

	// coarse per-route limit for the whole /a subrouter, on top of the
	// per-source-address lockout logic
	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`

	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func Load(env, path string) (*Config, error) {
	var tomlCfg Toml
	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlCfg.Get(env)
	if err != nil {
		return nil, err
	}

	cfg.Environment = env
	if cfg.LoginAttemptsBackend == "" {
		cfg.LoginAttemptsBackend = "redis"
	}
	if cfg.LoginRateLimitAllowedPerMin <= 0 {
		cfg.LoginRateLimitAllowedPerMin = 15
	}

	return cfg, nil
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}
