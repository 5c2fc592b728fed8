package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "waypoint.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "WAYPOINT_PORT")
	setString(&cfg.Server.CORSOrigin, "WAYPOINT_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "WAYPOINT_REQUEST_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "WAYPOINT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "WAYPOINT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "WAYPOINT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "WAYPOINT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "WAYPOINT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.MCP.Addr, "WAYPOINT_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "WAYPOINT_MCP_API_KEY")
	setString(&cfg.Logging.Level, "WAYPOINT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WAYPOINT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WAYPOINT_LOG_ASYNC")
	setDuration(&cfg.Registry.StalenessThreshold, "WAYPOINT_STALENESS_THRESHOLD")
	setDuration(&cfg.Registry.MonitorInterval, "WAYPOINT_MONITOR_INTERVAL")
	setInt(&cfg.Registry.CheckpointHint, "WAYPOINT_CHECKPOINT_HINT")
	setDuration(&cfg.Checkpoint.MaxAge, "WAYPOINT_CHECKPOINT_MAX_AGE")
	setInt(&cfg.Checkpoint.MaxPerInstance, "WAYPOINT_CHECKPOINT_MAX_PER_INSTANCE")
	setDuration(&cfg.Resume.CheckpointMaxAge, "WAYPOINT_RESUME_CHECKPOINT_MAX_AGE")
	setInt(&cfg.Git.MaxConcurrent, "WAYPOINT_GIT_MAX_CONCURRENT")
	setString(&cfg.Git.WorkspaceRoot, "WAYPOINT_WORKSPACE_ROOT")
	setBool(&cfg.Telemetry.Enabled, "WAYPOINT_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "WAYPOINT_OTLP_ENDPOINT")
}

// validate checks cross-field constraints that would break the service at runtime.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.Registry.StalenessThreshold <= 0 {
		return errors.New("registry staleness threshold must be positive")
	}
	if cfg.Resume.CheckpointMaxAge <= 0 {
		return errors.New("resume checkpoint max age must be positive")
	}
	s := cfg.Scoring
	if !(s.HighMin > s.ModerateMin && s.ModerateMin > s.LowMin && s.LowMin > 0) {
		return errors.New("scoring level bounds must be strictly descending and positive")
	}
	if s.CheckpointFreshAge >= s.CheckpointMediumAge {
		return errors.New("checkpoint fresh age must be below medium age")
	}
	if s.CheckpointMediumAge > cfg.Resume.CheckpointMaxAge {
		return errors.New("checkpoint medium age must not exceed resume checkpoint max age")
	}
	if cfg.Registry.CheckpointHint < 0 || cfg.Registry.CheckpointHint > 100 {
		return errors.New("registry checkpoint hint must be in [0,100]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
