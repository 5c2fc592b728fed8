package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Registry.StalenessThreshold != 120*time.Second {
		t.Errorf("staleness threshold = %v", cfg.Registry.StalenessThreshold)
	}
	if cfg.Resume.CheckpointMaxAge != time.Hour {
		t.Errorf("resume checkpoint max age = %v", cfg.Resume.CheckpointMaxAge)
	}
	if cfg.Scoring.BaseCheckpoint != 100 || cfg.Scoring.BaseBasic != 40 {
		t.Errorf("scoring bases = %d/%d", cfg.Scoring.BaseCheckpoint, cfg.Scoring.BaseBasic)
	}
}

func TestLoadFromYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	yaml := `
server:
  port: "9090"
registry:
  staleness_threshold: 5m
  checkpoint_hint: 75
checkpoint:
  max_per_instance: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want yaml override", cfg.Server.Port)
	}
	if cfg.Registry.StalenessThreshold != 5*time.Minute {
		t.Errorf("staleness threshold = %v", cfg.Registry.StalenessThreshold)
	}
	if cfg.Registry.CheckpointHint != 75 {
		t.Errorf("checkpoint hint = %d", cfg.Registry.CheckpointHint)
	}
	if cfg.Checkpoint.MaxPerInstance != 3 {
		t.Errorf("max per instance = %d", cfg.Checkpoint.MaxPerInstance)
	}
	// Untouched keys keep their defaults.
	if cfg.Resume.CheckpointMaxAge != time.Hour {
		t.Errorf("resume checkpoint max age = %v", cfg.Resume.CheckpointMaxAge)
	}
}

func TestLoadFromEnvBeatsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("WAYPOINT_PORT", "7070")
	t.Setenv("WAYPOINT_STALENESS_THRESHOLD", "10m")
	t.Setenv("DATABASE_URL", "postgres://env:env@db:5432/waypoint")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want env override", cfg.Server.Port)
	}
	if cfg.Registry.StalenessThreshold != 10*time.Minute {
		t.Errorf("staleness threshold = %v", cfg.Registry.StalenessThreshold)
	}
	if cfg.Postgres.DSN != "postgres://env:env@db:5432/waypoint" {
		t.Errorf("dsn = %q", cfg.Postgres.DSN)
	}
}

func TestLoadFromMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name  string
		mutate func(*Config)
	}{
		{"empty dsn", func(c *Config) { c.Postgres.DSN = "" }},
		{"non-positive staleness", func(c *Config) { c.Registry.StalenessThreshold = 0 }},
		{"non-positive resume max age", func(c *Config) { c.Resume.CheckpointMaxAge = 0 }},
		{"level bounds not descending", func(c *Config) { c.Scoring.ModerateMin = 95 }},
		{"fresh age above medium age", func(c *Config) { c.Scoring.CheckpointFreshAge = time.Hour }},
		{"checkpoint hint out of range", func(c *Config) { c.Registry.CheckpointHint = 150 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
