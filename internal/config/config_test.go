package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("expected default timezone UTC, got %q", cfg.Timezone)
	}
	if cfg.Eligibility.DailyThreshold != 20 || cfg.Eligibility.RequiredDays != 3 {
		t.Errorf("unexpected eligibility defaults: %+v", cfg.Eligibility)
	}
	if cfg.Eligibility.RequiredTotal != 150 || cfg.Eligibility.WindowDays != 7 {
		t.Errorf("unexpected eligibility defaults: %+v", cfg.Eligibility)
	}
	// A missing gate section must still yield a queueing gate.
	if cfg.Gate.Capacity != 5 || cfg.Gate.QueueDepth != 50 || cfg.Gate.TimeoutSeconds != 10 {
		t.Errorf("unexpected gate defaults: %+v", cfg.Gate)
	}
}

func TestLoadParsesTiers(t *testing.T) {
	path := writeConfig(t, `{
		"timezone": "Asia/Seoul",
		"tiers": [
			{"name": "tier1", "label": "Tier 1", "minute": 10, "daily": 50},
			{"name": "tier2", "label": "Tier 2", "minute": 15, "daily": 100}
		],
		"gate": {"capacity": 8, "queue_depth": 20, "timeout_seconds": 5}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Tiers) != 2 || cfg.Tiers[1].Daily != 100 {
		t.Errorf("unexpected tiers: %+v", cfg.Tiers)
	}
	if cfg.Timezone != "Asia/Seoul" {
		t.Errorf("expected configured timezone, got %q", cfg.Timezone)
	}
	if cfg.Gate.Capacity != 8 {
		t.Errorf("expected gate capacity 8, got %d", cfg.Gate.Capacity)
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	path := writeConfig(t, `{"postgres": {"password": "from-file"}}`)

	t.Setenv("POSTGRES_PASSWORD", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Postgres.Password != "from-env" {
		t.Errorf("expected env password to win, got %q", cfg.Postgres.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
