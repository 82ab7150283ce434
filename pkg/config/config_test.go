package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PlannerURL != DefaultPlannerURL {
		t.Errorf("PlannerURL = %q, want %q", cfg.PlannerURL, DefaultPlannerURL)
	}
	if cfg.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("FetchTimeout = %v, want %v", cfg.FetchTimeout, DefaultFetchTimeout)
	}
	if cfg.CacheMode != CacheOff {
		t.Errorf("CacheMode = %q, want %q", cfg.CacheMode, CacheOff)
	}
	if cfg.CacheSize != DefaultCacheSize {
		t.Errorf("CacheSize = %d, want %d", cfg.CacheSize, DefaultCacheSize)
	}
	if cfg.NATSSubject != DefaultNATSSubject {
		t.Errorf("NATSSubject = %q, want %q", cfg.NATSSubject, DefaultNATSSubject)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SPLITFARE_PLANNER_URL", "http://planner.local/")
	t.Setenv("SPLITFARE_FETCH_TIMEOUT", "3s")
	t.Setenv("SPLITFARE_CACHE", "Redis")
	t.Setenv("SPLITFARE_REDIS_DATABASE", "2")
	t.Setenv("SPLITFARE_CACHE_TTL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PlannerURL != "http://planner.local" {
		t.Errorf("PlannerURL = %q, want trailing slash trimmed", cfg.PlannerURL)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v, want 3s", cfg.FetchTimeout)
	}
	if cfg.CacheMode != CacheRedis {
		t.Errorf("CacheMode = %q, want %q", cfg.CacheMode, CacheRedis)
	}
	if cfg.RedisDatabase != 2 {
		t.Errorf("RedisDatabase = %d, want 2", cfg.RedisDatabase)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", cfg.CacheTTL)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SPLITFARE_NATS_SUBJECT=trips.split\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SPLITFARE_NATS_SUBJECT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NATSSubject != "trips.split" {
		t.Errorf("NATSSubject = %q, want %q", cfg.NATSSubject, "trips.split")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad timeout", "SPLITFARE_FETCH_TIMEOUT", "soon"},
		{"negative timeout", "SPLITFARE_FETCH_TIMEOUT", "-1s"},
		{"unknown cache", "SPLITFARE_CACHE", "disk"},
		{"bad cache size", "SPLITFARE_CACHE_SIZE", "0"},
		{"bad redis db", "SPLITFARE_REDIS_DATABASE", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%q, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	defaults, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules(\"\") failed: %v", err)
	}
	if defaults.RemarkCode != FlatRateRemarkCode {
		t.Errorf("RemarkCode = %q, want %q", defaults.RemarkCode, FlatRateRemarkCode)
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "products:\n  - regional\nproduct_names:\n  - Bus\n  - Tram\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if rules.RemarkCode != FlatRateRemarkCode {
		t.Errorf("RemarkCode = %q, want default kept", rules.RemarkCode)
	}
	if len(rules.Products) != 1 || rules.Products[0] != ProductRegional {
		t.Errorf("Products = %v, want [regional]", rules.Products)
	}
	if len(rules.ProductNames) != 2 || rules.ProductNames[1] != "Tram" {
		t.Errorf("ProductNames = %v, want [Bus Tram]", rules.ProductNames)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing rules file")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup, like testing.T.Chdir in newer Go releases.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("Chdir back failed: %v", err)
		}
	})
}
