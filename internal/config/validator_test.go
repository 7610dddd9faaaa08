package config

import (
	"runtime"
	"testing"

	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := Defaults()

	validator := NewValidator()
	if err := validator.ValidateAndSetDefaults(cfg); err != nil {
		t.Fatalf("ValidateAndSetDefaults failed: %v", err)
	}

	want := runtime.NumCPU() - 1
	if want < 1 {
		want = 1
	}
	if cfg.Performance.MaxConcurrentSearches != want {
		t.Errorf("MaxConcurrentSearches = %d, want %d", cfg.Performance.MaxConcurrentSearches, want)
	}

	if cfg.Cache.Root == "" {
		t.Errorf("Cache.Root should have a default value")
	}
}

func TestValidateKeepsExplicitValues(t *testing.T) {
	cfg := Defaults()
	cfg.Performance.MaxConcurrentSearches = 7
	cfg.Cache.Root = "/srv/cache"

	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig failed: %v", err)
	}
	if cfg.Performance.MaxConcurrentSearches != 7 {
		t.Errorf("MaxConcurrentSearches overwritten: %d", cfg.Performance.MaxConcurrentSearches)
	}
	if cfg.Cache.Root != "/srv/cache" {
		t.Errorf("Cache.Root overwritten: %s", cfg.Cache.Root)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero factor", func(c *Config) { c.Safety.Factor = 0 }},
		{"negative factor", func(c *Config) { c.Safety.Factor = -1 }},
		{"fraction above one", func(c *Config) { c.Safety.SystemFraction = 1.5 }},
		{"negative heap budget", func(c *Config) { c.Safety.HeapBudget = -1 }},
		{"negative context lines", func(c *Config) { c.Search.ContextLines = -1 }},
		{"bad glob", func(c *Config) { c.Search.Globs = []string{"[a-"} }},
		{"negative max age", func(c *Config) { c.Cache.MaxAgeHours = -1 }},
		{"negative concurrency", func(c *Config) { c.Performance.MaxConcurrentSearches = -2 }},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMs = -1 }},
		{"negative result size", func(c *Config) { c.Context.MaxResultSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if flerrors.Kind(err) != flerrors.ErrorTypeConfig {
				t.Errorf("Kind = %s, want %s", flerrors.Kind(err), flerrors.ErrorTypeConfig)
			}
		})
	}
}
