package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Up.BaseURL != "https://phimapi.com" {
		t.Errorf("Expected default upstream 'https://phimapi.com', got '%s'", cfg.Up.BaseURL)
	}
	if cfg.Page.DefaultLimit != 15 {
		t.Errorf("Expected default limit 15, got %d", cfg.Page.DefaultLimit)
	}

	ttls := cfg.TTLs()
	if ttls.Taxonomy != 24*time.Hour || ttls.Movies != time.Hour || ttls.Batch != 2*time.Hour {
		t.Errorf("Unexpected default TTLs %+v", ttls)
	}
	if cfg.Cache.StaticMaxAge != 24*time.Hour {
		t.Errorf("Expected static max-age 24h, got %s", cfg.Cache.StaticMaxAge)
	}
	if cfg.PrefetchDelay != time.Second {
		t.Errorf("Expected prefetch delay 1s, got %s", cfg.PrefetchDelay)
	}
	if cfg.HasRedis() {
		t.Error("Should not have Redis configured")
	}
	if len(cfg.WarmTargets) == 0 {
		t.Error("Expected default warm targets")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SITE_NAME", "Phim Test")
	t.Setenv("UPSTREAM_BASE_URL", "https://mirror.phimapi.test")
	t.Setenv("PAGINATION_DEFAULT_LIMIT", "24")
	t.Setenv("CACHE_MOVIES_TTL", "30m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("WARM_SLUGS", "category:phim-le,new")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Site.Name != "Phim Test" {
		t.Errorf("Expected site name 'Phim Test', got '%s'", cfg.Site.Name)
	}
	if cfg.Up.BaseURL != "https://mirror.phimapi.test" {
		t.Errorf("Expected overridden upstream, got '%s'", cfg.Up.BaseURL)
	}
	if cfg.Page.DefaultLimit != 24 {
		t.Errorf("Expected limit 24, got %d", cfg.Page.DefaultLimit)
	}
	if cfg.Cache.MoviesTTL != 30*time.Minute {
		t.Errorf("Expected movies TTL 30m, got %s", cfg.Cache.MoviesTTL)
	}
	if !cfg.HasRedis() {
		t.Error("Should have Redis configured")
	}
	if len(cfg.WarmTargets) != 2 || cfg.WarmTargets[1] != "new" {
		t.Errorf("Unexpected warm targets %v", cfg.WarmTargets)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"UPSTREAM_TIMEOUT":         "soon",
		"PAGINATION_DEFAULT_LIMIT": "0",
		"PAGINATION_MAX_LIMIT":     "5",
		"UPSTREAM_BASE_URL":        "phimapi.com",
		"CACHE_BATCH_TTL":          "-1h",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", key, value)
			}
		})
	}
}
