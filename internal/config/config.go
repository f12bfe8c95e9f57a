// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/phimhub/phimhub/cache"
)

// Config holds all application configuration
type Config struct {
	Port  string `env:"PORT" envDefault:"8080"`
	Site  SiteConfig
	Up    UpstreamConfig
	Page  PaginationConfig
	Cache CacheConfig

	PrefetchDelay time.Duration `env:"PREFETCH_DELAY" envDefault:"1s"`

	// RedisAddr enables the shared tag store and the warm worker when set.
	RedisAddr       string   `env:"REDIS_ADDR"`
	RedisPassword   string   `env:"REDIS_PASSWORD"`
	RedisDB         int      `env:"REDIS_DB" envDefault:"0"`
	WarmTargets     []string `env:"WARM_SLUGS" envSeparator:"," envDefault:"new,category:phim-bo,category:phim-le,category:hoat-hinh,category:tv-shows"`
	WarmConcurrency int      `env:"WARM_CONCURRENCY" envDefault:"4"`

	// ProxyRatePerMin bounds /api/proxy calls per client IP.
	ProxyRatePerMin int `env:"PROXY_RATE_PER_MIN" envDefault:"120"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// SiteConfig describes the public site.
type SiteConfig struct {
	Domain      string `env:"SITE_DOMAIN" envDefault:"https://phimhub.example"`
	Name        string `env:"SITE_NAME" envDefault:"PhimHub"`
	Description string `env:"SITE_DESCRIPTION" envDefault:"Xem phim online miễn phí, cập nhật nhanh nhất"`
}

// UpstreamConfig holds the catalog API settings
type UpstreamConfig struct {
	BaseURL    string        `env:"UPSTREAM_BASE_URL" envDefault:"https://phimapi.com"`
	ImageCDN   string        `env:"UPSTREAM_IMAGE_CDN" envDefault:"https://phimimg.com"`
	Timeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"15s"`
	RetryMax   uint          `env:"UPSTREAM_RETRY_MAX" envDefault:"2"`
	RatePerSec float64       `env:"UPSTREAM_RATE_PER_SEC" envDefault:"10"`
	Burst      int           `env:"UPSTREAM_BURST" envDefault:"20"`
}

type PaginationConfig struct {
	DefaultLimit int `env:"PAGINATION_DEFAULT_LIMIT" envDefault:"15"`
	MaxLimit     int `env:"PAGINATION_MAX_LIMIT" envDefault:"64"`
}

// CacheConfig holds the TTL of each resource class
type CacheConfig struct {
	CategoriesTTL time.Duration `env:"CACHE_CATEGORIES_TTL" envDefault:"24h"`
	MoviesTTL     time.Duration `env:"CACHE_MOVIES_TTL" envDefault:"1h"`
	BatchTTL      time.Duration `env:"CACHE_BATCH_TTL" envDefault:"2h"`
	StaticMaxAge  time.Duration `env:"CACHE_STATIC_MAX_AGE" envDefault:"24h"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TTLs returns the cache TTL classes
func (c *Config) TTLs() cache.TTLs {
	return cache.TTLs{
		Taxonomy: c.Cache.CategoriesTTL,
		Movies:   c.Cache.MoviesTTL,
		Batch:    c.Cache.BatchTTL,
	}
}

// HasRedis returns true if a Redis address is configured
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// Validate checks values env parsing cannot
func (c *Config) Validate() error {
	u, err := url.Parse(c.Up.BaseURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("UPSTREAM_BASE_URL must be an absolute http(s) url, got %q", c.Up.BaseURL)
	}
	if c.Page.DefaultLimit <= 0 {
		return fmt.Errorf("PAGINATION_DEFAULT_LIMIT must be positive, got %d", c.Page.DefaultLimit)
	}
	if c.Page.MaxLimit < c.Page.DefaultLimit {
		return fmt.Errorf("PAGINATION_MAX_LIMIT (%d) must be at least PAGINATION_DEFAULT_LIMIT (%d)", c.Page.MaxLimit, c.Page.DefaultLimit)
	}
	for name, d := range map[string]time.Duration{
		"CACHE_CATEGORIES_TTL": c.Cache.CategoriesTTL,
		"CACHE_MOVIES_TTL":     c.Cache.MoviesTTL,
		"CACHE_BATCH_TTL":      c.Cache.BatchTTL,
		"UPSTREAM_TIMEOUT":     c.Up.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	return nil
}
