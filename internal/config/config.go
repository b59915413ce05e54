package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all environment-driven settings for the gateway.
type Config struct {
	ListenAddr  string
	UpstreamURL string

	PostgresDSN string
	RedisURL    string

	TokenSecret string
	TokenIssuer string

	PrincipalTTL time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int

	MaxBodyBytes int64
}

const envPrefix = "CONDOPLEX_"

// Load reads configuration from the environment. The upstream URL is the only
// required value; everything else has a serviceable default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		UpstreamURL:        strings.TrimSpace(os.Getenv(envPrefix + "UPSTREAM_URL")),
		PostgresDSN:        strings.TrimSpace(os.Getenv(envPrefix + "PG_DSN")),
		RedisURL:           strings.TrimSpace(os.Getenv(envPrefix + "REDIS_URL")),
		TokenSecret:        strings.TrimSpace(os.Getenv(envPrefix + "TOKEN_SECRET")),
		TokenIssuer:        getEnv("TOKEN_ISSUER", "condoplex-gateway"),
		PrincipalTTL:       getDuration("PRINCIPAL_TTL", 30*time.Second),
		RateLimitPerSecond: getInt("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 20),
		MaxBodyBytes:       int64(getInt("MAX_BODY_BYTES", 1<<20)),
	}

	if cfg.UpstreamURL == "" {
		return nil, fmt.Errorf("config: %sUPSTREAM_URL is required", envPrefix)
	}
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("config: invalid upstream url %q", cfg.UpstreamURL)
	}
	if cfg.PrincipalTTL <= 0 {
		return nil, fmt.Errorf("config: principal ttl must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
