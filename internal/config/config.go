package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tripsplit/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	HomeCurrency       string
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
	MaxBodyBytes       int64

	// AMQP
	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
	AMQPReplyQueue string

	// Worker
	WorkerEnabled bool

	// Settlement
	PlanCacheSize        int
	PlanCacheTTL         time.Duration
	CacheCleanupInterval time.Duration
	ValidateConcurrency  int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		HomeCurrency:       getEnv("HOME_CURRENCY", "USD"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "tripsplit"),
		AMQPQueue:      getEnv("AMQP_QUEUE", "settlement_requests"),
		AMQPReplyQueue: getEnv("AMQP_REPLY_QUEUE", "settlement_results"),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", false),

		PlanCacheSize:        getEnvInt("PLAN_CACHE_SIZE", 256),
		PlanCacheTTL:         getEnvDuration("PLAN_CACHE_TTL", 5*time.Minute),
		CacheCleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", time.Minute),
		ValidateConcurrency:  getEnvInt("VALIDATE_CONCURRENCY", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if err := core.NormalizeCurrency(c.HomeCurrency).Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid home currency '%s': must be a three-letter ISO 4217 code", c.HomeCurrency))
	}

	if c.RequestTimeout < 100*time.Millisecond || c.RequestTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be between 100ms and 5m", c.RequestTimeout))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.MaxBodyBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max body size %d: must be at least 1024 bytes", c.MaxBodyBytes))
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid CORS origin '%s': must be '*' or scheme://host", origin))
		}
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPReplyQueue == "" {
			errors = append(errors, "AMQP reply queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue != "" && c.AMQPQueue == c.AMQPReplyQueue {
			errors = append(errors, "AMQP request and reply queues must differ")
		}
	}
	if c.WorkerEnabled && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required when the worker is enabled")
	}

	if c.PlanCacheSize < 0 || c.PlanCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid plan cache size %d: must be between 0 and 100000", c.PlanCacheSize))
	}
	if c.PlanCacheSize > 0 && c.PlanCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid plan cache TTL %v: must be at least 1 second", c.PlanCacheTTL))
	}
	if c.CacheCleanupInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache cleanup interval %v: must be at least 1 second", c.CacheCleanupInterval))
	}
	if c.ValidateConcurrency < 1 || c.ValidateConcurrency > 256 {
		errors = append(errors, fmt.Sprintf("invalid validate concurrency %d: must be between 1 and 256", c.ValidateConcurrency))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
