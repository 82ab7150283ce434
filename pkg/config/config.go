package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPlannerURL    = "https://v6.db.transport.rest"
	DefaultUserAgent     = "splitfare/1.0.0"
	DefaultFetchTimeout  = 15 * time.Second
	DefaultCacheTTL      = 10 * time.Minute
	DefaultCacheSize     = 5000
	DefaultListenAddress = ":8080"
	DefaultNATSSubject   = "splitfare.search"
)

// CacheMode selects the leg price cache backend
type CacheMode string

const (
	CacheOff    CacheMode = "off"
	CacheMemory CacheMode = "memory"
	CacheRedis  CacheMode = "redis"
)

type Config struct {
	PlannerURL   string
	UserAgent    string
	FetchTimeout time.Duration

	CacheMode     CacheMode
	CacheTTL      time.Duration
	CacheSize     int
	RedisAddress  string
	RedisPassword string
	RedisDatabase int

	LokiURL      string
	LokiUser     string
	LokiPassword string

	NATSURL     string
	NATSSubject string

	ListenAddress string
	RulesFile     string
}

// Load reads .env (ignored if missing) and then SPLITFARE_* environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PlannerURL:    strings.TrimSuffix(getEnv("SPLITFARE_PLANNER_URL", DefaultPlannerURL), "/"),
		UserAgent:     getEnv("SPLITFARE_USER_AGENT", DefaultUserAgent),
		RedisAddress:  getEnv("SPLITFARE_REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: os.Getenv("SPLITFARE_REDIS_PASSWORD"),
		LokiURL:       os.Getenv("SPLITFARE_LOKI_URL"),
		LokiUser:      os.Getenv("SPLITFARE_LOKI_USER"),
		LokiPassword:  os.Getenv("SPLITFARE_LOKI_PASSWORD"),
		NATSURL:       os.Getenv("SPLITFARE_NATS_URL"),
		NATSSubject:   getEnv("SPLITFARE_NATS_SUBJECT", DefaultNATSSubject),
		ListenAddress: getEnv("SPLITFARE_LISTEN", DefaultListenAddress),
		RulesFile:     os.Getenv("SPLITFARE_RULES_FILE"),
	}

	var err error
	if cfg.FetchTimeout, err = parseDuration("SPLITFARE_FETCH_TIMEOUT", DefaultFetchTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration("SPLITFARE_CACHE_TTL", DefaultCacheTTL); err != nil {
		return nil, err
	}

	switch mode := CacheMode(strings.ToLower(getEnv("SPLITFARE_CACHE", string(CacheOff)))); mode {
	case CacheOff, CacheMemory, CacheRedis:
		cfg.CacheMode = mode
	default:
		return nil, fmt.Errorf("invalid SPLITFARE_CACHE: %q", mode)
	}

	cfg.CacheSize = DefaultCacheSize
	if v := os.Getenv("SPLITFARE_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid SPLITFARE_CACHE_SIZE: %q", v)
		}
		cfg.CacheSize = n
	}

	if v := os.Getenv("SPLITFARE_REDIS_DATABASE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SPLITFARE_REDIS_DATABASE: %q", v)
		}
		cfg.RedisDatabase = n
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
