package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultNATSURL         = "nats://localhost:4222"
	defaultRedisURL        = "redis://localhost:6379"
	defaultListenAddr      = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultChannelTable    = "config/channels.yaml"
	defaultClassifierPath  = "config/classifier.yaml"
	defaultDomainSeedDir   = "config/domains"
	defaultHandlerTimeout  = 90 * time.Second
	defaultWorkerPoolSize  = 32
	defaultLocalCacheSize  = 1024
	envNATSURL             = "NATS_URL"
	envRedisURL            = "REDIS_URL"
	envListenAddr          = "LISTEN_ADDR"
	envMetricsAddr         = "METRICS_ADDR"
	envChannelTablePath    = "CHANNEL_TABLE_PATH"
	envClassifierPath      = "CLASSIFIER_CONFIG_PATH"
	envDomainSeedDir       = "DOMAIN_SEED_DIR"
	envHandlerTimeout      = "HANDLER_TIMEOUT"
	envWorkerPoolSize      = "WORKER_POOL_SIZE"
	envLocalCacheSize      = "LOCAL_CACHE_MAX_ENTRIES"
	envRemoteCrewsEnabled  = "REMOTE_CREWS_ENABLED"
)

// Config holds runtime configuration for the router process.
type Config struct {
	NatsURL            string
	RedisURL           string
	ListenAddr         string
	MetricsAddr        string
	ChannelTablePath   string
	ClassifierPath     string
	DomainSeedDir      string
	HandlerTimeout     time.Duration
	WorkerPoolSize     int
	LocalCacheEntries  int
	RemoteCrewsEnabled bool
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		NatsURL:           envOr(envNATSURL, defaultNATSURL),
		RedisURL:          envOr(envRedisURL, defaultRedisURL),
		ListenAddr:        envOr(envListenAddr, defaultListenAddr),
		MetricsAddr:       envOr(envMetricsAddr, defaultMetricsAddr),
		ChannelTablePath:  envOr(envChannelTablePath, defaultChannelTable),
		ClassifierPath:    envOr(envClassifierPath, defaultClassifierPath),
		DomainSeedDir:     envOr(envDomainSeedDir, defaultDomainSeedDir),
		HandlerTimeout:    defaultHandlerTimeout,
		WorkerPoolSize:    defaultWorkerPoolSize,
		LocalCacheEntries: defaultLocalCacheSize,
	}

	if v := os.Getenv(envHandlerTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HandlerTimeout = d
		}
	}
	if v := os.Getenv(envWorkerPoolSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerPoolSize = n
		}
	}
	if v := os.Getenv(envLocalCacheSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LocalCacheEntries = n
		}
	}
	cfg.RemoteCrewsEnabled = os.Getenv(envRemoteCrewsEnabled) == "true"
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
