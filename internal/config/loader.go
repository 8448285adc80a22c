package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "collectibles.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator flags
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "COLLECTIBLES_PORT")
	setString(&cfg.Server.CORSOrigin, "COLLECTIBLES_CORS_ORIGIN")
	setString(&cfg.Server.WSPath, "COLLECTIBLES_WS_PATH")

	setString(&cfg.Catalog.Backend, "COLLECTIBLES_CATALOG_BACKEND")
	setBool(&cfg.Catalog.Seed, "COLLECTIBLES_CATALOG_SEED")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COLLECTIBLES_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COLLECTIBLES_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COLLECTIBLES_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COLLECTIBLES_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COLLECTIBLES_PG_HEALTH_CHECK")

	setString(&cfg.Mongo.URI, "MONGO_URL")
	setString(&cfg.Mongo.Database, "COLLECTIBLES_MONGO_DATABASE")
	setUint64(&cfg.Mongo.MaxPoolSize, "COLLECTIBLES_MONGO_MAX_POOL_SIZE")
	setDuration(&cfg.Mongo.ConnectTimeout, "COLLECTIBLES_MONGO_CONNECT_TIMEOUT")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "COLLECTIBLES_NATS_KV_BUCKET")

	// Broadcast
	setDuration(&cfg.Broadcast.SendTimeout, "COLLECTIBLES_BROADCAST_SEND_TIMEOUT")
	setInt(&cfg.Broadcast.QueueSize, "COLLECTIBLES_BROADCAST_QUEUE_SIZE")
	setInt(&cfg.Broadcast.MaxParallel, "COLLECTIBLES_BROADCAST_MAX_PARALLEL")
	setInt(&cfg.Broadcast.MaxConnections, "COLLECTIBLES_BROADCAST_MAX_CONNECTIONS")
	setDuration(&cfg.Broadcast.IdleTimeout, "COLLECTIBLES_BROADCAST_IDLE_TIMEOUT")
	setBool(&cfg.Broadcast.SnapshotOnConnect, "COLLECTIBLES_BROADCAST_SNAPSHOT_ON_CONNECT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "COLLECTIBLES_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "COLLECTIBLES_CACHE_TTL")

	setInt(&cfg.Breaker.MaxFailures, "COLLECTIBLES_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COLLECTIBLES_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "COLLECTIBLES_RATE_RPS")
	setInt(&cfg.Rate.Burst, "COLLECTIBLES_RATE_BURST")

	setString(&cfg.Logging.Level, "COLLECTIBLES_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COLLECTIBLES_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COLLECTIBLES_LOG_ASYNC")

	setBool(&cfg.OTEL.Enabled, "COLLECTIBLES_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "COLLECTIBLES_OTEL_INSECURE")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		return errors.New("server.ws_path must start with '/'")
	}
	switch cfg.Catalog.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case BackendMongo:
		if cfg.Mongo.URI == "" || cfg.Mongo.Database == "" {
			return errors.New("mongo.uri and mongo.database are required for the mongo backend")
		}
		if cfg.Mongo.ConnectTimeout <= 0 {
			return errors.New("mongo.connect_timeout must be > 0")
		}
	default:
		return fmt.Errorf("catalog.backend %q is not supported (use %q, %q or %q)",
			cfg.Catalog.Backend, BackendMemory, BackendPostgres, BackendMongo)
	}
	if cfg.Broadcast.SendTimeout <= 0 {
		return errors.New("broadcast.send_timeout must be > 0")
	}
	if cfg.Broadcast.QueueSize < 1 {
		return errors.New("broadcast.queue_size must be >= 1")
	}
	if cfg.Broadcast.MaxParallel < 1 {
		return errors.New("broadcast.max_parallel must be >= 1")
	}
	if cfg.Broadcast.MaxConnections < 0 {
		return errors.New("broadcast.max_connections must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint == "" {
		return errors.New("otel.endpoint is required when otel is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
