package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/porthorian/cityauthz"
)

const envPrefix = "CITYAUTHZ"

// settings is read from CITYAUTHZ_* variables, optionally seeded from a .env file.
type settings struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr        string        `envconfig:"GRPC_ADDR" default:""`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`

	RateLimit      int           `envconfig:"RATE_LIMIT" default:"600"`
	RateWindow     time.Duration `envconfig:"RATE_WINDOW" default:"1m"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`

	DatabaseURL  string `envconfig:"DATABASE_URL"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	StoreBackend  string        `envconfig:"STORE_BACKEND" default:""`
	CacheBackend  string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"2m"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisUsername string        `envconfig:"REDIS_USERNAME"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string        `envconfig:"REDIS_PREFIX" default:"cityauthz"`

	LogVerbosity   int  `envconfig:"LOG_VERBOSITY" default:"0"`
	LogDevelopment bool `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

func loadSettings(envFile string) (settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return settings{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var s settings
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return settings{}, fmt.Errorf("read %s_* environment: %w", envPrefix, err)
	}
	return s, nil
}

func (s settings) clientConfig(logger logr.Logger) (cityauthz.Config, error) {
	config := cityauthz.Config{
		AssignmentCacheTTL: s.CacheTTL,
		Logger:             logger,
	}

	dsn := strings.TrimSpace(s.DatabaseURL)
	switch backend := cityauthz.StorageBackend(strings.ToLower(strings.TrimSpace(s.StoreBackend))); backend {
	case "":
		if dsn != "" {
			config.Runtime.Storage = s.postgresStorage(dsn)
		}
	case cityauthz.StorageBackendNone:
	case cityauthz.StorageBackendMemory:
		// Nothing in the served API writes assignments, so a process-local store stays empty.
		return cityauthz.Config{}, fmt.Errorf("store backend %q is not servable: no route fills it; use postgres or none", backend)
	case cityauthz.StorageBackendPostgres:
		if dsn == "" {
			return cityauthz.Config{}, fmt.Errorf("%s_DATABASE_URL is required when the store backend is postgres", envPrefix)
		}
		config.Runtime.Storage = s.postgresStorage(dsn)
	default:
		return cityauthz.Config{}, fmt.Errorf("unsupported store backend %q", s.StoreBackend)
	}

	switch backend := cityauthz.CacheBackend(strings.ToLower(strings.TrimSpace(s.CacheBackend))); backend {
	case "", cityauthz.CacheBackendNone:
		config.Runtime.Cache.Backend = cityauthz.CacheBackendNone
	case cityauthz.CacheBackendMemory:
		config.Runtime.Cache.Backend = cityauthz.CacheBackendMemory
	case cityauthz.CacheBackendRedis:
		if strings.TrimSpace(s.RedisAddr) == "" {
			return cityauthz.Config{}, fmt.Errorf("%s_REDIS_ADDR is required when the cache backend is redis", envPrefix)
		}
		config.Runtime.Cache = cityauthz.CacheConfig{
			Backend: cityauthz.CacheBackendRedis,
			Redis: cityauthz.RedisCacheConfig{
				Address:   s.RedisAddr,
				Username:  s.RedisUsername,
				Password:  s.RedisPassword,
				Database:  s.RedisDB,
				Namespace: s.RedisPrefix,
			},
		}
	default:
		return cityauthz.Config{}, fmt.Errorf("unsupported cache backend %q", s.CacheBackend)
	}

	return config, nil
}

func (s settings) postgresStorage(dsn string) cityauthz.StorageConfig {
	return cityauthz.StorageConfig{
		Backend: cityauthz.StorageBackendPostgres,
		Postgres: cityauthz.PostgresConfig{
			DriverName:      "pgx",
			DSN:             dsn,
			MaxOpenConns:    s.MaxOpenConns,
			MaxIdleConns:    s.MaxIdleConns,
			ConnMaxLifetime: 30 * time.Minute,
		},
	}
}

// newLogger bridges zap into logr. Verbosity n enables logr V(n) and below.
func newLogger(verbosity int, development bool) (logr.Logger, func(), error) {
	if verbosity < 0 {
		verbosity = 0
	}

	zapConfig := zap.NewProductionConfig()
	if development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("build logger: %w", err)
	}

	return zapr.NewLogger(zapLogger), func() { _ = zapLogger.Sync() }, nil
}
