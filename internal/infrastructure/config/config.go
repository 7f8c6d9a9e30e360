package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"        validate:"required"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	StoreDriver string `env:"STORE_DRIVER, default=mongo" validate:"oneof=mongo postgres memory"`
	LockDriver  string `env:"LOCK_DRIVER,  default=local" validate:"oneof=local redis"`

	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=recycling"`
}

type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN, default=postgres://localhost:5432/recycling?sslmode=disable"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR,      default=localhost:6379"`
	DB       int           `env:"REDIS_DB,        default=0"`
	PoolSize int           `env:"REDIS_POOL_SIZE, default=20"  validate:"gt=0"`
	LockTTL  time.Duration `env:"LOCK_TTL,        default=10s" validate:"gt=0"`
	LockWait time.Duration `env:"LOCK_WAIT,       default=3s"  validate:"gte=0"`
}

type LedgerConfig struct {
	DuplicateWindowSeconds int           `env:"DUPLICATE_SCAN_WINDOW_SECONDS, default=5"               validate:"gte=0"`
	PhoneLength            int           `env:"PHONE_LENGTH,                  default=11"              validate:"gt=0"`
	MaterialRates          string        `env:"MATERIAL_RATES,                default=plastic:5;can:10" validate:"required"`
	OperationTimeout       time.Duration `env:"OPERATION_TIMEOUT,             default=5s"              validate:"gt=0"`
	IngestWorkers          int           `env:"INGEST_WORKERS,                default=8"               validate:"gt=0"`
}

// DuplicateWindow is the cooldown between two scans of the same material.
func (c LedgerConfig) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowSeconds) * time.Second
}

// Rates parses MATERIAL_RATES. Entries are material:points pairs separated
// by ';' or ','. Points may be negative.
func (c LedgerConfig) Rates() (map[string]int64, error) {
	return ParseRates(c.MaterialRates)
}

func ParseRates(s string) (map[string]int64, error) {
	rates := make(map[string]int64)
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	for _, f := range fields {
		name, value, ok := strings.Cut(f, ":")
		if !ok {
			return nil, fmt.Errorf("material rate %q: expected material:points", f)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("material rate %q: empty material", f)
		}
		points, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("material rate %q: %w", f, err)
		}
		if _, dup := rates[name]; dup {
			return nil, fmt.Errorf("material rate %q: duplicate material", name)
		}
		rates[name] = points
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("material rates: none configured")
	}
	return rates, nil
}

// IsDevelopment enables pretty console logs.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// LoadFrom reads configuration through l and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.Ledger.Rates(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load(logger zerolog.Logger) *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg
}
