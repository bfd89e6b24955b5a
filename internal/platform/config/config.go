package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "NFTREGISTRY_"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Audit sinks.
const (
	AuditSinkMemory = "memory"
	AuditSinkKafka  = "kafka"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// MaxDataSize bounds the opaque payload accepted on create.
	MaxDataSize    int           `env:"MAX_DATA_SIZE"   envDefault:"65536"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	Store    StoreConfig    `envPrefix:"STORE_"`
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	JWT      JWTConfig      `envPrefix:"JWT_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

type StoreConfig struct {
	Backend          string        `env:"BACKEND"            envDefault:"memory"`
	BadgerPath       string        `env:"BADGER_PATH"        envDefault:"data/badger"`
	BadgerGCInterval time.Duration `env:"BADGER_GC_INTERVAL" envDefault:"10m"`
	SQLitePath       string        `env:"SQLITE_PATH"        envDefault:"data/registry.db"`
}

type PostgresConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"  envDefault:"3s"`
	LockTTL      time.Duration `env:"LOCK_TTL"       envDefault:"30s"`
	LockWait     time.Duration `env:"LOCK_WAIT"      envDefault:"5s"`
}

type AuditConfig struct {
	Sink string `env:"SINK" envDefault:"memory"`
	// AsyncBuffer > 0 publishes through a bounded queue drained by a worker.
	AsyncBuffer       int      `env:"ASYNC_BUFFER"       envDefault:"0"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS"     envSeparator:","`
	KafkaTopic       string   `env:"KAFKA_TOPIC"       envDefault:"nftregistry.audit"`
	KafkaPartitions  int32    `env:"KAFKA_PARTITIONS"  envDefault:"3"`
	KafkaReplication int16    `env:"KAFKA_REPLICATION" envDefault:"1"`
}

type JWTConfig struct {
	SigningKey string        `env:"SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"ISSUER"      envDefault:"nftregistry"`
	Audience   string        `env:"AUDIENCE"    envDefault:"nftregistry-api"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"   envDefault:"1h"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// UsesDevSigningKey reports whether the built-in development key is active.
func (c JWTConfig) UsesDevSigningKey() bool {
	return c.SigningKey == devSigningKey
}

// FromEnv parses NFTREGISTRY_* variables and validates the result.
func FromEnv() (Server, error) {
	return parse(env.Options{Prefix: envPrefix})
}

// FromMap is FromEnv over an explicit environment, for tests and tooling.
func FromMap(environment map[string]string) (Server, error) {
	return parse(env.Options{Prefix: envPrefix, Environment: environment})
}

// FromEnvWith is FromEnv with overrides applied on top of the process
// environment. Override keys omit the NFTREGISTRY_ prefix.
func FromEnvWith(overrides map[string]string) (Server, error) {
	environment := env.ToMap(os.Environ())
	for key, value := range overrides {
		environment[envPrefix+key] = value
	}
	return FromMap(environment)
}

func parse(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) Validate() error {
	var errs []error
	backends := []string{BackendMemory, BackendBadger, BackendSQLite, BackendPostgres, BackendRedis}
	if !slices.Contains(backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.Backend == BackendPostgres && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres backend requires NFTREGISTRY_POSTGRES_DSN"))
	}
	if c.Store.Backend == BackendRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis backend requires NFTREGISTRY_REDIS_URL"))
	}
	switch c.Audit.Sink {
	case AuditSinkMemory:
	case AuditSinkKafka:
		if len(c.Audit.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka audit sink requires NFTREGISTRY_AUDIT_KAFKA_BROKERS"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit sink %q", c.Audit.Sink))
	}
	if c.Audit.AsyncBuffer < 0 {
		errs = append(errs, errors.New("audit async buffer must not be negative"))
	}
	if c.MaxDataSize <= 0 {
		errs = append(errs, errors.New("max data size must be positive"))
	}
	if c.JWT.SigningKey == "" {
		errs = append(errs, errors.New("jwt signing key must not be empty"))
	}
	return errors.Join(errs...)
}
