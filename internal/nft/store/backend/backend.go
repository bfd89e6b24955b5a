// Package backend opens the registry store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	nftservice "nftregistry/internal/nft/service"
	badgerstore "nftregistry/internal/nft/store/badger"
	memorystore "nftregistry/internal/nft/store/memory"
	postgresstore "nftregistry/internal/nft/store/postgres"
	postgresmigrations "nftregistry/internal/nft/store/postgres/migrations"
	redisstore "nftregistry/internal/nft/store/redis"
	sqlitestore "nftregistry/internal/nft/store/sqlite"
	sqlitemigrations "nftregistry/internal/nft/store/sqlite/migrations"
	"nftregistry/internal/platform/config"
	"nftregistry/internal/platform/migrate"
	redisclient "nftregistry/internal/platform/redis"
)

// Backend is an opened store with its lifecycle hooks.
type Backend struct {
	Store  nftservice.Store
	Health func(ctx context.Context) error
	// Background holds maintenance loops that run until ctx is done.
	Background []func(ctx context.Context) error
	Close      func()
}

func noHealthCheck(context.Context) error { return nil }

// Open opens cfg.Store.Backend.
func Open(ctx context.Context, cfg config.Server, log *slog.Logger) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return &Backend{Store: memorystore.New(), Health: noHealthCheck, Close: func() {}}, nil

	case config.BackendBadger:
		if err := os.MkdirAll(cfg.Store.BadgerPath, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		bs, err := badgerstore.Open(cfg.Store.BadgerPath, badgerstore.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:  bs,
			Health: noHealthCheck,
			Background: []func(ctx context.Context) error{func(ctx context.Context) error {
				err := bs.RunGC(ctx, cfg.Store.BadgerGCInterval)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}},
			Close: func() {
				if err := bs.Close(); err != nil {
					log.Error("close badger", "error", err)
				}
			},
		}, nil

	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		ss, err := sqlitestore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:  ss,
			Health: ss.DB().PingContext,
			Close: func() {
				if err := ss.Close(); err != nil {
					log.Error("close sqlite", "error", err)
				}
			},
		}, nil

	case config.BackendPostgres:
		ps, err := postgresstore.Open(ctx, cfg.Postgres.DSN, postgresstore.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:  ps,
			Health: ps.DB().PingContext,
			Close: func() {
				if err := ps.Close(); err != nil {
					log.Error("close postgres", "error", err)
				}
			},
		}, nil

	case config.BackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rs := redisstore.New(client.Client,
			redisstore.WithLockTTL(cfg.Redis.LockTTL),
			redisstore.WithLockWait(cfg.Redis.LockWait),
			redisstore.WithLogger(log),
		)
		return &Backend{
			Store:  rs,
			Health: client.Health,
			Close: func() {
				if err := client.Close(); err != nil {
					log.Error("close redis", "error", err)
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// SchemaVersion reports the applied migration version of a SQL backend.
func SchemaVersion(cfg config.Server) (uint, bool, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return migrate.Version(sqlitemigrations.FS, "sqlite://"+filepath.Clean(cfg.Store.SQLitePath))
	case config.BackendPostgres:
		return migrate.Version(postgresmigrations.FS, cfg.Postgres.DSN)
	}
	return 0, false, fmt.Errorf("store backend %q has no schema", cfg.Store.Backend)
}
