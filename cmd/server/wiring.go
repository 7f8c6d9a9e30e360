package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/api/handler"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/config"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/db/memory"
	mongodb "github.com/greenpoint/recycling-ledger/internal/infrastructure/db/mongo"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/db/postgres"
	redisdb "github.com/greenpoint/recycling-ledger/internal/infrastructure/db/redis"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/lock"
)

// storage is the backend picked by STORE_DRIVER.
type storage struct {
	users     ports.UserRepository
	ledger    ports.LedgerStore
	readiness map[string]handler.PingFunc
	close     func()
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		s := memory.NewStore()
		return &storage{
			users:     s,
			ledger:    s,
			readiness: map[string]handler.PingFunc{"memory": s.Ping},
			close:     func() {},
		}, nil

	case config.StorePostgres:
		db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		users := postgres.NewUserRepository(db)
		return &storage{
			users:     users,
			ledger:    postgres.NewLedgerStore(db),
			readiness: map[string]handler.PingFunc{"postgres": users.Ping},
			close: func() {
				if err := db.Close(); err != nil {
					log.Error().Err(err).Msg("postgres close failed")
				}
			},
		}, nil

	case config.StoreMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		users := mongodb.NewUserRepository(db)
		return &storage{
			users:     users,
			ledger:    mongodb.NewLedgerStore(db),
			readiness: map[string]handler.PingFunc{"mongodb": users.Ping},
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.Error().Err(err).Msg("mongo disconnect failed")
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

type userLock struct {
	locker ports.UserLocker
	close  func()
}

// openLocker builds the LOCK_DRIVER locker. The redis probe is added to the
// store's readiness checks.
func openLocker(ctx context.Context, cfg *config.Config, store *storage, log zerolog.Logger) (*userLock, error) {
	switch cfg.LockDriver {
	case config.LockLocal:
		return &userLock{locker: lock.NewLocal(cfg.Redis.LockWait), close: func() {}}, nil

	case config.LockRedis:
		client, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Ledger.OperationTimeout,
		})
		if err != nil {
			return nil, err
		}
		store.readiness["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return &userLock{
			locker: redisdb.NewUserLocker(client, cfg.Redis.LockTTL, cfg.Redis.LockWait, log),
			close:  func() { _ = client.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown lock driver %q", cfg.LockDriver)
}
