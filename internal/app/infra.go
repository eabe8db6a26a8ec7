package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/config"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/db"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity/memstore"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/identity/sqlstore"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/redis"
)

const driverMemory = "memory"

type Infra struct {
	Store identity.Store
	Redis *redis.Client

	closers []func() error
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	store, err := setupStore(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}
	infra.Store = store

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	infra.Redis = redisClient
	infra.closers = append(infra.closers, redisClient.Close)

	logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})

	return infra, nil
}

func setupStore(ctx context.Context, cfg config.Config, infra *Infra) (identity.Store, error) {
	if cfg.DatabaseDriver == driverMemory {
		logger.Warn("using in-memory identity store; data is lost on restart", nil)
		return memstore.New(), nil
	}

	if err := db.Migrate(logger.L, cfg.DatabaseDriver, cfg.DatabaseDSN, "up"); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	infra.closers = append(infra.closers, sqlDB.Close)

	store, err := sqlstore.New(sqlDB, cfg.DatabaseDriver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database ready", map[string]any{"driver": cfg.DatabaseDriver})
	return store, nil
}

// Close releases connections in reverse order of acquisition.
func (i *Infra) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
