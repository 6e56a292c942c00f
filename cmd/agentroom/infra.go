package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentroom/agent/persistence"
	"github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/internal/cache"
	"github.com/BaSui01/agentroom/internal/database"
)

// infra 持有按配置打开的外部连接与存储
type infra struct {
	pool   *database.PoolManager
	redis  *cache.Manager
	stores *persistence.Stores
}

func storeType(cfg *config.Config) persistence.StoreType {
	t := persistence.StoreType(strings.ToLower(strings.TrimSpace(cfg.Store.Type)))
	if t == "" {
		return persistence.StoreTypeDatabase
	}
	return t
}

func needsDatabase(cfg *config.Config) bool {
	t := storeType(cfg)
	return t == persistence.StoreTypeDatabase || t == persistence.StoreTypeRedis
}

func needsRedis(cfg *config.Config) bool {
	return storeType(cfg) == persistence.StoreTypeRedis || cfg.Store.RedisEvents
}

// openInfra 打开存储所需的连接；失败时释放已打开的资源
func openInfra(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *infra, err error) {
	in := &infra{}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	backends := persistence.Backends{RedisPrefix: cfg.Redis.KeyPrefix}

	if needsDatabase(cfg) {
		in.pool, err = database.Open(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		backends.DB = in.pool.DB()
	}

	if needsRedis(cfg) {
		in.redis, err = cache.NewManager(cache.ConfigFrom(cfg.Redis), logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		backends.Redis = in.redis.Client()
	}

	in.stores, err = persistence.NewStores(cfg.Store.Type, backends)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if gs, ok := in.stores.Rooms.(*persistence.GormStore); ok {
			if err = gs.AutoMigrate(ctx); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info("database schema migrated")
		}
	}

	logger.Info("stores ready",
		zap.String("store_type", string(storeType(cfg))),
		zap.Bool("database", in.pool != nil),
		zap.Bool("redis", in.redis != nil),
	)
	return in, nil
}

// Close 关闭存储与底层连接
func (in *infra) Close() error {
	var errs []error
	if in.stores != nil {
		errs = append(errs, in.stores.Close())
	}
	if in.redis != nil {
		errs = append(errs, in.redis.Close())
	}
	if in.pool != nil {
		errs = append(errs, in.pool.Close())
	}
	return errors.Join(errs...)
}
