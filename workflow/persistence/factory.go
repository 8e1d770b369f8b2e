package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/internal/database"
	"github.com/BaSui01/stategraph/workflow"
)

// Store is a HistoryStore owning its connections.
type Store interface {
	workflow.HistoryStore
	Close() error
}

// Backend names (config.HistoryConfig.Backend)
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

type memoryStore struct {
	*workflow.MemoryHistoryStore
}

func (memoryStore) Close() error { return nil }

// NewHistoryStore creates the history store selected by cfg.History.Backend.
// It returns nil, nil for the "none" backend.
func NewHistoryStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.History.Backend {
	case BackendNone, "":
		return nil, nil

	case BackendMemory:
		return memoryStore{workflow.NewMemoryHistoryStore()}, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		logger.Info("redis history store ready", zap.String("addr", cfg.Redis.Addr))
		return NewRedisHistoryStore(client, cfg.History.KeyPrefix, cfg.History.TTL, logger), nil

	case BackendDatabase:
		pool, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewGormHistoryStore(pool, logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown history backend: %q", cfg.History.Backend)
	}
}
