package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/workflow"
)

const defaultKeyPrefix = "stategraph:history:"

// RedisHistoryStore is a Redis-backed workflow.HistoryStore.
// Records are JSON strings; per-graph and per-status sorted sets scored by
// start time index them. Index members whose record has expired are pruned
// lazily on read.
type RedisHistoryStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisHistoryStore wraps an existing client. ttl <= 0 keeps records forever.
func NewRedisHistoryStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisHistoryStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHistoryStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "redis_history_store")),
	}
}

// Close closes the underlying client
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisHistoryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisHistoryStore) runKey(runID string) string {
	return s.keyPrefix + "run:" + runID
}

func (s *RedisHistoryStore) graphKey(graph string) string {
	return s.keyPrefix + "graph:" + graph
}

func (s *RedisHistoryStore) statusKey(status workflow.ExecutionStatus) string {
	return s.keyPrefix + "status:" + string(status)
}

// Save persists a finished run
func (s *RedisHistoryStore) Save(ctx context.Context, h *workflow.ExecutionHistory) error {
	if h == nil || h.RunID == "" {
		return fmt.Errorf("history record requires a run ID")
	}

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// 旧记录的状态索引需要清理
	old, err := s.Get(ctx, h.RunID)
	if err != nil && !errors.Is(err, workflow.ErrHistoryNotFound) {
		return err
	}

	score := float64(h.StartTime.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(h.RunID), data, s.ttl)
	if old != nil && old.Status != h.Status {
		pipe.ZRem(ctx, s.statusKey(old.Status), h.RunID)
	}
	pipe.ZAdd(ctx, s.graphKey(h.Graph), redis.Z{Score: score, Member: h.RunID})
	pipe.ZAdd(ctx, s.statusKey(h.Status), redis.Z{Score: score, Member: h.RunID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (s *RedisHistoryStore) Get(ctx context.Context, runID string) (*workflow.ExecutionHistory, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, workflow.ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var h workflow.ExecutionHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return &h, nil
}

// ListByGraph returns the most recent runs of a graph, newest first.
func (s *RedisHistoryStore) ListByGraph(ctx context.Context, graph string, limit int) ([]*workflow.ExecutionHistory, error) {
	return s.listIndex(ctx, s.graphKey(graph), limit)
}

// ListByStatus returns the most recent runs with a status, newest first.
func (s *RedisHistoryStore) ListByStatus(ctx context.Context, status workflow.ExecutionStatus, limit int) ([]*workflow.ExecutionHistory, error) {
	return s.listIndex(ctx, s.statusKey(status), limit)
}

// listIndex walks indexKey newest first, one window at a time, until limit
// live records are collected or the index is exhausted. Members whose records
// have expired are removed from the index as they are found.
func (s *RedisHistoryStore) listIndex(ctx context.Context, indexKey string, limit int) ([]*workflow.ExecutionHistory, error) {
	window := int64(limit)
	if limit <= 0 {
		window = -1
	}

	result := []*workflow.ExecutionHistory{}
	var start int64
	for {
		stop := int64(-1)
		if window > 0 {
			stop = start + window - 1
		}
		ids, err := s.client.ZRevRange(ctx, indexKey, start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read history index: %w", err)
		}
		if len(ids) == 0 {
			return result, nil
		}

		live, expired, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, h := range live {
			if limit > 0 && len(result) == limit {
				break
			}
			result = append(result, h)
		}
		removed := int64(0)
		if len(expired) > 0 {
			if err := s.client.ZRem(ctx, indexKey, expired...).Err(); err != nil {
				s.logger.Warn("failed to prune history index", zap.String("index", indexKey), zap.Error(err))
			} else {
				removed = int64(len(expired))
			}
		}

		if window < 0 || len(result) == limit || int64(len(ids)) < window {
			return result, nil
		}
		// 已删除的成员让后续成员前移
		start += window - removed
	}
}

// load fetches the records of ids in order. It returns the IDs whose records
// no longer exist separately.
func (s *RedisHistoryStore) load(ctx context.Context, ids []string) ([]*workflow.ExecutionHistory, []any, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read histories: %w", err)
	}

	live := make([]*workflow.ExecutionHistory, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var h workflow.ExecutionHistory
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			s.logger.Warn("skipping corrupt history record", zap.String("run_id", ids[i]), zap.Error(err))
			continue
		}
		live = append(live, &h)
	}
	return live, expired, nil
}
