package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/stategraph/internal/database"
	"github.com/BaSui01/stategraph/workflow"
)

// RunRecord is the table row of a finished run. Queryable columns are
// broken out; the full record is kept in Payload as JSON.
type RunRecord struct {
	RunID      string    `gorm:"primaryKey;size:64"`
	Graph      string    `gorm:"size:128;index:idx_run_graph_start,priority:1"`
	Status     string    `gorm:"size:32;index"`
	Reason     string    `gorm:"size:64"`
	ErrorCode  string    `gorm:"size:64"`
	Steps      int       `gorm:"not null;default:0"`
	StartTime  time.Time `gorm:"index:idx_run_graph_start,priority:2"`
	EndTime    time.Time
	DurationMS int64
	Payload    []byte `gorm:"not null"`
	CreatedAt  time.Time
}

// TableName overrides the default table name
func (RunRecord) TableName() string {
	return "stategraph_runs"
}

// GormHistoryStore is a relational workflow.HistoryStore.
type GormHistoryStore struct {
	pool       *database.PoolManager
	maxRetries int
	logger     *zap.Logger
}

// NewGormHistoryStore migrates the runs table and returns the store.
func NewGormHistoryStore(pool *database.PoolManager, logger *zap.Logger) (*GormHistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate runs table: %w", err)
	}
	return &GormHistoryStore{
		pool:       pool,
		maxRetries: 3,
		logger:     logger.With(zap.String("component", "gorm_history_store")),
	}, nil
}

// Close closes the database pool
func (s *GormHistoryStore) Close() error {
	return s.pool.Close()
}

// Ping checks the database connection
func (s *GormHistoryStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save upserts a finished run
func (s *GormHistoryStore) Save(ctx context.Context, h *workflow.ExecutionHistory) error {
	if h == nil || h.RunID == "" {
		return fmt.Errorf("history record requires a run ID")
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	rec := &RunRecord{
		RunID:      h.RunID,
		Graph:      h.Graph,
		Status:     string(h.Status),
		Reason:     h.Reason,
		ErrorCode:  h.ErrorCode,
		Steps:      h.Steps,
		StartTime:  h.StartTime,
		EndTime:    h.EndTime,
		DurationMS: h.Duration.Milliseconds(),
		Payload:    payload,
	}

	err = s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			UpdateAll: true,
		}).Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (s *GormHistoryStore) Get(ctx context.Context, runID string) (*workflow.ExecutionHistory, error) {
	var rec RunRecord
	err := s.pool.DB().WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return decodeRecord(&rec)
}

// ListByGraph returns the most recent runs of a graph, newest first.
func (s *GormHistoryStore) ListByGraph(ctx context.Context, graph string, limit int) ([]*workflow.ExecutionHistory, error) {
	return s.list(ctx, s.pool.DB().WithContext(ctx).Where("graph = ?", graph), limit)
}

// ListByStatus returns the most recent runs with a status, newest first.
func (s *GormHistoryStore) ListByStatus(ctx context.Context, status workflow.ExecutionStatus, limit int) ([]*workflow.ExecutionHistory, error) {
	return s.list(ctx, s.pool.DB().WithContext(ctx).Where("status = ?", string(status)), limit)
}

// DeleteBefore removes runs that started before cutoff and returns how many.
func (s *GormHistoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.pool.DB().WithContext(ctx).Where("start_time < ?", cutoff).Delete(&RunRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete histories: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("pruned run history", zap.Int64("deleted", res.RowsAffected), zap.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}

func (s *GormHistoryStore) list(_ context.Context, q *gorm.DB, limit int) ([]*workflow.ExecutionHistory, error) {
	q = q.Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}

	result := make([]*workflow.ExecutionHistory, 0, len(recs))
	for i := range recs {
		h, err := decodeRecord(&recs[i])
		if err != nil {
			s.logger.Warn("skipping corrupt history record", zap.String("run_id", recs[i].RunID), zap.Error(err))
			continue
		}
		result = append(result, h)
	}
	return result, nil
}

func decodeRecord(rec *RunRecord) (*workflow.ExecutionHistory, error) {
	var h workflow.ExecutionHistory
	if err := json.Unmarshal(rec.Payload, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history %s: %w", rec.RunID, err)
	}
	return &h, nil
}
