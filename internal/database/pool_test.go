package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/stategraph/config"
)

// newMockPool 基于 sqlmock 的 postgres 方言创建连接池
func newMockPool(t *testing.T, pc PoolConfig) (*PoolManager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	pm, err := NewPoolManager(gormDB, pc, zaptest.NewLogger(t))
	require.NoError(t, err)
	return pm, mock
}

func smallPool() PoolConfig {
	return PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}
}

func TestNewPoolManager(t *testing.T) {
	pc := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 30 * time.Minute}
	pm, _ := newMockPool(t, pc)

	assert.Equal(t, pc, pm.config)
	assert.Equal(t, 10, pm.Stats().MaxOpenConnections)
	assert.True(t, pm.Healthy())
	assert.NotNil(t, pm.DB())

	_, err := NewPoolManager(nil, pc, nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	pm, mock := newMockPool(t, smallPool())

	mock.ExpectPing()
	assert.NoError(t, pm.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, pm.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Transactions(t *testing.T) {
	tests := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
		fn     TransactionFunc
		err    error
	}{
		{
			name:   "commit",
			expect: func(m sqlmock.Sqlmock) { m.ExpectBegin(); m.ExpectCommit() },
			fn:     func(*gorm.DB) error { return nil },
		},
		{
			name:   "rollback on error",
			expect: func(m sqlmock.Sqlmock) { m.ExpectBegin(); m.ExpectRollback() },
			fn:     func(*gorm.DB) error { return assert.AnError },
			err:    assert.AnError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, mock := newMockPool(t, smallPool())
			tt.expect(mock)

			err := pm.WithTransaction(context.Background(), tt.fn)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	pm, mock := newMockPool(t, smallPool())
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_GivesUp(t *testing.T) {
	pm, mock := newMockPool(t, smallPool())
	for range 2 {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 2, func(*gorm.DB) error {
		attempts++
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestPoolManager_WithTransactionRetry_NotRetryable(t *testing.T) {
	pm, mock := newMockPool(t, smallPool())
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		attempts++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, attempts)
}

func TestPoolManager_WithTransactionRetry_ContextCanceled(t *testing.T) {
	pc := smallPool()
	pc.RetryBackoff = time.Hour
	pm, mock := newMockPool(t, pc)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := pm.WithTransactionRetry(ctx, 3, func(*gorm.DB) error {
		cancel()
		return errors.New("database is locked")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolManager_Close(t *testing.T) {
	pm, mock := newMockPool(t, smallPool())
	mock.ExpectClose()

	require.NoError(t, pm.Close())
	assert.NoError(t, pm.Close(), "second close is a no-op")
	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckTracksState(t *testing.T) {
	pc := smallPool()
	pc.HealthCheckInterval = 10 * time.Millisecond
	pm, mock := newMockPool(t, pc)

	mock.MatchExpectationsInOrder(false)
	for range 3 {
		mock.ExpectPing().WillReturnError(errors.New("connection reset by peer"))
	}
	for range 50 {
		mock.ExpectPing()
	}
	mock.ExpectClose()

	assert.Eventually(t, func() bool { return !pm.Healthy() }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, pm.Healthy, time.Second, 5*time.Millisecond)
	require.NoError(t, pm.Close())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("Error 1205: Lock wait timeout exceeded"), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{fmt.Errorf("save run: %w", driver.ErrBadConn), true},
		{errors.New("duplicate key value violates unique constraint"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr string
	}{
		{name: "valid", config: DefaultPoolConfig()},
		{name: "open conns", config: PoolConfig{MaxIdleConns: 5}, wantErr: "max_open_conns"},
		{name: "idle conns", config: PoolConfig{MaxOpenConns: 10}, wantErr: "max_idle_conns must be positive"},
		{name: "idle above open", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, wantErr: "must not exceed"},
		{name: "negative backoff", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 5, RetryBackoff: -time.Second}, wantErr: "retry_backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 8, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 4, pc.MaxOpenConns)
	assert.Equal(t, 4, pc.MaxIdleConns, "idle is capped at open")
	assert.Equal(t, time.Minute, pc.ConnMaxLifetime)
	assert.NoError(t, pc.Validate())

	assert.Equal(t, DefaultPoolConfig(), PoolConfigFrom(config.DatabaseConfig{}))
}
