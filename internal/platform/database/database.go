package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database はデータベース接続プールを保持します
type Database struct {
	Pool *pgxpool.Pool
}

// ConnectionParams はデータベース接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnString は pgx 形式の接続文字列を返します
func (p ConnectionParams) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host,
		p.Port,
		p.User,
		p.Password,
		p.DBName,
		p.SSLMode,
	)
}

// New は新しいデータベース接続を作成します
func New(ctx context.Context, params ConnectionParams) (*Database, error) {
	pool, err := pgxpool.New(ctx, params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

// NewWithRetry は固定間隔で最大 attempts 回まで接続を試みます
func NewWithRetry(ctx context.Context, params ConnectionParams, attempts int, delay time.Duration, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	attempts = max(attempts, 1)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)

	var db *Database
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		d, err := New(ctx, params)
		if err != nil {
			return err
		}
		db = d
		return nil
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("データベースに接続できません、再試行します",
			"attempt", attempt,
			"maxAttempts", attempts,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("database unavailable after %d attempts: %w", attempt, err)
	}
	return db, nil
}

// Close はデータベース接続を閉じます
func (db *Database) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}
