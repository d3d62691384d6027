package database

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsupport/guideline-rag/internal/core/ingestion"
)

// releaseTimeout はロック解放に使う時間の上限
const releaseTimeout = 5 * time.Second

// AdvisoryLocker はPostgreSQLのセッションスコープのアドバイザリロックを管理します。
// ロックは取得した接続に紐づくため、解放まで接続をプールに返しません。
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAdvisoryLocker は新しい AdvisoryLocker を作成します
func NewAdvisoryLocker(pool *pgxpool.Pool, logger *slog.Logger) *AdvisoryLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryLocker{pool: pool, logger: logger}
}

// GenerateLockID は文字列からロックIDを生成します
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	hash := h.Sum(nil)

	// ハッシュの最初の8バイトをint64として使用
	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}

	return id
}

// TryAcquire は待たずにロックの取得を試みます。
// 他のセッションが保持している場合は acquired=false を返します。
func (l *AdvisoryLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	lockID := GenerateLockID(key)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		defer conn.Release()
		// 呼び出し元のコンテキストが終了していても解放できるよう独立したコンテキストを使う
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if _, err := conn.Exec(releaseCtx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			l.logger.Warn("アドバイザリロックの解放に失敗", "key", key, "error", err)
			// セッションを閉じればロックも解放される
			_ = conn.Conn().Close(releaseCtx)
		}
	}
	return release, true, nil
}

var _ ingestion.Locker = (*AdvisoryLocker)(nil)
