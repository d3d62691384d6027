package database

import (
	"context"

	"github.com/medsupport/guideline-rag/internal/core/ingestion"
	"github.com/medsupport/guideline-rag/internal/infra/postgres"
)

// DocumentStore は読み取りをプールで、バッチ保存をトランザクション内で行う ingestion.Repository
type DocumentStore struct {
	*postgres.Repository
	tx *TransactionProvider
}

// NewDocumentStore は新しい DocumentStore を作成します
func NewDocumentStore(db *Database) *DocumentStore {
	return &DocumentStore{
		Repository: postgres.NewRepository(db.Pool),
		tx:         NewTransactionProvider(db.Pool),
	}
}

// SaveBatch はバッチ全体を1トランザクションで保存します。途中で失敗した場合は何も保存しません。
func (s *DocumentStore) SaveBatch(ctx context.Context, batch *ingestion.UploadBatch) (int, error) {
	return Transact(ctx, s.tx, func(a *Adapter) (int, error) {
		return a.Documents.SaveBatch(ctx, batch)
	})
}

var _ ingestion.Repository = (*DocumentStore)(nil)
