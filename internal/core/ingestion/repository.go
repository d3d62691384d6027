package ingestion

import (
	"context"
	"time"

	"github.com/samber/mo"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
)

// Repository は文書行の永続化を担うインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// ListDocumentIDs は保存済みの全ストレージIDを返す
	ListDocumentIDs(ctx context.Context) ([]string, error)
	// SaveBatch はバッチ内の行をストレージIDでupsertし、書き込んだ件数を返す
	SaveBatch(ctx context.Context, batch *UploadBatch) (int, error)
}

// DocumentRow は関係ストアに保存する文書1行
type DocumentRow struct {
	ID            string // ストレージID（base_id）
	Title         string
	MCB           mo.Option[string]
	AgeCategory   guideline.AgeCategory
	Developer     mo.Option[string]
	PlacementDate mo.Option[time.Time]
	Data          []byte
}

// NewDocumentRow は文書とPDF本体から保存用の行を作成する
func NewDocumentRow(doc *guideline.Document, data []byte) DocumentRow {
	return DocumentRow{
		ID:            doc.StorageID(),
		Title:         doc.Title,
		MCB:           doc.MCB,
		AgeCategory:   doc.AgeCategoryOrDefault(),
		Developer:     doc.Developer,
		PlacementDate: doc.PublishDate,
		Data:          data,
	}
}

// UploadBatch は永続化ステップへ渡す保存待ちの行の集まり。
// 1回の同期実行が所有し、実行間で共有しない。
type UploadBatch struct {
	RunID string
	Rows  []DocumentRow
}

// NewUploadBatch は空のバッチを作成する
func NewUploadBatch(runID string) *UploadBatch {
	return &UploadBatch{RunID: runID}
}

// Add は行を追加する。同じIDの行は後から追加した内容で置き換える。
func (b *UploadBatch) Add(row DocumentRow) {
	for i := range b.Rows {
		if b.Rows[i].ID == row.ID {
			b.Rows[i] = row
			return
		}
	}
	b.Rows = append(b.Rows, row)
}

// Len はバッチ内の行数を返す
func (b *UploadBatch) Len() int {
	return len(b.Rows)
}

// IDs はバッチ内のストレージIDを追加順に返す
func (b *UploadBatch) IDs() []string {
	ids := make([]string, len(b.Rows))
	for i, row := range b.Rows {
		ids[i] = row.ID
	}
	return ids
}
