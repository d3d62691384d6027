package ingestion

import (
	"context"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
	"github.com/medsupport/guideline-rag/internal/core/ingestion/chunk"
)

// RegistryClient は文書登録簿から最新版の文書一覧を取得する
type RegistryClient interface {
	// FetchDocuments は base_id ごとに1件、base_id 昇順で返す。
	// リトライを使い切った場合はエラーを返し、同期全体を中断させる。
	FetchDocuments(ctx context.Context) ([]*guideline.Document, error)
}

// ContentFetcher は文書のPDF本体をダウンロードする
type ContentFetcher interface {
	Download(ctx context.Context, doc *guideline.Document) ([]byte, error)
}

// ChunkExtractor はPDF本体からチャンク列を生成する
type ChunkExtractor interface {
	ExtractChunks(data []byte) ([]chunk.Chunk, error)
}

// EmbeddingSink はチャンクとメタデータを埋め込みサービスへ送る
type EmbeddingSink interface {
	// Push は空のチャンク列に対して通信せずに戻る
	Push(ctx context.Context, chunks []chunk.Chunk, doc *guideline.Document) error
}

// Locker はプロセスをまたいだ同期の排他を提供する
type Locker interface {
	// TryAcquire はロックを取得できなければ acquired=false を返す
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}
