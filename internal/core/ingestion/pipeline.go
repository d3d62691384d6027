package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
)

// DefaultDownloadWorkers は同時ダウンロード数のデフォルト値
const DefaultDownloadWorkers = 4

// PipelineConfig は文書処理パイプラインの設定
type PipelineConfig struct {
	// DownloadWorkers は同時に処理する文書数の上限
	DownloadWorkers int
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{DownloadWorkers: DefaultDownloadWorkers}
}

// DocumentPipeline は文書ごとに ダウンロード → 保存 → チャンク化 → 送信 を実行する。
// 文書単位の失敗は DocumentOutcome に閉じ込め、他の文書には波及させない。
type DocumentPipeline struct {
	repository Repository
	fetcher    ContentFetcher
	chunker    ChunkExtractor
	sink       EmbeddingSink
	config     *PipelineConfig
	logger     *slog.Logger
}

// NewDocumentPipeline は新しい DocumentPipeline を作成する
func NewDocumentPipeline(
	repository Repository,
	fetcher ContentFetcher,
	chunker ChunkExtractor,
	sink EmbeddingSink,
	config *PipelineConfig,
	logger *slog.Logger,
) *DocumentPipeline {
	cfg := *DefaultPipelineConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentPipeline{
		repository: repository,
		fetcher:    fetcher,
		chunker:    chunker,
		sink:       sink,
		config:     &cfg,
		logger:     logger,
	}
}

// Process は文書群をワーカープールで処理し、入力と同じ順序で結果を返す。
// 全タスクの完了を待ってから戻る。
func (p *DocumentPipeline) Process(ctx context.Context, runID string, docs []*guideline.Document, pushEmbeddings bool) ([]DocumentOutcome, error) {
	outcomes := make([]DocumentOutcome, len(docs))
	if len(docs) == 0 {
		return outcomes, nil
	}

	pool, err := ants.NewPool(p.config.DownloadWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = p.processDocument(ctx, runID, doc, pushEmbeddings)
		})
		if submitErr != nil {
			wg.Done()
			outcomes[i] = failedOutcome(doc, StageDownload, fmt.Errorf("failed to submit task: %w", submitErr))
		}
	}
	wg.Wait()

	return outcomes, nil
}

func (p *DocumentPipeline) processDocument(ctx context.Context, runID string, doc *guideline.Document, pushEmbeddings bool) DocumentOutcome {
	logger := p.logger.With("baseID", doc.BaseID, "rawID", doc.RawID)

	if err := ctx.Err(); err != nil {
		return failedOutcome(doc, StageDownload, err)
	}

	data, err := p.fetcher.Download(ctx, doc)
	if err != nil {
		logger.Error("PDFのダウンロードに失敗", "error", err)
		return failedOutcome(doc, StageDownload, err)
	}

	batch := NewUploadBatch(runID)
	batch.Add(NewDocumentRow(doc, data))
	if _, err := p.repository.SaveBatch(ctx, batch); err != nil {
		logger.Error("文書の保存に失敗", "ids", batch.IDs(), "error", err)
		return failedOutcome(doc, StagePersist, err)
	}

	outcome := DocumentOutcome{
		BaseID: doc.BaseID,
		RawID:  doc.RawID,
		Title:  doc.Title,
		Status: StatusFetched,
	}
	if !pushEmbeddings {
		logger.Info("文書を保存", "bytes", len(data))
		return outcome
	}

	chunks, err := p.chunker.ExtractChunks(data)
	if err != nil {
		logger.Error("チャンク化に失敗", "error", err)
		return failedOutcome(doc, StageChunk, err)
	}
	if len(chunks) == 0 {
		logger.Warn("有効なチャンクがありません")
	}

	if err := p.sink.Push(ctx, chunks, doc); err != nil {
		logger.Error("埋め込みの送信に失敗", "chunks", len(chunks), "error", err)
		return failedOutcome(doc, StagePush, err)
	}

	outcome.Chunks = len(chunks)
	logger.Info("文書を取り込み", "bytes", len(data), "chunks", len(chunks))
	return outcome
}

func failedOutcome(doc *guideline.Document, stage Stage, err error) DocumentOutcome {
	return DocumentOutcome{
		BaseID: doc.BaseID,
		RawID:  doc.RawID,
		Title:  doc.Title,
		Status: StatusFailed,
		Stage:  stage,
		Err:    err,
	}
}
