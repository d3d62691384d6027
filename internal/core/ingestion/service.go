package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
)

// syncLockKey はプロセス間排他に使うロック名
const syncLockKey = "guideline-rag:registry-sync"

// SyncService は登録簿の同期のユースケースを提供する
type SyncService struct {
	registry RegistryClient
	pipeline *DocumentPipeline
	repo     Repository
	locker   Locker // オプショナル
	logger   *slog.Logger

	running sync.Mutex
}

type syncServiceOptions struct {
	locker         Locker
	pipelineConfig *PipelineConfig
	logger         *slog.Logger
}

// SyncServiceOption は SyncService のオプション設定
type SyncServiceOption func(*syncServiceOptions)

// WithSyncLogger は SyncService にロガーを設定する
func WithSyncLogger(logger *slog.Logger) SyncServiceOption {
	return func(o *syncServiceOptions) {
		o.logger = logger
	}
}

// WithSyncLocker はプロセス間の排他ロックを設定する
func WithSyncLocker(locker Locker) SyncServiceOption {
	return func(o *syncServiceOptions) {
		o.locker = locker
	}
}

// WithSyncPipelineConfig はパイプライン設定を上書きする
func WithSyncPipelineConfig(cfg *PipelineConfig) SyncServiceOption {
	return func(o *syncServiceOptions) {
		o.pipelineConfig = cfg
	}
}

// NewSyncService は新しい SyncService を作成する
func NewSyncService(
	registry RegistryClient,
	fetcher ContentFetcher,
	chunker ChunkExtractor,
	sink EmbeddingSink,
	repo Repository,
	opts ...SyncServiceOption,
) *SyncService {
	options := syncServiceOptions{
		pipelineConfig: DefaultPipelineConfig(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &SyncService{
		registry: registry,
		pipeline: NewDocumentPipeline(repo, fetcher, chunker, sink, options.pipelineConfig, options.logger),
		repo:     repo,
		locker:   options.locker,
		logger:   options.logger,
	}
}

// Sync は登録簿を取得し、新しい文書を取り込む。
// 登録簿の取得失敗のみエラーを返し、文書単位の失敗はレポートに記録する。
func (s *SyncService) Sync(ctx context.Context, params SyncParams) (*SyncReport, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire(ctx, syncLockKey)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !acquired {
			return nil, ErrSyncInProgress
		}
		defer release()
	}

	startTime := time.Now()
	report := &SyncReport{RunID: uuid.New()}
	logger := s.logger.With("runID", report.RunID.String())

	logger.Info("同期を開始",
		"phase", PhaseStart,
		"forceReload", params.ForceReload,
		"pushEmbeddings", params.PushEmbeddings,
		"limit", params.Limit,
	)

	docs, err := s.registry.FetchDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registry: %w", err)
	}
	if params.Limit > 0 && len(docs) > params.Limit {
		docs = docs[:params.Limit]
	}
	logger.Info("登録簿を取得", "phase", PhaseRegistryFetched, "documents", len(docs))

	existing := map[string]struct{}{}
	if !params.ForceReload {
		ids, err := s.repo.ListDocumentIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list stored documents: %w", err)
		}
		for _, id := range ids {
			existing[id] = struct{}{}
		}
	}

	var pending []*guideline.Document
	outcomes := make([]DocumentOutcome, len(docs))
	pendingIndex := make([]int, 0, len(docs))
	for i, doc := range docs {
		if _, ok := existing[doc.StorageID()]; ok {
			outcomes[i] = DocumentOutcome{
				BaseID: doc.BaseID,
				RawID:  doc.RawID,
				Title:  doc.Title,
				Status: StatusSkipped,
			}
			logger.Debug("保存済みのためスキップ", "baseID", doc.BaseID)
			continue
		}
		pending = append(pending, doc)
		pendingIndex = append(pendingIndex, i)
	}

	processed, err := s.pipeline.Process(ctx, report.RunID.String(), pending, params.PushEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to process documents: %w", err)
	}
	for j, outcome := range processed {
		outcomes[pendingIndex[j]] = outcome
	}

	report.Outcomes = outcomes
	report.tally()
	report.Duration = time.Since(startTime)

	logger.Info("同期が完了",
		"phase", PhaseDone,
		"total", report.Total,
		"fetched", report.Fetched,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"chunks", report.Chunks,
		"duration", report.Duration,
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
