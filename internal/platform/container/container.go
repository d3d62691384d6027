package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	coreask "github.com/medsupport/guideline-rag/internal/core/ask"
	coreingestion "github.com/medsupport/guideline-rag/internal/core/ingestion"
	"github.com/medsupport/guideline-rag/internal/core/ingestion/chunk"
	coresearch "github.com/medsupport/guideline-rag/internal/core/search"
	"github.com/medsupport/guideline-rag/internal/core/session"
	"github.com/medsupport/guideline-rag/internal/infra/embedding"
	"github.com/medsupport/guideline-rag/internal/infra/generation"
	"github.com/medsupport/guideline-rag/internal/infra/minzdrav"
	"github.com/medsupport/guideline-rag/internal/infra/openai"
	"github.com/medsupport/guideline-rag/internal/infra/pdf"
	"github.com/medsupport/guideline-rag/internal/infra/postgres"
	"github.com/medsupport/guideline-rag/internal/infra/rerank"
	"github.com/medsupport/guideline-rag/internal/infra/tokenizer"
	"github.com/medsupport/guideline-rag/internal/platform/config"
	"github.com/medsupport/guideline-rag/internal/platform/database"
)

// ServiceContainer は取り込み・検索・質問応答の依存関係を保持する。
type ServiceContainer struct {
	SyncService   *coreingestion.SyncService
	SearchService *coresearch.SearchService
	AskService    *coreask.AskService
	Sessions      *session.Manager
	Documents     *database.DocumentStore

	cfg      *config.Config
	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	httpClient *http.Client
	generator  coreask.Generator
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerHTTPClient は外部サービス呼び出しに使う HTTP クライアントを差し替える
func WithContainerHTTPClient(client *http.Client) ContainerOption {
	return func(opts *containerOptions) {
		opts.httpClient = client
	}
}

// WithContainerGenerator は回答生成バックエンドを差し替える
func WithContainerGenerator(generator coreask.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// NewContainer は設定とロガーからコンテナを生成する。
// データベースへの接続は INIT_DB_RETRY_COUNT 回まで再試行する。
func NewContainer(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.NewWithRetry(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, cfg.Database.InitRetryCount, cfg.Database.InitRetryDelay, logger)
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(logger, cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
func NewContainerWithDB(logger *slog.Logger, cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	options := containerOptions{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&options)
	}

	// TokenCounter (tiktoken)。エンコーディングを読み込めない場合はトークン数なしで続行する
	var counter *tokenizer.TokenCounter
	if tc, err := tokenizer.NewTokenCounter(); err != nil {
		logger.Warn("TokenCounter を初期化できません、トークン数は記録しません", "error", err)
	} else {
		counter = tc
	}

	// Registry / ContentFetcher
	registry := minzdrav.NewClient(minzdrav.Config{
		APIURL:            cfg.Registry.APIURL,
		SourceURLBase:     cfg.Registry.SourceURLBase,
		Timeout:           cfg.Registry.RequestTimeout,
		MaxRetries:        cfg.Registry.MaxRetries,
		RetryDelay:        cfg.Registry.RetryDelay,
		RequestsPerSecond: cfg.Registry.RequestsPerSecond,
		Burst:             cfg.Registry.Burst,
	}, minzdrav.WithLogger(logger), minzdrav.WithHTTPClient(options.httpClient))

	// Chunker (PDF)
	chunkOpts := []chunk.Option{chunk.WithLogger(logger)}
	if counter != nil {
		chunkOpts = append(chunkOpts, chunk.WithTokenCounter(counter))
	}
	chunker := chunk.NewTextChunker(pdf.NewExtractor(), chunk.Config{
		ChunkSize:      cfg.Chunker.ChunkSize,
		Overlap:        cfg.Chunker.ChunkOverlap,
		MinChunkLength: cfg.Chunker.MinChunkLength,
	}, chunkOpts...)

	// Embedding service
	embedder := embedding.NewClient(embedding.Config{
		URL:         cfg.Embedding.ServiceURL,
		Dimensions:  cfg.Embedding.Dimensions,
		BatchSize:   cfg.Embedding.BatchSize,
		PushTimeout: cfg.Embedding.PushTimeout,
	}, embedding.WithLogger(logger), embedding.WithHTTPClient(options.httpClient))

	// Repository (PostgreSQL)
	documents := database.NewDocumentStore(db)

	// SyncService
	syncService := coreingestion.NewSyncService(
		registry,
		registry,
		chunker,
		embedder,
		documents,
		coreingestion.WithSyncLogger(logger),
		coreingestion.WithSyncLocker(database.NewAdvisoryLocker(db.Pool, logger)),
		coreingestion.WithSyncPipelineConfig(&coreingestion.PipelineConfig{
			DownloadWorkers: cfg.Registry.DownloadWorkers,
		}),
	)

	// SearchService
	searchRepo := postgres.NewSearchRepository(db.Pool, cfg.Retrieval.VectorTable)
	searchService := coresearch.NewSearchService(searchRepo, cfg.Retrieval.Limit)

	// Generator
	generator := options.generator
	if generator == nil {
		g, err := newGenerator(cfg, logger, options.httpClient)
		if err != nil {
			return nil, err
		}
		generator = g
	}

	// AskService
	askOpts := []coreask.AskServiceOption{
		coreask.WithAskLogger(logger),
		coreask.WithAskTimeouts(coreask.Timeouts{
			Embed:    cfg.Embedding.QueryTimeout,
			Retrieve: cfg.Retrieval.Timeout,
			Rerank:   cfg.Rerank.Timeout,
			Generate: cfg.Generation.Timeout,
		}),
	}
	if generator != nil {
		askOpts = append(askOpts, coreask.WithAskGenerator(generator))
	}
	if counter != nil {
		askOpts = append(askOpts, coreask.WithAskTokenCounter(counter))
	}
	askService := coreask.NewAskService(
		embedder,
		searchService,
		rerank.NewClient(cfg.Rerank.ServiceURL, options.httpClient),
		askOpts...,
	)

	chunkCfg := chunker.Config()
	logger.Debug("サービスを初期化しました",
		"chunkSize", chunkCfg.ChunkSize,
		"chunkOverlap", chunkCfg.Overlap,
		"minChunkLength", chunkCfg.MinChunkLength,
		"retrievalLimit", searchService.Limit(),
		"generation", generator != nil,
	)

	return &ServiceContainer{
		SyncService:   syncService,
		SearchService: searchService,
		AskService:    askService,
		Sessions:      session.NewManager(),
		Documents:     documents,
		cfg:           cfg,
		logger:        logger,
		database:      db,
	}, nil
}

// newGenerator は設定に応じた生成バックエンドを返す。生成が無効なら nil を返す。
func newGenerator(cfg *config.Config, logger *slog.Logger, httpClient *http.Client) (coreask.Generator, error) {
	if !cfg.GenerationEnabled() {
		logger.Info("回答生成は無効です。検索結果の断片をそのまま提示します")
		return nil, nil
	}

	switch cfg.Generation.Provider {
	case "openai":
		g, err := openai.NewGenerator(
			cfg.Generation.OpenAIAPIKey,
			openai.WithModel(cfg.Generation.OpenAIModel),
			openai.WithTemperature(cfg.Generation.Temperature),
			openai.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("OpenAI クライアント初期化に失敗しました: %w", err)
		}
		logger.Info("回答生成に OpenAI を使用します", "model", g.ModelName(), "temperature", cfg.Generation.Temperature)
		return g, nil
	default:
		return generation.NewClient(cfg.Generation.ServiceURL, httpClient), nil
	}
}

// EnsureSchema は文書テーブルとベクトルテーブルを作成する。
func (c *ServiceContainer) EnsureSchema(ctx context.Context) error {
	return database.EnsureSchema(ctx, c.database, database.SchemaOptions{
		VectorTable: c.cfg.Retrieval.VectorTable,
		Dimensions:  c.cfg.Embedding.Dimensions,
	})
}

// Config は設定を返す。
func (c *ServiceContainer) Config() *config.Config {
	return c.cfg
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
