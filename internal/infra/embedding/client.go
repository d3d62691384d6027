package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/medsupport/guideline-rag/internal/core/ask"
	"github.com/medsupport/guideline-rag/internal/core/guideline"
	"github.com/medsupport/guideline-rag/internal/core/ingestion"
	"github.com/medsupport/guideline-rag/internal/core/ingestion/chunk"
	"github.com/medsupport/guideline-rag/internal/infra/httpjson"
)

const (
	// TaskPassage は取り込み時のベクトル化モード
	TaskPassage = "retrieval.passage"
	// TaskQuery は検索クエリのベクトル化モード
	TaskQuery = "retrieval.query"

	DefaultDimensions  = 1024
	DefaultBatchSize   = 12
	DefaultPushTimeout = 60 * time.Second
)

// ErrMalformedEmbedding はレスポンスにベクトルがない、または次元が合わない場合のエラー
var ErrMalformedEmbedding = errors.New("malformed embedding response")

// Config は埋め込みサービスクライアントの設定
type Config struct {
	URL         string
	Dimensions  int
	BatchSize   int
	PushTimeout time.Duration
}

// Client は埋め込みサービスのHTTPクライアント。
// 取り込み時のパッセージ送信と検索時のクエリベクトル化の両方を担う。
type Client struct {
	httpClient  *http.Client
	url         string
	dimensions  int
	batchSize   int
	pushTimeout time.Duration
	logger      *slog.Logger
}

// Option は Client のオプション設定
type Option func(*Client)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

type embedRequest struct {
	Texts      []string                  `json:"texts"`
	Metadata   []guideline.ChunkMetadata `json:"metadata,omitempty"`
	Task       string                    `json:"task"`
	Dimensions int                       `json:"dimensions"`
}

type embedResponse struct {
	Embedding [][]float32 `json:"embedding"`
}

// NewClient は新しい Client を作成する
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}

	c := &Client{
		httpClient:  &http.Client{},
		url:         cfg.URL,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		pushTimeout: cfg.PushTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Push はチャンクとメタデータをバッチに分けて送信する。
// いずれかのバッチが失敗した時点でエラーを返す。
func (c *Client) Push(ctx context.Context, chunks []chunk.Chunk, doc *guideline.Document) error {
	if len(chunks) == 0 {
		return nil
	}

	for start := 0; start < len(chunks); start += c.batchSize {
		end := min(start+c.batchSize, len(chunks))
		batch := chunks[start:end]

		req := embedRequest{
			Texts:      make([]string, len(batch)),
			Metadata:   make([]guideline.ChunkMetadata, len(batch)),
			Task:       TaskPassage,
			Dimensions: c.dimensions,
		}
		for i, ch := range batch {
			meta := guideline.NewChunkMetadata(doc, ch.Page, ch.Index)
			meta.TokenCount = ch.Tokens
			req.Texts[i] = ch.Text
			req.Metadata[i] = meta
		}

		if err := c.pushBatch(ctx, req); err != nil {
			return fmt.Errorf("failed to push batch %d-%d of %s: %w", start, end, doc.BaseID, err)
		}
		c.logger.Debug("埋め込みバッチを送信", "baseID", doc.BaseID, "from", start, "to", end)
	}
	return nil
}

func (c *Client) pushBatch(ctx context.Context, req embedRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()
	return httpjson.PostJSON(ctx, c.httpClient, c.url, req, nil)
}

// EmbedQuery は検索クエリをベクトル化する。
// タイムアウトは呼び出し元のコンテキストで制御する。
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	req := embedRequest{
		Texts:      []string{query},
		Task:       TaskQuery,
		Dimensions: c.dimensions,
	}

	var resp embedResponse
	if err := httpjson.PostJSON(ctx, c.httpClient, c.url, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if len(resp.Embedding) == 0 || len(resp.Embedding[0]) == 0 {
		return nil, fmt.Errorf("%w: no vectors returned", ErrMalformedEmbedding)
	}
	vector := resp.Embedding[0]
	if len(vector) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrMalformedEmbedding, len(vector), c.dimensions)
	}
	return vector, nil
}

// インターフェース実装の確認
var (
	_ ingestion.EmbeddingSink = (*Client)(nil)
	_ ask.QueryEmbedder       = (*Client)(nil)
)
