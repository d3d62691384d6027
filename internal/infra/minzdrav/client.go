package minzdrav

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
	"github.com/medsupport/guideline-rag/internal/core/ingestion"
	"github.com/medsupport/guideline-rag/internal/infra/httpjson"
)

const (
	DefaultAPIURL        = "https://apicr.minzdrav.gov.ru/api.ashx"
	DefaultSourceURLBase = "https://cr.minzdrav.gov.ru/clin-rec/"
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 3 * time.Second

	opRegistry = "GetJsonClinrecsFilterV2Excel"
	opPDF      = "GetClinrecPdf"
	apiOrigin  = "https://apicr.minzdrav.gov.ru"
)

var (
	// ErrRegistryUnavailable はリトライを使い切っても登録簿を取得できなかったことを示す
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrEmptyContent はPDFの本文が空だったことを示す
	ErrEmptyContent = errors.New("empty document content")
)

// registryFilter は公開済みの全件を対象にする固定フィルタ
var registryFilter = map[string]any{
	"filter": map[string]any{
		"status":      []int{1},
		"search":      "",
		"year":        "",
		"specialties": []string{},
	},
}

// Config は登録簿クライアントの設定
type Config struct {
	APIURL            string
	SourceURLBase     string
	Timeout           time.Duration // 1リクエストあたり
	MaxRetries        int           // 試行回数の上限（初回を含む）
	RetryDelay        time.Duration // 試行間の固定待ち時間
	RequestsPerSecond float64       // 0以下は無制限
	Burst             int
}

// Client は臨床ガイドライン登録簿のHTTPクライアント。
// 登録簿の取得（RegistryClient）とPDFのダウンロード（ContentFetcher）を担う。
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	logger     *slog.Logger
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

// NewClient は新しい Client を作成する
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.SourceURLBase == "" {
		cfg.SourceURLBase = DefaultSourceURLBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c := &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		limiter:    limiter,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// FetchDocuments は登録簿を取得し、base_id ごとの最新版を base_id 昇順で返す
func (c *Client) FetchDocuments(ctx context.Context) ([]*guideline.Document, error) {
	c.logger.Info("登録簿を取得中", "url", c.cfg.APIURL)

	body, err := json.Marshal(registryFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry filter: %w", err)
	}

	data, err := c.request(ctx, http.MethodPost, url.Values{"op": {opRegistry}}, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	docs, err := ParseRegistry(data, c.cfg.SourceURLBase)
	if err != nil {
		return nil, err
	}

	selected := guideline.SelectLatest(docs)
	c.logger.Info("登録簿を解析", "rows", len(docs), "selected", len(selected))
	return selected, nil
}

// Download は文書のPDF本体を取得する
func (c *Client) Download(ctx context.Context, doc *guideline.Document) ([]byte, error) {
	c.logger.Debug("PDFをダウンロード中", "baseID", doc.BaseID)

	data, err := c.request(ctx, http.MethodGet, url.Values{"op": {opPDF}, "id": {doc.BaseID}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", doc.BaseID, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to download %s: %w", doc.BaseID, ErrEmptyContent)
	}
	return data, nil
}

// request は固定間隔・回数上限つきで再試行しながらAPIを呼び出す。
// 4xx（429を除く）は再試行しない。
func (c *Client) request(ctx context.Context, method string, params url.Values, body []byte) ([]byte, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.MaxRetries-1)),
		ctx,
	)

	attempt := 0
	var data []byte
	operation := func() error {
		attempt++
		result, err := c.do(ctx, method, params, body)
		if err != nil {
			var statusErr *httpjson.StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		data = result
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("APIの呼び出しに失敗、再試行します",
			"op", params.Get("op"),
			"attempt", attempt,
			"maxAttempts", c.cfg.MaxRetries,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method string, params url.Values, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := c.cfg.APIURL + "?" + params.Encode()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Origin", apiOrigin)
	req.Header.Set("Referer", apiOrigin+"/")
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpjson.CheckStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// インターフェース実装の確認
var (
	_ ingestion.RegistryClient = (*Client)(nil)
	_ ingestion.ContentFetcher = (*Client)(nil)
)
