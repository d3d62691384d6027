package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/medsupport/guideline-rag/internal/core/ask"
	"github.com/medsupport/guideline-rag/internal/infra/httpjson"
)

// ErrNoAnswer はレスポンスに回答フィールドがない場合のエラー
var ErrNoAnswer = errors.New("generation response has no answer")

// Client は生成サービスのHTTPクライアント。URLが空の場合は無効。
type Client struct {
	httpClient *http.Client
	url        string
}

type generateRequest struct {
	Prompt  string               `json:"prompt"`
	Query   string               `json:"query"`
	Context []ask.ContextPassage `json:"context"`
}

// generateResponse はサービスごとに異なる回答フィールド名を受け付ける
type generateResponse struct {
	Answer   string `json:"answer"`
	Response string `json:"response"`
	Result   string `json:"result"`
}

func (r generateResponse) text() string {
	for _, candidate := range []string{r.Answer, r.Response, r.Result} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// NewClient は新しい Client を作成する
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		url:        strings.TrimSpace(url),
	}
}

// Enabled はエンドポイントが設定されているかを返す
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Generate はプロンプトと構造化コンテキストを送って回答を受け取る
func (c *Client) Generate(ctx context.Context, req ask.GenerationRequest) (string, error) {
	if !c.Enabled() {
		return "", ask.ErrGenerationDisabled
	}

	body := generateRequest{
		Prompt:  req.Prompt,
		Query:   req.Query,
		Context: req.Context,
	}
	if body.Context == nil {
		body.Context = []ask.ContextPassage{}
	}

	var resp generateResponse
	if err := httpjson.PostJSON(ctx, c.httpClient, c.url, body, &resp); err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := resp.text()
	if answer == "" {
		return "", ErrNoAnswer
	}
	return answer, nil
}

// インターフェース実装の確認
var _ ask.Generator = (*Client)(nil)
