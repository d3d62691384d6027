package rerank

import (
	"context"
	"fmt"
	"net/http"

	"github.com/samber/mo"

	"github.com/medsupport/guideline-rag/internal/core/ask"
	"github.com/medsupport/guideline-rag/internal/infra/httpjson"
)

// Client はリランカーサービスのHTTPクライアント
type Client struct {
	httpClient *http.Client
	url        string
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type rerankResponse struct {
	RerankedResults []rerankedItem `json:"reranked_results"`
}

type rerankedItem struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
	Index *int    `json:"index,omitempty"`
}

// NewClient は新しい Client を作成する
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		url:        url,
	}
}

// Rerank は質問と候補パッセージを送り、順位付きの部分集合を受け取る
func (c *Client) Rerank(ctx context.Context, query string, passages []string) ([]ask.RerankItem, error) {
	var resp rerankResponse
	err := httpjson.PostJSON(ctx, c.httpClient, c.url, rerankRequest{Query: query, Passages: passages}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank: %w", err)
	}

	items := make([]ask.RerankItem, 0, len(resp.RerankedResults))
	for _, r := range resp.RerankedResults {
		items = append(items, ask.RerankItem{
			Text:  r.Text,
			Score: r.Score,
			Rank:  r.Rank,
			Index: mo.PointerToOption(r.Index),
		})
	}
	return items, nil
}

// インターフェース実装の確認
var _ ask.Reranker = (*Client)(nil)
