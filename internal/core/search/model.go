package search

import "github.com/medsupport/guideline-rag/internal/core/guideline"

// RetrievalResult はベクトル検索で得た候補パッセージを表す
type RetrievalResult struct {
	Content  string                  `json:"content"`
	Score    float64                 `json:"score"` // コサイン類似度 [-1, 1]、大きいほど近い
	Metadata guideline.ChunkMetadata `json:"metadata"`
}

// DocumentName は出典表示用の文書名を返す
func (r *RetrievalResult) DocumentName() string {
	return r.Metadata.DocumentName
}
