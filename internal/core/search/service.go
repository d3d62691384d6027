package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// DefaultLimit は取得する候補数のデフォルト値
const DefaultLimit = 20

// ErrEmptyQueryVector はクエリベクトルが空の場合のエラー
var ErrEmptyQueryVector = errors.New("query vector is empty")

// SearchService はベクトル検索のビジネスロジックを提供する
type SearchService struct {
	repo  Repository
	limit int
}

// NewSearchService は新しいSearchServiceを作成する。
// limit が0以下の場合は DefaultLimit を使う。
func NewSearchService(repo Repository, limit int) *SearchService {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &SearchService{
		repo:  repo,
		limit: limit,
	}
}

// Limit は設定済みの取得件数を返す
func (s *SearchService) Limit() int {
	return s.limit
}

// SearchByVector はクエリベクトルに近いパッセージを類似度の降順で返す
func (s *SearchService) SearchByVector(ctx context.Context, queryVector []float32) ([]*RetrievalResult, error) {
	if len(queryVector) == 0 {
		return nil, ErrEmptyQueryVector
	}

	results, err := s.repo.SearchSimilar(ctx, queryVector, s.limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	// ストア側の順序に依存しない
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > s.limit {
		results = results[:s.limit]
	}

	return results, nil
}
