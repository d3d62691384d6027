package search

import "context"

// Repository はベクトルストアへの読み取りアクセスを表す
type Repository interface {
	// SearchSimilar は類似度の降順で最大 limit 件を返す
	SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*RetrievalResult, error)
}
