package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/medsupport/guideline-rag/internal/core/search"
)

// DefaultVectorTable は embedding-service が書き込むテーブル名
const DefaultVectorTable = "chunk_embeddings"

// SearchRepository は core/search.Repository を実装する PostgreSQL リポジトリ。
// embedding-service が書き込んだベクトルをコサイン距離で検索する。
type SearchRepository struct {
	db    DBTX
	query string
}

// NewSearchRepository は新しい SearchRepository を返す。table が空ならデフォルトのテーブルを使う。
func NewSearchRepository(db DBTX, table string) *SearchRepository {
	if table == "" {
		table = DefaultVectorTable
	}
	return &SearchRepository{
		db:    db,
		query: buildSearchSQL(table),
	}
}

var _ search.Repository = (*SearchRepository)(nil)

func buildSearchSQL(table string) string {
	return fmt.Sprintf(`
SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, pgx.Identifier{table}.Sanitize())
}

// SearchSimilar は類似度の降順で最大 limit 件を返す
func (r *SearchRepository) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*search.RetrievalResult, error) {
	rows, err := r.db.Query(ctx, r.query, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*search.RetrievalResult, 0, limit)
	for rows.Next() {
		var (
			result   search.RetrievalResult
			metadata []byte
		)
		if err := rows.Scan(&result.Content, &metadata, &result.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &result.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
			}
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return results, nil
}
