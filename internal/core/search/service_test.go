package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/guideline-rag/internal/core/guideline"
)

type stubSearchRepo struct {
	results   []*RetrievalResult
	err       error
	lastLimit int
	lastQuery []float32
}

func (r *stubSearchRepo) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*RetrievalResult, error) {
	r.lastLimit = limit
	r.lastQuery = queryVector
	return r.results, r.err
}

func TestSearchService_UsesDefaultLimit(t *testing.T) {
	repo := &stubSearchRepo{results: []*RetrievalResult{{
		Content:  "Рекомендуется измерение АД",
		Score:    0.9,
		Metadata: guideline.ChunkMetadata{DocumentID: "42", DocumentName: "Артериальная гипертензия"},
	}}}
	service := NewSearchService(repo, 0)

	results, err := service.SearchByVector(context.Background(), []float32{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, DefaultLimit, repo.lastLimit)
	assert.Equal(t, []float32{1, 2, 3}, repo.lastQuery)
	assert.Equal(t, "Артериальная гипертензия", results[0].DocumentName())
}

func TestSearchService_OrdersByScoreDescending(t *testing.T) {
	repo := &stubSearchRepo{results: []*RetrievalResult{
		{Content: "b", Score: 0.2},
		{Content: "a", Score: 0.8},
		{Content: "c", Score: -0.1},
	}}
	service := NewSearchService(repo, 2)

	results, err := service.SearchByVector(context.Background(), []float32{1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Content)
	assert.Equal(t, "b", results[1].Content)
}

func TestSearchService_RejectsEmptyVector(t *testing.T) {
	service := NewSearchService(&stubSearchRepo{}, 5)

	_, err := service.SearchByVector(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyQueryVector)
}

func TestSearchService_WrapsRepositoryError(t *testing.T) {
	storeErr := errors.New("connection refused")
	service := NewSearchService(&stubSearchRepo{err: storeErr}, 5)

	_, err := service.SearchByVector(context.Background(), []float32{1})
	assert.ErrorIs(t, err, storeErr)
}
