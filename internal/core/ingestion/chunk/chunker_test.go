package chunk

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/guideline-rag/internal/platform/logger"
)

type stubExtractor struct {
	pages []Page
	err   error
}

func (s *stubExtractor) ExtractPages(data []byte) ([]Page, error) {
	return s.pages, s.err
}

type runeCounter struct{}

func (runeCounter) CountTokens(text string) int { return utf8.RuneCountInString(text) / 4 }

func TestSplit_DocumentedExample(t *testing.T) {
	cfg := Config{ChunkSize: 900, Overlap: 200, MinChunkLength: 120}
	text := strings.Repeat("a", 1000)

	windows := cfg.Split(text)
	require.Len(t, windows, 2)
	assert.Equal(t, text[0:900], windows[0])
	assert.Equal(t, text[700:1000], windows[1])
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	cfg := Config{ChunkSize: 10, Overlap: 2, MinChunkLength: 3}
	text := strings.Repeat("ж", 25)

	windows := cfg.Split(text)
	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.LessOrEqual(t, utf8.RuneCountInString(w), 10)
		assert.True(t, utf8.ValidString(w))
	}
	assert.Equal(t, strings.Repeat("ж", 10), windows[0])
}

func TestSplit_OverlapClampedToHalfWindow(t *testing.T) {
	cfg := Config{ChunkSize: 10, Overlap: 50, MinChunkLength: 1}
	text := "0123456789abcdefghij"

	windows := cfg.Split(text)
	require.Len(t, windows, 3)
	assert.Equal(t, "0123456789", windows[0])
	assert.Equal(t, "56789abcde", windows[1])
	assert.Equal(t, "abcdefghij", windows[2])
}

func TestSplit_ChunkSizeRaisedToMinimum(t *testing.T) {
	cfg := Config{ChunkSize: 5, Overlap: 0, MinChunkLength: 8}
	windows := cfg.Split("abcdefghijklmnop")

	require.Len(t, windows, 2)
	assert.Equal(t, "abcdefgh", windows[0])
	assert.Equal(t, "ijklmnop", windows[1])
}

func TestSplit_ShortFinalWindowDropped(t *testing.T) {
	cfg := Config{ChunkSize: 10, Overlap: 0, MinChunkLength: 5}
	windows := cfg.Split("0123456789ab")

	require.Len(t, windows, 1)
	assert.Equal(t, "0123456789", windows[0])
}

func TestSplit_TerminatesAndRespectsBounds(t *testing.T) {
	text := Normalize(strings.Repeat("Пациентам с гипертензией рекомендуется контроль давления. ", 60))
	configs := []Config{
		{ChunkSize: 900, Overlap: 200, MinChunkLength: 120},
		{ChunkSize: 50, Overlap: 49, MinChunkLength: 10},
		{ChunkSize: 1, Overlap: 0, MinChunkLength: 1},
		{ChunkSize: 300, Overlap: 0, MinChunkLength: 0},
	}

	for _, cfg := range configs {
		windows := cfg.Split(text)
		require.NotEmpty(t, windows)
		size, _ := cfg.effective()
		for i, w := range windows {
			n := utf8.RuneCountInString(w)
			assert.LessOrEqual(t, n, size, "chunk %d too long", i)
			assert.GreaterOrEqual(t, n, cfg.MinChunkLength, "chunk %d too short", i)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	text := Normalize(strings.Repeat("Рекомендация 1.2.3 уровень доказательности A.\n", 80))

	assert.Equal(t, cfg.Split(text), cfg.Split(text))
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Nil(t, DefaultConfig().Split(""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a \n\n b\t\tc \r\n"))
	assert.Equal(t, "", Normalize(" \n\t "))
}

func TestExtractChunks_SkipsFailedAndShortPages(t *testing.T) {
	long := strings.Repeat("слово ", 40)
	extractor := &stubExtractor{pages: []Page{
		{Number: 1, Text: long},
		{Number: 2, Err: errors.New("broken content stream")},
		{Number: 3, Text: "короткая страница"},
		{Number: 4, Text: long + "\n" + long},
	}}
	chunker := NewTextChunker(extractor, Config{ChunkSize: 200, Overlap: 50, MinChunkLength: 60}, WithLogger(logger.Discard()))

	chunks, err := chunker.ExtractChunks([]byte("%PDF"))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	pages := map[int]int{}
	for _, ch := range chunks {
		pages[ch.Page]++
		assert.Zero(t, ch.Tokens)
	}
	assert.NotContains(t, pages, 2)
	assert.NotContains(t, pages, 3)
	assert.Contains(t, pages, 1)
	assert.Contains(t, pages, 4)

	// ページ内のインデックスは0から連番
	var page4 []Chunk
	for _, ch := range chunks {
		if ch.Page == 4 {
			page4 = append(page4, ch)
		}
	}
	for i, ch := range page4 {
		assert.Equal(t, i, ch.Index)
	}
}

func TestExtractChunks_DocumentLevelFailure(t *testing.T) {
	chunker := NewTextChunker(&stubExtractor{err: errors.New("not a pdf")}, DefaultConfig())

	_, err := chunker.ExtractChunks([]byte("<html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a pdf")
}

func TestChunkPage_WithTokenCounter(t *testing.T) {
	chunker := NewTextChunker(&stubExtractor{}, Config{ChunkSize: 100, Overlap: 10, MinChunkLength: 20}, WithTokenCounter(runeCounter{}))

	chunks := chunker.ChunkPage(7, strings.Repeat("x", 150))
	require.Len(t, chunks, 2)
	assert.Equal(t, 7, chunks[0].Page)
	assert.Equal(t, 25, chunks[0].Tokens)
}
