package chunk

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize はウィンドウの文字数
	DefaultChunkSize = 900
	// DefaultOverlap は隣接ウィンドウの重なり文字数
	DefaultOverlap = 200
	// DefaultMinChunkLength はチャンクとして採用する最小文字数
	DefaultMinChunkLength = 120
)

// Config はチャンク分割の設定（長さはすべて文字数＝rune数）
type Config struct {
	ChunkSize      int
	Overlap        int
	MinChunkLength int
}

// DefaultConfig はデフォルトのチャンク設定を返す
func DefaultConfig() Config {
	return Config{
		ChunkSize:      DefaultChunkSize,
		Overlap:        DefaultOverlap,
		MinChunkLength: DefaultMinChunkLength,
	}
}

// effective は実際に使うウィンドウ幅と重なりを返す。
// ウィンドウ幅は最小長を下回らず、重なりは幅の半分を超えない。
func (c Config) effective() (size, overlap int) {
	size = max(c.ChunkSize, c.MinChunkLength, 1)
	overlap = min(c.Overlap, size/2)
	if overlap < 0 {
		overlap = 0
	}
	return size, overlap
}

// Chunk はあるページの正規化テキストから切り出した連続部分
type Chunk struct {
	Page   int // 1始まり
	Index  int // ページ内で0始まり
	Text   string
	Tokens int // TokenCounter 未設定時は0
}

// Page は抽出済みの1ページ分のテキスト
type Page struct {
	Number int
	Text   string
	Err    error // ページ単位の抽出失敗
}

// PageExtractor はバイナリ文書からページごとのテキストを取り出す
type PageExtractor interface {
	// ExtractPages は文書全体を開けない場合のみエラーを返す。
	// 個別ページの失敗は Page.Err に格納する。
	ExtractPages(data []byte) ([]Page, error)
}

// TokenCounter はチャンクのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// TextChunker はPDFのページテキストを重なり付き固定長ウィンドウに分割する
type TextChunker struct {
	cfg       Config
	extractor PageExtractor
	counter   TokenCounter
	logger    *slog.Logger
}

// Option は TextChunker のオプション設定
type Option func(*TextChunker)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(c *TextChunker) {
		c.logger = logger
	}
}

// WithTokenCounter はチャンクのトークン数計測を有効にする
func WithTokenCounter(counter TokenCounter) Option {
	return func(c *TextChunker) {
		c.counter = counter
	}
}

// NewTextChunker は新しい TextChunker を作成する
func NewTextChunker(extractor PageExtractor, cfg Config, opts ...Option) *TextChunker {
	c := &TextChunker{
		cfg:       cfg,
		extractor: extractor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Config は現在のチャンク設定を返す
func (c *TextChunker) Config() Config {
	return c.cfg
}

// ExtractChunks はバイナリ文書からチャンク列を生成する。
// 抽出に失敗したページと最小長に満たないページは読み飛ばす。
func (c *TextChunker) ExtractChunks(data []byte) ([]Chunk, error) {
	pages, err := c.extractor.ExtractPages(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}

	var chunks []Chunk
	for _, page := range pages {
		if page.Err != nil {
			c.logger.Warn("ページのテキスト抽出に失敗", "page", page.Number, "error", page.Err)
			continue
		}
		chunks = append(chunks, c.ChunkPage(page.Number, page.Text)...)
	}
	return chunks, nil
}

// ChunkPage は1ページ分の生テキストを正規化してチャンク化する
func (c *TextChunker) ChunkPage(pageNumber int, rawText string) []Chunk {
	normalized := Normalize(rawText)
	if utf8.RuneCountInString(normalized) < c.cfg.MinChunkLength {
		return nil
	}

	windows := c.cfg.Split(normalized)
	chunks := make([]Chunk, 0, len(windows))
	for i, text := range windows {
		ch := Chunk{Page: pageNumber, Index: i, Text: text}
		if c.counter != nil {
			ch.Tokens = c.counter.CountTokens(text)
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

// Normalize は改行を含む空白の連続を1つの空白にまとめ、前後を除去する
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split は正規化済みテキストを固定幅ウィンドウで走査する。
// 開始位置は毎回 幅-重なり だけ進み（最低1文字）、末尾に届いたウィンドウで終了する。
// 同じ入力と設定に対して常に同じ境界を返す。
func (c Config) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	size, overlap := c.effective()

	var windows []string
	start := 0
	for start < n {
		end := min(n, start+size)
		window := strings.TrimSpace(string(runes[start:end]))
		if utf8.RuneCountInString(window) >= c.MinChunkLength {
			windows = append(windows, window)
		}
		if end == n {
			break
		}
		start = max(end-overlap, start+1)
	}
	return windows
}
