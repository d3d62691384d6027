package pdf

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/medsupport/guideline-rag/internal/core/ingestion/chunk"
)

// Extractor はPDFからページ単位でテキストを取り出す
type Extractor struct{}

// NewExtractor は新しい Extractor を作成する
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages は全ページのテキストを返す。
// 文書として開けない場合のみエラーを返し、ページ単位の失敗は Page.Err に入れる。
func (e *Extractor) ExtractPages(data []byte) (pages []chunk.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to read PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	numPages := reader.NumPage()
	pages = make([]chunk.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, pageErr := extractPage(reader, i)
		pages = append(pages, chunk.Page{Number: i, Text: text, Err: pageErr})
	}
	return pages, nil
}

// extractPage は1ページ分のテキストを取り出す。壊れたページでのpanicはエラーに変換する。
func extractPage(reader *pdf.Reader, number int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", number, r)
		}
	}()

	page := reader.Page(number)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", number)
	}

	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", number, err)
	}
	return text, nil
}

// インターフェース実装の確認
var _ chunk.PageExtractor = (*Extractor)(nil)
