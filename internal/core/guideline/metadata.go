package guideline

import "fmt"

// ChunkMetadata は embedding-service に渡すチャンク単位の非正規化メタデータ。
// クエリ側は関係ストアに戻らずにこの内容だけで出典を示す。
type ChunkMetadata struct {
	DocumentID           string  `json:"document_id"`
	RawDocumentID        string  `json:"raw_document_id"`
	DocumentName         string  `json:"document_name"`
	Version              int     `json:"version"`
	Section              string  `json:"section"`
	Page                 int     `json:"page"`
	ChunkIndex           int     `json:"chunk_index"`
	ChunkID              string  `json:"chunk_id"`
	RecommendationNumber string  `json:"recommendation_number"`
	SourceURL            string  `json:"source_url"`
	MCB                  *string `json:"mcb"`
	AgeCategory          *string `json:"age_category"`
	Developer            *string `json:"developer"`
	PublishDate          *string `json:"publish_date"`
	Specialties          *string `json:"specialties"`
	TokenCount           int     `json:"token_count,omitempty"`
}

// ChunkID はチャンクの大域的に一意で再取り込みに対して安定なIDを返す
func ChunkID(baseID string, page, chunkIndex int) string {
	return fmt.Sprintf("%s-p%d-c%d", baseID, page, chunkIndex)
}

// RecommendationNumber は回答の出典表示に使うページ単位のロケータを返す
func RecommendationNumber(baseID string, page int) string {
	return fmt.Sprintf("%s-p%d", baseID, page)
}

// SectionLabel はページのセクション表示名を返す
func SectionLabel(page int) string {
	return fmt.Sprintf("Страница %d", page)
}

// NewChunkMetadata は文書とチャンク位置からメタデータを組み立てる
func NewChunkMetadata(doc *Document, page, chunkIndex int) ChunkMetadata {
	meta := ChunkMetadata{
		DocumentID:           doc.BaseID,
		RawDocumentID:        doc.RawID,
		DocumentName:         doc.Title,
		Version:              doc.Version,
		Section:              SectionLabel(page),
		Page:                 page,
		ChunkIndex:           chunkIndex,
		ChunkID:              ChunkID(doc.BaseID, page, chunkIndex),
		RecommendationNumber: RecommendationNumber(doc.BaseID, page),
		SourceURL:            doc.SourceURL,
		MCB:                  doc.MCB.ToPointer(),
		Developer:            doc.Developer.ToPointer(),
		Specialties:          doc.Specialties.ToPointer(),
	}
	if category, ok := doc.AgeCategory.Get(); ok {
		s := string(category)
		meta.AgeCategory = &s
	}
	if date, ok := doc.PublishDate.Get(); ok {
		s := date.Format("2006-01-02")
		meta.PublishDate = &s
	}
	return meta
}
