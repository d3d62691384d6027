package ask

import (
	"errors"
	"time"

	"github.com/samber/mo"

	"github.com/medsupport/guideline-rag/internal/core/search"
)

var (
	// ErrEmptyQuery は質問文が空の場合のエラー
	ErrEmptyQuery = errors.New("query is required")
	// ErrGenerationDisabled は生成サービスが設定されていないことを示す
	ErrGenerationDisabled = errors.New("generation service is not configured")
)

// ユーザーに返す定型メッセージ。失敗の種類ごとに異なる文面にする。
const (
	MessageEmbedFailed  = "Не удалось обработать запрос: сервис векторизации временно недоступен. Попробуйте повторить запрос позже."
	MessageNothingFound = "По вашему запросу в клинических рекомендациях ничего не найдено. Попробуйте переформулировать вопрос."
	MessageRerankFailed = "Не удалось оценить релевантность найденных фрагментов: сервис ранжирования временно недоступен. Попробуйте повторить запрос позже."
	MessageFallback     = "Сформировать ответ не удалось. Ниже приведены наиболее релевантные фрагменты клинических рекомендаций:"
	SourcesHeader       = "Источники:"
)

// Outcome は質問応答がどの段階で終了したかを表す
type Outcome string

const (
	OutcomeGenerated    Outcome = "generated"
	OutcomeFallback     Outcome = "fallback"
	OutcomeEmbedFailed  Outcome = "embed_failed"
	OutcomeNothingFound Outcome = "nothing_found"
	OutcomeRerankFailed Outcome = "rerank_failed"
)

// StageName はパイプラインの段階名
type StageName string

const (
	StageEmbed    StageName = "embed"
	StageRetrieve StageName = "retrieve"
	StageRerank   StageName = "rerank"
	StagePrompt   StageName = "prompt"
	StageGenerate StageName = "generate"
)

// StageTrace は1段階の実行記録
type StageTrace struct {
	Stage    StageName
	Duration time.Duration
	Err      error
}

// RerankItem はリランカーが返す1件
type RerankItem struct {
	Text  string
	Score float64
	Rank  int
	Index mo.Option[int] // 入力パッセージの位置（リランカーが返した場合のみ）
}

// RankedPassage はリランク後に元の検索結果と対応付けたパッセージ
type RankedPassage struct {
	search.RetrievalResult
	RerankScore float64
	Rank        int // 1始まり
}

// SourceReference は回答の根拠となった出典を表す
type SourceReference struct {
	Rank                 int
	DocumentName         string
	RecommendationNumber string
	SourceURL            string
	Score                float64
}

// ContextPassage は生成サービスへ渡す構造化コンテキスト
type ContextPassage struct {
	Text                 string  `json:"text"`
	DocumentName         string  `json:"document_name"`
	RecommendationNumber string  `json:"recommendation_number"`
	SourceURL            string  `json:"source_url"`
	Score                float64 `json:"score"`
}

// GenerationRequest は生成サービスへの入力
type GenerationRequest struct {
	Prompt  string
	Query   string
	Context []ContextPassage
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Answer    string // 利用者に返す文字列（失敗時も定型文）
	Outcome   Outcome
	Generated bool // 生成サービスの出力を含むかどうか
	Passages  []RankedPassage
	Sources   []SourceReference
	Trace     []StageTrace
}
