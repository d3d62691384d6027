package ask

import (
	"fmt"
	"strings"
)

// BuildAskPrompt は根拠パッセージと質問から生成用のプロンプトを構築する
func BuildAskPrompt(query string, passages []RankedPassage) string {
	var sb strings.Builder

	// システムプロンプトとガイドライン
	sb.WriteString("Ты медицинский ассистент. Отвечай на вопросы врачей строго на основе клинических рекомендаций Минздрава России.\n")
	sb.WriteString("Используй только приведённые ниже фрагменты рекомендаций.\n\n")

	sb.WriteString("## Правила ответа\n")
	sb.WriteString("- Опирайся только на информацию из фрагментов\n")
	sb.WriteString("- Указывай номер фрагмента в квадратных скобках, например [1]\n")
	sb.WriteString("- Если во фрагментах нет ответа, прямо сообщи об этом и не додумывай\n\n")

	sb.WriteString("## Фрагменты клинических рекомендаций\n")
	if len(passages) > 0 {
		for _, p := range passages {
			sb.WriteString(fmt.Sprintf("### [%d] %s\n", p.Rank, p.DocumentName()))
			sb.WriteString(fmt.Sprintf("Рекомендация: %s\n", p.Metadata.RecommendationNumber))
			sb.WriteString(fmt.Sprintf("Источник: %s\n", p.Metadata.SourceURL))
			sb.WriteString(fmt.Sprintf("Релевантность: %.3f\n", p.RerankScore))
			sb.WriteString(p.Content)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString("(подходящих фрагментов нет)\n\n")
	}

	sb.WriteString("## Вопрос\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("## Ответ\n")

	return sb.String()
}

// BuildContext は生成サービスへ渡す構造化コンテキストを組み立てる
func BuildContext(passages []RankedPassage) []ContextPassage {
	items := make([]ContextPassage, 0, len(passages))
	for _, p := range passages {
		items = append(items, ContextPassage{
			Text:                 p.Content,
			DocumentName:         p.DocumentName(),
			RecommendationNumber: p.Metadata.RecommendationNumber,
			SourceURL:            p.Metadata.SourceURL,
			Score:                p.RerankScore,
		})
	}
	return items
}

// BuildSources はランク順の出典一覧を作成する
func BuildSources(passages []RankedPassage) []SourceReference {
	sources := make([]SourceReference, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, SourceReference{
			Rank:                 p.Rank,
			DocumentName:         p.DocumentName(),
			RecommendationNumber: p.Metadata.RecommendationNumber,
			SourceURL:            p.Metadata.SourceURL,
			Score:                p.RerankScore,
		})
	}
	return sources
}

// FormatSources は回答末尾に付ける出典ブロックを整形する。
// 1行1件で "[順位] 文書名 | 推奨番号 | score=0.000 | URL" の形式。
func FormatSources(sources []SourceReference) string {
	var sb strings.Builder
	sb.WriteString(SourcesHeader)
	for _, s := range sources {
		sb.WriteString(fmt.Sprintf("\n[%d] %s | %s | score=%.3f | %s",
			s.Rank, s.DocumentName, s.RecommendationNumber, s.Score, s.SourceURL))
	}
	return sb.String()
}

// formatFallback は生成を行わずにパッセージを直接提示する回答を作る
func formatFallback(passages []RankedPassage, sources []SourceReference) string {
	var sb strings.Builder
	sb.WriteString(MessageFallback)
	sb.WriteString("\n\n")
	for _, p := range passages {
		sb.WriteString(fmt.Sprintf("[%d] %s (%s)\n", p.Rank, p.DocumentName(), p.Metadata.RecommendationNumber))
		sb.WriteString(p.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString(FormatSources(sources))
	return sb.String()
}

// mergeAnswer は生成された回答に出典ブロックを付ける
func mergeAnswer(generated string, sources []SourceReference) string {
	return strings.TrimSpace(generated) + "\n\n" + FormatSources(sources)
}
