package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/medsupport/guideline-rag/internal/core/search"
)

// QueryEmbedder は質問文のベクトル化インターフェース
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Retriever はベクトル検索インターフェース
type Retriever interface {
	SearchByVector(ctx context.Context, queryVector []float32) ([]*search.RetrievalResult, error)
}

// Reranker は候補パッセージの再順位付けインターフェース
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]RerankItem, error)
}

// Generator は回答生成インターフェース
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// Timeouts は外部呼び出しごとのタイムアウト
type Timeouts struct {
	Embed    time.Duration
	Retrieve time.Duration
	Rerank   time.Duration
	Generate time.Duration
}

// DefaultTimeouts はデフォルトのタイムアウトを返す。生成は他より長い。
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Embed:    30 * time.Second,
		Retrieve: 10 * time.Second,
		Rerank:   30 * time.Second,
		Generate: 120 * time.Second,
	}
}

// AskService は質問応答のビジネスロジックを提供する
type AskService struct {
	embedder  QueryEmbedder
	retriever Retriever
	reranker  Reranker
	generator Generator // オプショナル
	counter   TokenCounter
	timeouts  Timeouts
	logger    *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithAskGenerator は生成サービスを設定する。未設定の場合は常にパッセージを直接提示する。
func WithAskGenerator(generator Generator) AskServiceOption {
	return func(s *AskService) {
		s.generator = generator
	}
}

// WithAskTimeouts はタイムアウトを上書きする
func WithAskTimeouts(timeouts Timeouts) AskServiceOption {
	return func(s *AskService) {
		s.timeouts = timeouts
	}
}

// WithAskTokenCounter はプロンプトのトークン数をログに出す
func WithAskTokenCounter(counter TokenCounter) AskServiceOption {
	return func(s *AskService) {
		s.counter = counter
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	embedder QueryEmbedder,
	retriever Retriever,
	reranker Reranker,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		embedder:  embedder,
		retriever: retriever,
		reranker:  reranker,
		timeouts:  DefaultTimeouts(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に対してRAGベースで回答を生成する。
// 各段階の失敗は定型メッセージの回答として返し、エラーになるのは
// 質問文が空の場合と呼び出し元のコンテキストが終了した場合のみ。
func (s *AskService) Ask(ctx context.Context, query string) (*AskResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result := &AskResult{}

	// 1. 質問文のベクトル化
	var vector []float32
	err := s.runStage(ctx, result, StageEmbed, s.timeouts.Embed, func(ctx context.Context) error {
		v, err := s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return errors.New("embedding service returned an empty vector")
		}
		vector = v
		return nil
	})
	if err != nil {
		return s.terminate(ctx, result, OutcomeEmbedFailed, MessageEmbedFailed)
	}

	// 2. ベクトル検索
	var candidates []*search.RetrievalResult
	err = s.runStage(ctx, result, StageRetrieve, s.timeouts.Retrieve, func(ctx context.Context) error {
		c, err := s.retriever.SearchByVector(ctx, vector)
		candidates = c
		return err
	})
	if err != nil || len(candidates) == 0 {
		return s.terminate(ctx, result, OutcomeNothingFound, MessageNothingFound)
	}

	// 3. リランク
	var items []RerankItem
	err = s.runStage(ctx, result, StageRerank, s.timeouts.Rerank, func(ctx context.Context) error {
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Content
		}
		r, err := s.reranker.Rerank(ctx, query, texts)
		items = r
		return err
	})
	if err != nil {
		return s.terminate(ctx, result, OutcomeRerankFailed, MessageRerankFailed)
	}

	passages := MatchReranked(candidates, items)
	if len(passages) == 0 {
		s.logger.Warn("リランク結果を検索結果に対応付けられません", "items", len(items), "candidates", len(candidates))
		return s.terminate(ctx, result, OutcomeNothingFound, MessageNothingFound)
	}
	result.Passages = passages
	result.Sources = BuildSources(passages)

	// 4. プロンプト構築
	promptStart := time.Now()
	prompt := BuildAskPrompt(query, passages)
	result.Trace = append(result.Trace, StageTrace{Stage: StagePrompt, Duration: time.Since(promptStart)})
	if s.counter != nil {
		s.logger.Debug("プロンプトを構築", "tokens", s.counter.CountTokens(prompt), "passages", len(passages))
	}

	// 5. 回答生成と出典の結合
	if s.generator == nil {
		s.logger.Info("生成サービス未設定のためパッセージを直接提示")
		result.Outcome = OutcomeFallback
		result.Answer = formatFallback(passages, result.Sources)
		return result, nil
	}

	var answer string
	err = s.runStage(ctx, result, StageGenerate, s.timeouts.Generate, func(ctx context.Context) error {
		a, err := s.generator.Generate(ctx, GenerationRequest{
			Prompt:  prompt,
			Query:   query,
			Context: BuildContext(passages),
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(a) == "" {
			return errors.New("generation service returned an empty answer")
		}
		answer = a
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		result.Outcome = OutcomeFallback
		result.Answer = formatFallback(passages, result.Sources)
		return result, nil
	}

	result.Outcome = OutcomeGenerated
	result.Generated = true
	result.Answer = mergeAnswer(answer, result.Sources)

	s.logger.Info("ask completed successfully",
		"answerLength", len(result.Answer),
		"sources", len(result.Sources),
	)

	return result, nil
}

// runStage は1段階をタイムアウト付きで実行し、実行記録を残す
func (s *AskService) runStage(
	ctx context.Context,
	result *AskResult,
	stage StageName,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(start)
	result.Trace = append(result.Trace, StageTrace{Stage: stage, Duration: elapsed, Err: err})

	if err != nil {
		if errors.Is(err, ErrGenerationDisabled) {
			s.logger.Info("stage skipped", "stage", stage, "duration", elapsed)
		} else {
			s.logger.Warn("stage failed", "stage", stage, "duration", elapsed, "error", err)
		}
		return err
	}
	s.logger.Debug("stage completed", "stage", stage, "duration", elapsed)
	return nil
}

// terminate は定型メッセージで処理を打ち切る。呼び出し元が切断済みならエラーを返す。
func (s *AskService) terminate(ctx context.Context, result *AskResult, outcome Outcome, message string) (*AskResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Outcome = outcome
	result.Answer = message
	return result, nil
}

// MatchReranked はリランク結果を元の検索結果に対応付け、順位順に並べる。
// 位置情報があればそれを優先し、なければ本文の完全一致で検索順に未使用の候補を割り当てる。
// 同じ本文の候補が複数あっても1件ずつ別の候補に対応する。対応しない項目は捨てる。
func MatchReranked(candidates []*search.RetrievalResult, items []RerankItem) []RankedPassage {
	ordered := make([]RerankItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rankKey(ordered[i]) < rankKey(ordered[j])
	})

	byText := make(map[string][]int, len(candidates))
	for i, c := range candidates {
		if c == nil {
			continue
		}
		byText[c.Content] = append(byText[c.Content], i)
	}
	used := make([]bool, len(candidates))

	passages := make([]RankedPassage, 0, len(ordered))
	for _, item := range ordered {
		idx := -1
		if i, ok := item.Index.Get(); ok && i >= 0 && i < len(candidates) && candidates[i] != nil && !used[i] {
			idx = i
		} else {
			for _, i := range byText[item.Text] {
				if !used[i] {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			continue
		}
		used[idx] = true
		passages = append(passages, RankedPassage{
			RetrievalResult: *candidates[idx],
			RerankScore:     item.Score,
			Rank:            len(passages) + 1,
		})
	}
	return passages
}

// rankKey は順位未設定の項目を末尾に回す
func rankKey(item RerankItem) int {
	if item.Rank <= 0 {
		return int(^uint(0) >> 1)
	}
	return item.Rank
}

// Describe は結果の要約を返す（ログとCLI表示用）
func (r *AskResult) Describe() string {
	return fmt.Sprintf("outcome=%s sources=%d stages=%d", r.Outcome, len(r.Sources), len(r.Trace))
}
