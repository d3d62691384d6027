package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/medsupport/guideline-rag/internal/core/ask"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTemperature は回答生成の温度。根拠に忠実な回答を優先して低めにする。
	DefaultTemperature = 0.1
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrNoChoices は生成候補が返らなかった場合のエラー
	ErrNoChoices = errors.New("no completion choices returned")
)

// Generator は OpenAI Chat Completions を使った回答生成の実装
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

type generatorOptions struct {
	model       string
	temperature float64
	baseURL     string
	logger      *slog.Logger
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*generatorOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTemperature は温度を上書きする
func WithTemperature(temperature float64) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = temperature
	}
}

// WithBaseURL はAPIのベースURLを差し替える（互換APIやテスト用）
func WithBaseURL(baseURL string) GeneratorOption {
	return func(o *generatorOptions) {
		o.baseURL = baseURL
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(o *generatorOptions) {
		o.logger = logger
	}
}

// NewGenerator はAPIキーを指定して Generator を作成する。
// 質問応答の経路では再試行しないため、SDKのリトライは無効にする。
func NewGenerator(apiKey string, opts ...GeneratorOption) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := generatorOptions{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if options.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(options.baseURL))
	}

	return &Generator{
		client:      openai.NewClient(clientOpts...),
		model:       options.model,
		temperature: options.temperature,
		logger:      options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.model
}

// Generate は組み立て済みのプロンプトから回答を生成する
func (g *Generator) Generate(ctx context.Context, req ask.GenerationRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(g.temperature),
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if isRateLimitError(err) {
			return "", fmt.Errorf("OpenAI rate limit exceeded: %w", err)
		}
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}

	g.logger.Debug("回答を生成",
		"model", completion.Model,
		"tokensUsed", completion.Usage.TotalTokens,
		"passages", len(req.Context),
	)

	return completion.Choices[0].Message.Content, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// インターフェース実装の確認
var _ ask.Generator = (*Generator)(nil)
