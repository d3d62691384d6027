package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// 臨床ガイドライン登録簿API設定
	Registry RegistryConfig

	// PDFチャンク分割設定
	Chunker ChunkerConfig

	// embedding-service設定
	Embedding EmbeddingConfig

	// リランカー設定
	Rerank RerankConfig

	// 回答生成設定
	Generation GenerationConfig

	// ベクトル検索設定
	Retrieval RetrievalConfig

	// 同期コマンドのデフォルト値
	Sync SyncConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// InitRetryCount は db init の最大試行回数
	InitRetryCount int
	InitRetryDelay time.Duration
}

// RegistryConfig は登録簿APIとPDF取得の設定
type RegistryConfig struct {
	APIURL         string
	SourceURLBase  string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	// RequestsPerSecond が0以下の場合はレート制限なし
	RequestsPerSecond float64
	Burst             int
	DownloadWorkers   int
}

// ChunkerConfig はPDFテキストのチャンク分割設定
type ChunkerConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

// EmbeddingConfig は embedding-service の設定
type EmbeddingConfig struct {
	ServiceURL   string
	Dimensions   int
	BatchSize    int
	QueryTimeout time.Duration
	PushTimeout  time.Duration
}

// RerankConfig はリランカーサービスの設定
type RerankConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// GenerationConfig は回答生成の設定（ServiceURL が空の場合は生成なし）
type GenerationConfig struct {
	Provider     string // "http" or "openai"
	ServiceURL   string
	Timeout      time.Duration
	OpenAIAPIKey string
	OpenAIModel  string
	// Temperature は OpenAI バックエンドのサンプリング温度
	Temperature float64
}

// RetrievalConfig はベクトル検索の設定
type RetrievalConfig struct {
	Limit       int
	Timeout     time.Duration
	VectorTable string
}

// SyncConfig は registry sync のデフォルト値
type SyncConfig struct {
	LoadOnInit     bool
	Limit          int
	ForceReload    bool
	PushEmbeddings bool
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  slog.Level
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvAsInt("DB_PORT", 5432),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			DBName:         getEnv("DB_NAME", "clinical_recommendations"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			InitRetryCount: getEnvAsInt("INIT_DB_RETRY_COUNT", 3),
			InitRetryDelay: getEnvAsDuration("INIT_DB_RETRY_DELAY", 5*time.Second),
		},
		Registry: RegistryConfig{
			APIURL:            getEnv("MINZDRAV_API_URL", "https://apicr.minzdrav.gov.ru/api.ashx"),
			SourceURLBase:     getEnv("MINZDRAV_SOURCE_URL_BASE", "https://cr.minzdrav.gov.ru/clin-rec/"),
			RequestTimeout:    getEnvAsSeconds("MINZDRAV_REQUEST_TIMEOUT", 60*time.Second),
			MaxRetries:        getEnvAsInt("MINZDRAV_MAX_RETRIES", 3),
			RetryDelay:        getEnvAsSeconds("MINZDRAV_RETRY_DELAY", 3*time.Second),
			RequestsPerSecond: getEnvAsFloat("MINZDRAV_REQUESTS_PER_SECOND", 2),
			Burst:             getEnvAsInt("MINZDRAV_BURST", 4),
			DownloadWorkers:   getEnvAsInt("MINZDRAV_DOWNLOAD_WORKERS", 4),
		},
		Chunker: ChunkerConfig{
			ChunkSize:      getEnvAsInt("PDF_CHUNK_SIZE", 900),
			ChunkOverlap:   getEnvAsInt("PDF_CHUNK_OVERLAP", 200),
			MinChunkLength: getEnvAsInt("PDF_MIN_CHUNK_LENGTH", 120),
		},
		Embedding: EmbeddingConfig{
			ServiceURL:   getEnv("EMBEDDING_SERVICE_URL", "http://localhost:8000/embed"),
			Dimensions:   getEnvAsInt("EMBEDDING_DIMENSIONS", 1024),
			BatchSize:    getEnvAsInt("EMBEDDING_BATCH_SIZE", 12),
			QueryTimeout: getEnvAsDuration("EMBEDDING_QUERY_TIMEOUT", 30*time.Second),
			PushTimeout:  getEnvAsDuration("EMBEDDING_PUSH_TIMEOUT", 60*time.Second),
		},
		Rerank: RerankConfig{
			ServiceURL: getEnv("RERANKER_SERVICE_URL", "http://localhost:8001/rerank"),
			Timeout:    getEnvAsDuration("RERANKER_TIMEOUT", 30*time.Second),
		},
		Generation: GenerationConfig{
			Provider:     getEnv("GENERATION_PROVIDER", "http"),
			ServiceURL:   getEnv("GENERATION_SERVICE_URL", ""),
			Timeout:      getEnvAsDuration("GENERATION_TIMEOUT", 120*time.Second),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:  getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			Temperature:  getEnvAsFloat("OPENAI_TEMPERATURE", 0.1),
		},
		Retrieval: RetrievalConfig{
			Limit:       getEnvAsInt("RETRIEVAL_LIMIT", 20),
			Timeout:     getEnvAsDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
			VectorTable: getEnv("VECTOR_TABLE", "chunk_embeddings"),
		},
		Sync: SyncConfig{
			LoadOnInit:     getEnvAsBool("LOAD_MINZDRAV_DATA", false),
			Limit:          getEnvAsInt("LOAD_MINZDRAV_LIMIT", 0),
			ForceReload:    getEnvAsBool("LOAD_MINZDRAV_FORCE", false),
			PushEmbeddings: getEnvAsBool("LOAD_MINZDRAV_PUSH_EMBEDDINGS", true),
		},
		Log: LogConfig{
			Level:  getEnvAsLogLevel("LOG_LEVEL", slog.LevelInfo),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GenerationEnabled は回答生成バックエンドが設定されているかを返す
func (c *Config) GenerationEnabled() bool {
	switch c.Generation.Provider {
	case "openai":
		return c.Generation.OpenAIAPIKey != ""
	default:
		return c.Generation.ServiceURL != ""
	}
}

func (c *Config) validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("PDF_CHUNK_SIZE must be positive: %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("PDF_CHUNK_OVERLAP must not be negative: %d", c.Chunker.ChunkOverlap)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive: %d", c.Embedding.BatchSize)
	}
	if c.Registry.MaxRetries <= 0 {
		return fmt.Errorf("MINZDRAV_MAX_RETRIES must be positive: %d", c.Registry.MaxRetries)
	}
	if c.Registry.DownloadWorkers <= 0 {
		return fmt.Errorf("MINZDRAV_DOWNLOAD_WORKERS must be positive: %d", c.Registry.DownloadWorkers)
	}
	switch c.Generation.Provider {
	case "http", "openai":
	default:
		return fmt.Errorf("unknown GENERATION_PROVIDER: %s", c.Generation.Provider)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は "true" / "false" 形式の環境変数を取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.ToLower(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "30s" 形式の環境変数を取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSeconds は秒数の整数で指定された環境変数を取得します
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return time.Duration(value) * time.Second
}

func getEnvAsLogLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return defaultValue
	}
	return level
}
