package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	BackendLocal    = "local"
	BackendWeaviate = "weaviate"
	BackendQdrant   = "qdrant"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"neuraxon"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"neuraxon"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI         bool   `envconfig:"ENABLE_API" default:"true"`
	EnableIndexWorker bool   `envconfig:"ENABLE_INDEX_WORKER" default:"true"`
	MigrationPath     string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort        int    `envconfig:"SERVER_PORT" default:"5001"`
	QueryLogPath      string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	AdminToken        string `envconfig:"ADMIN_TOKEN"`
	TrustForwardedFor bool   `envconfig:"TRUST_FORWARDED_FOR" default:"true"`
	CORSAllowOrigin   string `envconfig:"CORS_ALLOW_ORIGIN" default:"*"`

	// Providers
	OpenAIAPIKey          string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL         string        `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey          string        `envconfig:"GEMINI_API_KEY"`
	EmbeddingProvider     string        `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel        string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions   int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatProvider          string        `envconfig:"CHAT_PROVIDER" default:"openai"`
	ChatModel             string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ChatTemperature       float32       `envconfig:"CHAT_TEMPERATURE" default:"0.2"`
	ChatMaxTokens         int           `envconfig:"CHAT_MAX_TOKENS" default:"500"`
	PriceInputPerMillion  float64       `envconfig:"PRICE_INPUT_PER_MILLION" default:"0.15"`
	PriceOutputPerMillion float64       `envconfig:"PRICE_OUTPUT_PER_MILLION" default:"0.60"`
	EmbedTimeout          time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`
	CompletionTimeout     time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"30s"`
	RerankProvider        string        `envconfig:"RERANK_PROVIDER"`
	RerankAPIKey          string        `envconfig:"RERANK_API_KEY"`

	// Indexing
	RepoRoot          string        `envconfig:"REPO_ROOT" default:"."`
	IndexDir          string        `envconfig:"INDEX_DIR" default:"vector_db"`
	IndexBackend      string        `envconfig:"INDEX_BACKEND" default:"local"`
	ChunkMaxChars     int           `envconfig:"CHUNK_MAX_CHARS" default:"1500"`
	ChunkMinChars     int           `envconfig:"CHUNK_MIN_CHARS" default:"0"`
	ChunkMaxJSONKeys  int           `envconfig:"CHUNK_MAX_JSON_KEYS" default:"20"`
	PopupScriptName   string        `envconfig:"POPUP_SCRIPT_NAME" default:"popups.js"`
	EmbedBatchSize    int           `envconfig:"EMBED_BATCH_SIZE" default:"50"`
	EmbedMaxTokens    int           `envconfig:"EMBED_MAX_TOKENS" default:"8000"`
	EmbedMaxRetries   int           `envconfig:"EMBED_MAX_RETRIES" default:"2"`
	IndexBuildTimeout time.Duration `envconfig:"INDEX_BUILD_TIMEOUT" default:"30m"`

	// Remote vector stores
	WeaviateHost     string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme   string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass    string `envconfig:"WEAVIATE_CLASS" default:"CodeChunk"`
	QdrantHost       string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort       int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"code_chunks"`

	// Sources
	SourceRepoRoot    string `envconfig:"SOURCE_REPO_ROOT" default:"."`
	SourceRepoURL     string `envconfig:"SOURCE_REPO_URL" default:"https://github.com/RideMatch1/qubic-anna-lab-public"`
	SourceBranch      string `envconfig:"SOURCE_BRANCH" default:"main"`
	SourceContentRoot string `envconfig:"SOURCE_CONTENT_ROOT" default:"web"`

	// Chatbot limits
	MaxQuestionsPerMinute int     `envconfig:"CHATBOT_MAX_QUESTIONS_PER_MINUTE" default:"5"`
	MaxQuestionsPerHour   int     `envconfig:"CHATBOT_MAX_QUESTIONS_PER_HOUR" default:"20"`
	MaxQuestionsPerDay    int     `envconfig:"CHATBOT_MAX_QUESTIONS_PER_DAY" default:"100"`
	MaxCostPerDay         float64 `envconfig:"CHATBOT_MAX_COST_PER_DAY" default:"0.10"`
	MaxCostPerMonth       float64 `envconfig:"CHATBOT_MAX_COST_PER_MONTH" default:"2.0"`
	MaxCostPerRequest     float64 `envconfig:"CHATBOT_MAX_COST_PER_REQUEST" default:"0.01"`
	MaxTokensPerRequest   int     `envconfig:"CHATBOT_MAX_TOKENS_PER_REQUEST" default:"3000"`
	MaxInputChars         int     `envconfig:"CHATBOT_MAX_INPUT_CHARS" default:"500"`
	TopK                  int     `envconfig:"CHATBOT_TOP_K" default:"3"`
	ContextCharsPerChunk  int     `envconfig:"CHATBOT_CONTEXT_CHARS_PER_CHUNK" default:"300"`
	MaxContextTokens      int     `envconfig:"CHATBOT_MAX_CONTEXT_TOKENS" default:"2000"`
	MaxHistoryTokens      int     `envconfig:"CHATBOT_MAX_HISTORY_TOKENS" default:"100"`
	MaxPromptTokens       int     `envconfig:"CHATBOT_MAX_PROMPT_TOKENS" default:"4000"`
	FallbackContextChars  int     `envconfig:"CHATBOT_FALLBACK_CONTEXT_CHARS" default:"1000"`

	// Web search
	WebSearchURL          string        `envconfig:"WEB_SEARCH_URL" default:"https://api.duckduckgo.com/"`
	WebSearchTimeout      time.Duration `envconfig:"WEB_SEARCH_TIMEOUT" default:"5s"`
	WebSearchMaxPerMinute int           `envconfig:"WEB_SEARCH_MAX_PER_MINUTE" default:"5"`
	WebSearchMaxPerHour   int           `envconfig:"WEB_SEARCH_MAX_PER_HOUR" default:"20"`
	WebSearchMaxPerDay    int           `envconfig:"WEB_SEARCH_MAX_PER_DAY" default:"100"`

	// Observability
	OTLPEndpoint   string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELSampleRate float64 `envconfig:"OTEL_SAMPLE_RATE" default:"1.0"`
	Environment    string  `envconfig:"ENVIRONMENT" default:"development"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over .env files.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	if err := validateProvider("EMBEDDING_PROVIDER", c.EmbeddingProvider); err != nil {
		return err
	}
	if err := validateProvider("CHAT_PROVIDER", c.ChatProvider); err != nil {
		return err
	}

	switch c.IndexBackend {
	case BackendLocal, BackendWeaviate, BackendQdrant:
	default:
		return fmt.Errorf("%w: INDEX_BACKEND=%q", ErrInvalidValue, c.IndexBackend)
	}

	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", ErrInvalidValue)
	}
	if c.ChunkMaxChars <= 0 {
		return fmt.Errorf("%w: CHUNK_MAX_CHARS must be positive", ErrInvalidValue)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: CHATBOT_TOP_K must be positive", ErrInvalidValue)
	}
	return nil
}

// RequireProviderKeys checks the credentials of the providers selected for
// embeddings and chat. Commands that never call a provider skip it.
func (c *Config) RequireProviderKeys() error {
	for _, p := range []string{c.EmbeddingProvider, c.ChatProvider} {
		switch p {
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
			}
		case ProviderGemini:
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
			}
		}
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func validateProvider(name, value string) error {
	switch value {
	case ProviderOpenAI, ProviderGemini:
		return nil
	}
	return fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
}
