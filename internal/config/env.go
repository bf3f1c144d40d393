package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ProviderModels defines the model set for a provider. Vision pages use
// Primary, text pages use Fast; Secondary is the failover model for both.
type ProviderModels struct {
	Primary   string
	Secondary string
	Fast      string
	APIKey    string
	BaseURL   string
}

// ProvidersConfig defines engines and models per provider.
type ProvidersConfig struct {
	PrimaryEngine   string // "openai"|"anthropic"
	SecondaryEngine string // "anthropic"|"openai"
	OpenAI          ProviderModels
	Anthropic       ProviderModels
	MaxTokens       int
}

// Models returns the model set for provider.
func (p ProvidersConfig) Models(provider string) ProviderModels {
	switch provider {
	case "openai":
		return p.OpenAI
	case "anthropic":
		return p.Anthropic
	}
	return ProviderModels{}
}

// AnalysisConfig controls page classification.
type AnalysisConfig struct {
	TextRatioThreshold float64
	Deep               bool
	DPI                float64
	Concurrency        int
	OCRLanguages       []string
	ExemplarsFile      string
	ConverterBinary    string
	ConvertTimeout     time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Concurrency         int
	RequestTimeout      time.Duration
	OpenAITimeout       time.Duration
	AnthropicTimeout    time.Duration
	JobTimeout          time.Duration
	MaxInflightPerModel int
	RequestsPerSecond   float64
	Burst               int
	BreakerBaseBackoff  time.Duration
	BreakerMaxBackoff   time.Duration
	CSVDelimiter        rune
}

// Timeout returns the per-request timeout for provider.
func (w WorkerConfig) Timeout(provider string) time.Duration {
	switch provider {
	case "openai":
		if w.OpenAITimeout > 0 {
			return w.OpenAITimeout
		}
	case "anthropic":
		if w.AnthropicTimeout > 0 {
			return w.AnthropicTimeout
		}
	}
	return w.RequestTimeout
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
	ResultTTL    time.Duration
}

// StorageConfig defines where uploads and exports are kept.
type StorageConfig struct {
	WorkDir      string
	ResultDir    string
	DatabasePath string
	S3Bucket     string
	S3Prefix     string
	S3Region     string

	// S3Endpoint targets an S3-compatible store; credentials are optional.
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
	Port          string
	MaxUploadMB   int64
	ShutdownGrace time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Providers ProvidersConfig
	Analysis  AnalysisConfig
	Worker    WorkerConfig
	Queue     QueueConfig
	Storage   StorageConfig
	Server    ServerConfig
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// missing files are fine; real env always wins
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/flashdeck.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_flashdeck",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Providers = ProvidersConfig{
		PrimaryEngine:   getEnv("PRIMARY_ENGINE", "openai"),
		SecondaryEngine: getEnv("SECONDARY_ENGINE", "anthropic"),
		OpenAI: ProviderModels{
			Primary:   getEnv("OPENAI_PRIMARY_MODEL", "gpt-4o"),
			Secondary: getEnv("OPENAI_SECONDARY_MODEL", "gpt-4.1"),
			Fast:      getEnv("OPENAI_FAST_MODEL", "gpt-4o-mini"),
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			BaseURL:   getEnv("OPENAI_BASE_URL", ""),
		},
		Anthropic: ProviderModels{
			Primary:   getEnv("ANTHROPIC_PRIMARY_MODEL", "claude-3-5-sonnet-latest"),
			Secondary: getEnv("ANTHROPIC_SECONDARY_MODEL", "claude-3-opus-latest"),
			Fast:      getEnv("ANTHROPIC_FAST_MODEL", "claude-3-5-haiku-latest"),
			APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:   getEnv("ANTHROPIC_BASE_URL", ""),
		},
		MaxTokens: parseInt(getEnv("MAX_TOKENS", "1000"), 1000),
	}

	cfg.Analysis = AnalysisConfig{
		TextRatioThreshold: parseFloat(getEnv("TEXT_RATIO_THRESHOLD", "0.8"), 0.8),
		Deep:               parseBool(getEnv("DEEP_ANALYSIS", "false")),
		DPI:                parseFloat(getEnv("RENDER_DPI", "150"), 150),
		Concurrency:        parseInt(getEnv("ANALYSIS_CONCURRENCY", "4"), 4),
		OCRLanguages:       parseList(getEnv("OCR_LANGUAGES", "eng")),
		ExemplarsFile:      getEnv("EXEMPLARS_FILE", ""),
		ConverterBinary:    getEnv("LIBREOFFICE_BIN", "soffice"),
		ConvertTimeout:     parseDuration(getEnv("CONVERT_TIMEOUT", "2m"), 2*time.Minute),
	}

	cfg.Worker = WorkerConfig{
		Concurrency:         parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
		RequestTimeout:      parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second),
		OpenAITimeout:       parseDuration(getEnv("OPENAI_TIMEOUT", ""), 0),
		AnthropicTimeout:    parseDuration(getEnv("ANTHROPIC_TIMEOUT", ""), 0),
		JobTimeout:          parseDuration(getEnv("JOB_TIMEOUT", "30m"), 30*time.Minute),
		MaxInflightPerModel: parseInt(getEnv("MAX_INFLIGHT_PER_MODEL", "2"), 2),
		RequestsPerSecond:   parseFloat(getEnv("PROVIDER_RPS", "2"), 2),
		Burst:               parseInt(getEnv("PROVIDER_BURST", "4"), 4),
		BreakerBaseBackoff:  parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		BreakerMaxBackoff:   parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
		CSVDelimiter:        parseRune(getEnv("CSV_DELIMITER", ";"), ';'),
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:decks"),
		Group:        getEnv("QUEUE_GROUP", "workers:decks"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "2s"), 2*time.Second),
		ResultTTL:    parseDuration(getEnv("RESULT_TTL", "72h"), 72*time.Hour),
	}

	cfg.Storage = StorageConfig{
		WorkDir:      getEnv("WORK_DIR", os.TempDir()),
		ResultDir:    getEnv("RESULT_DIR", "results"),
		DatabasePath: getEnv("DATABASE_PATH", "data/flashdeck.db"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3Prefix:     getEnv("S3_PREFIX", "flashdeck"),
		S3Region:     getEnv("AWS_REGION", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),

		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
	}

	cfg.Server = ServerConfig{
		Port:          getEnv("PORT", "8080"),
		MaxUploadMB:   int64(parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100)),
		ShutdownGrace: parseDuration(getEnv("SHUTDOWN_GRACE", "10s"), 10*time.Second),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseRune(s string, def rune) rune {
	if s == `\t` {
		return '\t'
	}
	r := []rune(s)
	if len(r) != 1 {
		return def
	}
	return r[0]
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
