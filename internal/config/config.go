package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names accepted for embeddings and the categorizer LLM.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// On-disk layout for index, cache and artifact files
	DataDir string

	// Embeddings
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int
	OllamaHost         string

	// Categorizer LLM
	LLMProvider string
	LLMModel    string

	// API credentials
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Classification engine knobs
	ReviewsPerBatch      int
	MaxConcurrentBatches int
	MaxAttempts          int

	// HTTP server
	ListenAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "reviewkit"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "main"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		DataDir: getEnv("REVIEWKIT_DATA_DIR", defaultDataDir()),

		EmbeddingProvider:  getEnv("REVIEWKIT_EMBEDDING_PROVIDER", ProviderOllama),
		EmbeddingModel:     getEnv("REVIEWKIT_EMBEDDING_MODEL", "all-minilm:l6-v2"),
		EmbeddingDimension: getEnvInt("REVIEWKIT_EMBEDDING_DIMENSION", 384),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),

		LLMProvider: getEnv("REVIEWKIT_LLM_PROVIDER", ProviderOpenAI),
		LLMModel:    getEnv("REVIEWKIT_LLM_MODEL", "gpt-4o-mini"),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		ReviewsPerBatch:      getEnvInt("REVIEWKIT_REVIEWS_PER_BATCH", 20),
		MaxConcurrentBatches: getEnvInt("REVIEWKIT_MAX_CONCURRENT_BATCHES", 20),
		MaxAttempts:          getEnvInt("REVIEWKIT_MAX_ATTEMPTS", 3),

		ListenAddr: getEnv("REVIEWKIT_LISTEN_ADDR", ":8080"),

		LogFile:  getEnv("REVIEWKIT_LOG_FILE", "/tmp/reviewkit.log"),
		LogLevel: parseLogLevel(getEnv("REVIEWKIT_LOG_LEVEL", "INFO")),
	}
}

// fileConfig mirrors the YAML config file. All fields are optional; set
// fields override the environment-derived values.
type fileConfig struct {
	SurrealDB struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
	} `yaml:"surrealdb"`
	DataDir   string `yaml:"data_dir"`
	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`
	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	} `yaml:"llm"`
	Classify struct {
		ReviewsPerBatch      int `yaml:"reviews_per_batch"`
		MaxConcurrentBatches int `yaml:"max_concurrent_batches"`
		MaxAttempts          int `yaml:"max_attempts"`
	} `yaml:"classify"`
	ListenAddr string `yaml:"listen_addr"`
	LogFile    string `yaml:"log_file"`
	LogLevel   string `yaml:"log_level"`
}

// LoadFile loads env configuration and overlays values from a YAML file.
func LoadFile(path string) (Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	overrideStr(&cfg.SurrealDBURL, fc.SurrealDB.URL)
	overrideStr(&cfg.SurrealDBNamespace, fc.SurrealDB.Namespace)
	overrideStr(&cfg.SurrealDBDatabase, fc.SurrealDB.Database)
	overrideStr(&cfg.SurrealDBUser, fc.SurrealDB.User)
	overrideStr(&cfg.SurrealDBPass, fc.SurrealDB.Pass)
	overrideStr(&cfg.DataDir, fc.DataDir)
	overrideStr(&cfg.EmbeddingProvider, fc.Embedding.Provider)
	overrideStr(&cfg.EmbeddingModel, fc.Embedding.Model)
	overrideInt(&cfg.EmbeddingDimension, fc.Embedding.Dimension)
	overrideStr(&cfg.LLMProvider, fc.LLM.Provider)
	overrideStr(&cfg.LLMModel, fc.LLM.Model)
	overrideInt(&cfg.ReviewsPerBatch, fc.Classify.ReviewsPerBatch)
	overrideInt(&cfg.MaxConcurrentBatches, fc.Classify.MaxConcurrentBatches)
	overrideInt(&cfg.MaxAttempts, fc.Classify.MaxAttempts)
	overrideStr(&cfg.ListenAddr, fc.ListenAddr)
	overrideStr(&cfg.LogFile, fc.LogFile)
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}

	return cfg, nil
}

// IndexDir returns the directory holding final index files.
func (c Config) IndexDir() string {
	return filepath.Join(c.DataDir, "indexes")
}

// CacheDir returns the directory holding document cache files.
func (c Config) CacheDir() string {
	return filepath.Join(c.DataDir, "caches")
}

// ArtifactDir returns the directory holding exported result workbooks.
func (c Config) ArtifactDir() string {
	return filepath.Join(c.DataDir, "artifacts")
}

// EnsureDirs creates the data directory tree.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.IndexDir(), c.CacheDir(), c.ArtifactDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/reviewkit"
	}
	return filepath.Join(home, ".reviewkit")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func overrideStr(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func overrideInt(dst *int, val int) {
	if val > 0 {
		*dst = val
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
