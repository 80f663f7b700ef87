package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Qdrant   QdrantConfig
	Ai       AIConfig
	Memory   MemoryConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
}

type DatabaseConfig struct {
	Connection string
}

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type AIConfig struct {
	EmbeddingProvider   string // "ollama", "jina" or "hash"
	EmbeddingDimensions int
	OllamaBaseURL       string
	OllamaModel         string
	JinaApiKey          string
}

type MemoryConfig struct {
	VectorStore  string // "pgvector", "qdrant" or "memory"
	TokenBudget  int
	SearchLimit  int
	HistoryLimit int
	StatsWindow  int
	RetryMax     int
	StoreTimeout time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/memory.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "localhost"),
			Port:       getEnvAsInt("QDRANT_PORT", 6334),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			UseTLS:     getEnvAsBool("QDRANT_USE_TLS", false),
			Collection: getEnv("QDRANT_COLLECTION", "mateo_conversations"),
		},
		Ai: AIConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:         getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			JinaApiKey:          getEnv("JINA_API_KEY", ""),
		},
		Memory: MemoryConfig{
			VectorStore:  getEnv("VECTOR_STORE", "pgvector"),
			TokenBudget:  getEnvAsInt("MEMORY_TOKEN_BUDGET", 8100),
			SearchLimit:  getEnvAsInt("MEMORY_SEARCH_LIMIT", 15),
			HistoryLimit: getEnvAsInt("MEMORY_HISTORY_LIMIT", 10),
			StatsWindow:  getEnvAsInt("MEMORY_STATS_WINDOW", 100),
			RetryMax:     getEnvAsInt("MEMORY_RETRY_MAX", 3),
			StoreTimeout: time.Duration(getEnvAsInt("MEMORY_STORE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
