package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the AI Foundry server.
type Config struct {
	Port        int               `yaml:"port"`
	Version     string            `yaml:"version"`
	LogLevel    string            `yaml:"log_level"`
	DataDir     string            `yaml:"data_dir"`
	Store       StoreConfig       `yaml:"store"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Chat        ChatConfig        `yaml:"chat"`
	HTTP        HTTPConfig        `yaml:"http"`
}

type HTTPConfig struct {
	APIKeys        []string `yaml:"api_keys"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Kind       string `yaml:"kind"` // "memory" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
}

type VectorStoreConfig struct {
	Kind        string `yaml:"kind"` // "embedded" or "pgvector"
	PgvectorURL string `yaml:"pgvector_url"`
	Dimensions  int    `yaml:"dimensions"`
	MaxVectors  int    `yaml:"max_vectors"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// ProvidersConfig seeds provider credentials. Values only apply when a
// provider record is built fresh; persisted edits take precedence.
type ProvidersConfig struct {
	OllamaEndpoint      string `yaml:"ollama_endpoint"`
	OpenAIAPIKey        string `yaml:"openai_api_key"`
	OpenAIBaseURL       string `yaml:"openai_base_url"`
	AzureOpenAIAPIKey   string `yaml:"azure_openai_api_key"`
	AzureOpenAIEndpoint string `yaml:"azure_openai_endpoint"`
	AnthropicAPIKey     string `yaml:"anthropic_api_key"`
}

type ChatConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	HistoryRetries int           `yaml:"history_retries"`
}

// Load builds the configuration from defaults, an optional YAML file named
// by AIF_CONFIG_FILE, and environment variables (highest precedence).
// A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("AIF_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envInt("AIF_PORT", cfg.Port)
	cfg.Version = envStr("AIF_VERSION", cfg.Version)
	cfg.LogLevel = envStr("AIF_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = envStr("AIF_DATA_DIR", cfg.DataDir)

	cfg.Store.Kind = envStr("AIF_STORE", cfg.Store.Kind)
	cfg.Store.SQLitePath = envStr("AIF_SQLITE_PATH", cfg.Store.SQLitePath)
	if cfg.Store.SQLitePath == "" && cfg.DataDir != "" {
		cfg.Store.SQLitePath = filepath.Join(cfg.DataDir, "aifoundry.db")
	}

	cfg.VectorStore.Kind = envStr("AIF_VECTOR_STORE", cfg.VectorStore.Kind)
	cfg.VectorStore.PgvectorURL = envStr("AIF_PGVECTOR_URL", cfg.VectorStore.PgvectorURL)
	cfg.VectorStore.Dimensions = envInt("AIF_PGVECTOR_DIMENSIONS", cfg.VectorStore.Dimensions)
	cfg.VectorStore.MaxVectors = envInt("AIF_EMBEDDED_MAX_VECTORS", cfg.VectorStore.MaxVectors)

	cfg.Telemetry.Enabled = envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.SampleRatio = envFloat("OTEL_TRACES_SAMPLER_ARG", cfg.Telemetry.SampleRatio)

	cfg.Providers.OllamaEndpoint = envStr("OLLAMA_ENDPOINT", cfg.Providers.OllamaEndpoint)
	cfg.Providers.OpenAIAPIKey = envStr("OPENAI_API_KEY", cfg.Providers.OpenAIAPIKey)
	cfg.Providers.OpenAIBaseURL = envStr("OPENAI_BASE_URL", cfg.Providers.OpenAIBaseURL)
	cfg.Providers.AzureOpenAIAPIKey = envStr("AZURE_OPENAI_API_KEY", cfg.Providers.AzureOpenAIAPIKey)
	cfg.Providers.AzureOpenAIEndpoint = envStr("AZURE_OPENAI_ENDPOINT", cfg.Providers.AzureOpenAIEndpoint)
	cfg.Providers.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", cfg.Providers.AnthropicAPIKey)

	cfg.Chat.Timeout = envDuration("AIF_CHAT_TIMEOUT", cfg.Chat.Timeout)
	cfg.Chat.HistoryRetries = envInt("AIF_HISTORY_RETRIES", cfg.Chat.HistoryRetries)

	cfg.HTTP.APIKeys = envList("AIF_API_KEYS", cfg.HTTP.APIKeys)
	cfg.HTTP.AllowedOrigins = envList("AIF_ALLOWED_ORIGINS", cfg.HTTP.AllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".aifoundry")
	}
	return &Config{
		Port:     8080,
		Version:  "0.1.0",
		LogLevel: "info",
		DataDir:  dataDir,
		Store:    StoreConfig{Kind: "memory"},
		VectorStore: VectorStoreConfig{
			Kind:       "embedded",
			Dimensions: 1024,
			MaxVectors: 50_000,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "aifoundry-server",
			SampleRatio:  1,
		},
		Providers: ProvidersConfig{
			OllamaEndpoint: "http://localhost:11434",
		},
		Chat: ChatConfig{
			Timeout:        120 * time.Second,
			HistoryRetries: 3,
		},
		HTTP: HTTPConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

func (c *Config) validate() error {
	switch c.Store.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown store kind %q", c.Store.Kind)
	}
	switch c.VectorStore.Kind {
	case "embedded":
	case "pgvector":
		if c.VectorStore.PgvectorURL == "" {
			return fmt.Errorf("config: AIF_PGVECTOR_URL is required for the pgvector vector store")
		}
	default:
		return fmt.Errorf("config: unknown vector store kind %q", c.VectorStore.Kind)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: trace sample ratio must be within [0, 1]")
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("config: chat timeout must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
