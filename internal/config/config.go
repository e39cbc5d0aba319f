// Package config loads supportqa settings from defaults, a JSON config file,
// a .env file and SUPPORTQA_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by engine.provider.
const (
	ProviderGenAI  = "genai"
	ProviderOllama = "ollama"
)

const (
	defaultGenAIPrimary  = "gemini-2.5-flash"
	defaultGenAIFallback = "gemini-2.0-flash"
	defaultGenAIEmbed    = "text-embedding-004"

	defaultOllamaPrimary  = "llama3.1"
	defaultOllamaFallback = "llama3.2"
	defaultOllamaEmbed    = "nomic-embed-text"
)

type Config struct {
	Server     ServerConfig
	Engine     EngineConfig
	GenAI      GenAIConfig
	Ollama     OllamaConfig
	Corpus     CorpusConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Session    SessionConfig
	Memory     MemoryConfig
	Retrieval  RetrievalConfig
	Contact    ContactConfig
	Generation GenerationConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
	// AdminToken enables the /admin routes behind bearer auth when set.
	AdminToken string
	// SessionCookies issues a session_id cookie to clients that send no
	// session identifier.
	SessionCookies bool
}

type EngineConfig struct {
	Provider      string
	PrimaryModel  string
	FallbackModel string
	EmbedModel    string
}

type GenAIConfig struct {
	APIKey string
}

type OllamaConfig struct {
	BaseURL string
}

// CorpusConfig points at a JSON/JSONL corpus file. An empty Path means the
// knowledge_entries table in the SQLite store.
type CorpusConfig struct {
	Path string
}

type StorageConfig struct {
	DataDir string
}

// RedisConfig selects the session store. An empty Addr keeps sessions
// stateless.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	TTL time.Duration
}

type MemoryConfig struct {
	HistoryTurns  int
	FactsInPrompt int
}

type RetrievalConfig struct {
	TopK        int
	HybridBonus float64
	MinOKScore  float64
	Margin      float64
	// BrandPrefixes is a comma-separated list of model family prefixes.
	BrandPrefixes string
}

// Prefixes splits BrandPrefixes.
func (r RetrievalConfig) Prefixes() []string {
	var out []string
	for _, p := range strings.Split(r.BrandPrefixes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type ContactConfig struct {
	Email   string
	Phone   string
	Address string
}

type GenerationConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8080, SessionCookies: true},
		Engine: EngineConfig{
			Provider:      ProviderGenAI,
			PrimaryModel:  defaultGenAIPrimary,
			FallbackModel: defaultGenAIFallback,
			EmbedModel:    defaultGenAIEmbed,
		},
		Ollama:  OllamaConfig{BaseURL: "http://localhost:11434"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Memory:  MemoryConfig{HistoryTurns: 6, FactsInPrompt: 5},
		Retrieval: RetrievalConfig{
			TopK:          5,
			HybridBonus:   0.12,
			MinOKScore:    0.55,
			Margin:        0.03,
			BrandPrefixes: "dy",
		},
		Contact: ContactConfig{
			Email: "support@example.com",
			Phone: "1800-123-4567",
		},
		Generation: GenerationConfig{MaxRetries: 3, InitialBackoff: 500 * time.Millisecond},
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads the JSON config file, then .env in the working directory, then
// SUPPORTQA_* environment variables. Values from .env never override
// variables already set in the environment.
//
// Missing credentials for the selected provider are a configuration error.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), ".env")
}

func loadWith(b ConfigBackend, dotenvPath string) (Config, error) {
	cfg := defaults()

	applyBackend(&cfg, b)

	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not load .env file", "path", dotenvPath, "error", err)
		}
	}
	applyEnvOverrides(&cfg)
	applyProviderDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyProviderDefaults swaps untouched Gemini model names for Ollama ones
// when the ollama provider is selected.
func applyProviderDefaults(cfg *Config) {
	if cfg.Engine.Provider != ProviderOllama {
		return
	}
	if cfg.Engine.PrimaryModel == defaultGenAIPrimary {
		cfg.Engine.PrimaryModel = defaultOllamaPrimary
	}
	if cfg.Engine.FallbackModel == defaultGenAIFallback {
		cfg.Engine.FallbackModel = defaultOllamaFallback
	}
	if cfg.Engine.EmbedModel == defaultGenAIEmbed {
		cfg.Engine.EmbedModel = defaultOllamaEmbed
	}
}

func (c Config) validate() error {
	switch c.Engine.Provider {
	case ProviderGenAI:
		if c.GenAI.APIKey == "" {
			return fmt.Errorf("missing required config: Gemini API key. Set it via environment variable %s or a .env file", envGenAIKey)
		}
	case ProviderOllama:
		if c.Ollama.BaseURL == "" {
			return errors.New("missing required config: ollama.base_url")
		}
	default:
		return fmt.Errorf("invalid engine.provider %q: want %q or %q", c.Engine.Provider, ProviderGenAI, ProviderOllama)
	}
	if c.Engine.EmbedModel == "" || c.Engine.PrimaryModel == "" {
		return errors.New("missing required config: engine.primary_model and engine.embed_model")
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level; anything unknown is info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
