package engine

import (
	"context"
	"fmt"
)

// Provider names accepted by Detect.
const (
	ProviderGenAI  = "genai"
	ProviderOllama = "ollama"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	GenAIAPIKey   string
	OllamaBaseURL string
}

// Detect returns the backend named by cfg.Provider.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case ProviderGenAI, "":
		return NewGenAIEngine(ctx, cfg.GenAIAPIKey)
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}
