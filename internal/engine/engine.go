// Package engine abstracts the inference backends used for answer generation
// and embeddings.
package engine

import (
	"context"
	"errors"
)

// Roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrOverloaded marks a transient capacity failure (HTTP 5xx, UNAVAILABLE).
	ErrOverloaded = errors.New("inference backend overloaded")
	// ErrQuotaExceeded marks a rate-limit or quota failure (HTTP 429, RESOURCE_EXHAUSTED).
	ErrQuotaExceeded = errors.New("inference quota exceeded")
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine is an inference backend. Consumers such as the embedder and the
// generation client use this interface instead of a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}

// AnswerTemperature is the sampling temperature for grounded answers. Low
// values keep replies close to the supplied context.
const AnswerTemperature = 0.2

// BatchEmbedder is implemented by backends that embed many texts in one call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// ModelManager is implemented by backends that host models themselves and
// can download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// classifyStatus maps an HTTP status code and an optional RPC status name to
// one of the failure classes, or nil when the failure is of another kind.
func classifyStatus(code int, status string) error {
	switch {
	case code == 429 || status == "RESOURCE_EXHAUSTED":
		return ErrQuotaExceeded
	case code == 500 || code == 502 || code == 503 || code == 504 ||
		status == "UNAVAILABLE" || status == "DEADLINE_EXCEEDED" || status == "INTERNAL":
		return ErrOverloaded
	}
	return nil
}
