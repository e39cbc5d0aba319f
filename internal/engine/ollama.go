package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/supportqa/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	temp := AnswerTemperature
	out, err := e.client.Chat(ctx, model, msgs, ollama.ChatOptions{Temperature: &temp})
	if err != nil {
		return "", classifyOllama(err)
	}
	return out, nil
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, model, text)
	if err != nil {
		return nil, classifyOllama(err)
	}
	return vec, nil
}

// EmbedBatch embeds texts in a single /api/embed call.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	vecs, err := e.client.EmbedBatch(ctx, model, texts)
	if err != nil {
		return nil, classifyOllama(err)
	}
	return vecs, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

func classifyOllama(err error) error {
	var se *ollama.StatusError
	if errors.As(err, &se) {
		if class := classifyStatus(se.Code, ""); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
	}
	return err
}
