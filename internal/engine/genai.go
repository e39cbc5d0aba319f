package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIEngine talks to the Gemini API through the google genai SDK.
type GenAIEngine struct {
	client *genai.Client
}

// NewGenAIEngine creates a Gemini-backed engine. An API key is required.
func NewGenAIEngine(ctx context.Context, apiKey string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenAIEngine{client: client}, nil
}

// Chat sends the conversation to Gemini. System messages are concatenated
// into the system instruction; assistant turns are sent with the model role.
func (e *GenAIEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	temp := float32(AnswerTemperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := e.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classifyGenAI(err)
	}
	return resp.Text(), nil
}

// Embed returns the embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, classifyGenAI(err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("genai embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// EmbedBatch embeds texts in one EmbedContent call, one content per text.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, classifyGenAI(err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// IsRunning always reports true; the hosted API has no cheap liveness probe
// and failures surface on the first call.
func (e *GenAIEngine) IsRunning(_ context.Context) bool { return true }

func classifyGenAI(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if class := classifyStatus(apiErr.Code, apiErr.Status); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
		return err
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		if class := classifyStatus(apiErrPtr.Code, apiErrPtr.Status); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
		return err
	}
	return classifyMessage(err)
}

// classifyMessage is the fallback for errors that lost their structured form
// somewhere in the transport.
func classifyMessage(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	case strings.Contains(msg, "503"), strings.Contains(msg, "unavailable"), strings.Contains(msg, "overloaded"):
		return fmt.Errorf("%w: %w", ErrOverloaded, err)
	}
	return err
}
