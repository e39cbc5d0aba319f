package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/supportqa/internal/engine"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyEmbedding is returned when the backend answers without a vector.
// Ranking against a zero vector would silently order the corpus by position.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}

// nativeBatchSize bounds the texts sent in one batch request.
const nativeBatchSize = 32

// EmbedBatch returns embedding vectors for texts, in order. Backends that
// batch natively get requests of up to 32 texts; others are called per text
// with at most 4 calls in flight. Returns nil (not error) for empty input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if be, ok := e.engine.(engine.BatchEmbedder); ok {
		return e.embedNative(ctx, be, texts)
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.engine.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			if len(vec) == 0 {
				return fmt.Errorf("embedding text %d: %w", i, ErrEmptyEmbedding)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Embedder) embedNative(ctx context.Context, be engine.BatchEmbedder, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += nativeBatchSize {
		end := min(start+nativeBatchSize, len(texts))
		vecs, err := be.EmbedBatch(ctx, e.model, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("embedding text %d: %w", start+i, ErrEmptyEmbedding)
			}
		}
		results = append(results, vecs...)
	}
	return results, nil
}
