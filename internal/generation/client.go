// Package generation turns a composed prompt into answer text, retrying
// transient backend failures and falling back to a second model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kalambet/supportqa/internal/engine"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultCallTimeout    = 60 * time.Second
)

// Config selects the models and the retry policy.
type Config struct {
	PrimaryModel   string
	FallbackModel  string
	MaxRetries     int
	InitialBackoff time.Duration
	CallTimeout    time.Duration
}

// Client generates answers through an Engine.
type Client struct {
	engine engine.Engine
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Client. Zero retry settings take the defaults (3 attempts,
// 500ms initial backoff).
func New(e engine.Engine, cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Client{engine: e, cfg: cfg, sleep: sleepCtx}
}

// Generate tries the primary model, then the fallback model. Overload
// failures are retried with exponential backoff on the same model; a quota
// failure moves straight to the next model since its quota is separate. Any
// other failure also moves on to the next model. The returned error wraps
// engine.ErrQuotaExceeded or engine.ErrOverloaded when the last failure
// was of that class.
func (c *Client) Generate(ctx context.Context, messages []engine.Message) (string, error) {
	var lastErr error
	for _, model := range c.models() {
		out, err := c.generateWithRetry(ctx, model, messages)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("generation failed", "model", model, "error", err)
		lastErr = err
	}
	return "", fmt.Errorf("generation failed on all models: %w", lastErr)
}

func (c *Client) models() []string {
	ms := []string{c.cfg.PrimaryModel}
	if c.cfg.FallbackModel != "" && c.cfg.FallbackModel != c.cfg.PrimaryModel {
		ms = append(ms, c.cfg.FallbackModel)
	}
	return ms
}

func (c *Client) generateWithRetry(ctx context.Context, model string, messages []engine.Message) (string, error) {
	var lastErr error
	for attempt := range c.cfg.MaxRetries {
		out, err := c.call(ctx, model, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !errors.Is(err, engine.ErrOverloaded) {
			return "", err
		}
		if attempt < c.cfg.MaxRetries-1 {
			backoff := time.Duration(float64(c.cfg.InitialBackoff) * math.Pow(2, float64(attempt)))
			if err := c.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("%s overloaded after %d attempts: %w", model, c.cfg.MaxRetries, lastErr)
}

func (c *Client) call(ctx context.Context, model string, messages []engine.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	out, err := c.engine.Chat(callCtx, model, messages)
	if err != nil {
		// A per-call timeout while the caller is still waiting is a
		// capacity problem, not a caller cancellation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %w", engine.ErrOverloaded, err)
		}
		return "", err
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
