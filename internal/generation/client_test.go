package generation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/supportqa/internal/engine"
)

// scriptedEngine returns queued results per model, then repeats the last one.
type scriptedEngine struct {
	mu      sync.Mutex
	results map[string][]error
	calls   []string
}

func (s *scriptedEngine) Chat(_ context.Context, model string, _ []engine.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, model)
	q := s.results[model]
	if len(q) == 0 {
		return "answer from " + model, nil
	}
	err := q[0]
	if len(q) > 1 {
		s.results[model] = q[1:]
	}
	if err == nil {
		return "answer from " + model, nil
	}
	return "", err
}
func (s *scriptedEngine) Embed(_ context.Context, _ string, _ string) ([]float32, error) {
	return nil, nil
}
func (s *scriptedEngine) IsRunning(_ context.Context) bool { return true }

func overloaded() error { return fmt.Errorf("%w: 503", engine.ErrOverloaded) }
func quota() error      { return fmt.Errorf("%w: 429", engine.ErrQuotaExceeded) }

func newTestClient(e engine.Engine, backoffs *[]time.Duration) *Client {
	c := New(e, Config{PrimaryModel: "primary", FallbackModel: "fallback"})
	c.sleep = func(_ context.Context, d time.Duration) error {
		*backoffs = append(*backoffs, d)
		return nil
	}
	return c
}

func msgs() []engine.Message {
	return []engine.Message{{Role: engine.RoleUser, Content: "q"}}
}

func TestGenerate_PrimarySucceeds(t *testing.T) {
	e := &scriptedEngine{results: map[string][]error{}}
	var backoffs []time.Duration
	out, err := newTestClient(e, &backoffs).Generate(context.Background(), msgs())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "answer from primary" {
		t.Errorf("out = %q", out)
	}
	if len(backoffs) != 0 {
		t.Errorf("unexpected backoffs %v", backoffs)
	}
}

func TestGenerate_RetriesOverloadWithBackoff(t *testing.T) {
	e := &scriptedEngine{results: map[string][]error{
		"primary": {overloaded(), overloaded(), nil},
	}}
	var backoffs []time.Duration
	out, err := newTestClient(e, &backoffs).Generate(context.Background(), msgs())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "answer from primary" {
		t.Errorf("out = %q", out)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if !reflect.DeepEqual(backoffs, want) {
		t.Errorf("backoffs = %v, want %v", backoffs, want)
	}
}

func TestGenerate_FallsBackAfterExhaustingRetries(t *testing.T) {
	e := &scriptedEngine{results: map[string][]error{
		"primary": {overloaded()},
	}}
	var backoffs []time.Duration
	out, err := newTestClient(e, &backoffs).Generate(context.Background(), msgs())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "answer from fallback" {
		t.Errorf("out = %q", out)
	}
	want := []string{"primary", "primary", "primary", "fallback"}
	if !reflect.DeepEqual(e.calls, want) {
		t.Errorf("calls = %v, want %v", e.calls, want)
	}
}

func TestGenerate_QuotaSkipsToFallback(t *testing.T) {
	e := &scriptedEngine{results: map[string][]error{
		"primary": {quota()},
	}}
	var backoffs []time.Duration
	out, err := newTestClient(e, &backoffs).Generate(context.Background(), msgs())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "answer from fallback" {
		t.Errorf("out = %q", out)
	}
	if !reflect.DeepEqual(e.calls, []string{"primary", "fallback"}) {
		t.Errorf("calls = %v", e.calls)
	}
	if len(backoffs) != 0 {
		t.Errorf("quota should not back off, got %v", backoffs)
	}
}

func TestGenerate_AllFailKeepsClass(t *testing.T) {
	tests := []struct {
		name string
		err  func() error
		want error
	}{
		{"quota", quota, engine.ErrQuotaExceeded},
		{"overloaded", overloaded, engine.ErrOverloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &scriptedEngine{results: map[string][]error{
				"primary":  {tt.err()},
				"fallback": {tt.err()},
			}}
			var backoffs []time.Duration
			_, err := newTestClient(e, &backoffs).Generate(context.Background(), msgs())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerate_SameFallbackModelNotRetriedTwice(t *testing.T) {
	e := &scriptedEngine{results: map[string][]error{"m": {errors.New("bad request")}}}
	c := New(e, Config{PrimaryModel: "m", FallbackModel: "m"})
	if _, err := c.Generate(context.Background(), msgs()); err == nil {
		t.Fatal("expected error")
	}
	if len(e.calls) != 1 {
		t.Errorf("calls = %v, want a single call", e.calls)
	}
}

func TestGenerate_ContextCancelledDuringBackoff(t *testing.T) {
	e := &scriptedEngine{results: map[string][]error{"primary": {overloaded()}}}
	c := New(e, Config{PrimaryModel: "primary", FallbackModel: "fallback", InitialBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Generate(ctx, msgs())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(e.calls) != 1 {
		t.Errorf("calls = %v, want a single call before cancellation", e.calls)
	}
}
