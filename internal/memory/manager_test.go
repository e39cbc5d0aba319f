package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/supportqa/internal/storage"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	mu      sync.Mutex
	turns   map[string][]Turn
	failing bool
}

func newFakeSessions() *fakeSessions { return &fakeSessions{turns: make(map[string][]Turn)} }

func (f *fakeSessions) Append(_ context.Context, key string, turns ...Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("store down")
	}
	f.turns[key] = append(f.turns[key], turns...)
	return nil
}

func (f *fakeSessions) Recent(_ context.Context, key string, k int) ([]Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("store down")
	}
	ts := f.turns[key]
	if len(ts) > k {
		ts = ts[len(ts)-k:]
	}
	return append([]Turn(nil), ts...), nil
}

func openFacts(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveSessionKey(t *testing.T) {
	if got := ResolveSessionKey(" hdr ", "cookie", "1.2.3.4:5", "ua"); got != "hdr" {
		t.Errorf("header: got %q", got)
	}
	if got := ResolveSessionKey("", "cookie", "1.2.3.4:5", "ua"); got != "cookie" {
		t.Errorf("cookie: got %q", got)
	}

	a := ResolveSessionKey("", "", "1.2.3.4:5000", "Mozilla")
	b := ResolveSessionKey("", "", "1.2.3.4:6000", "Mozilla")
	c := ResolveSessionKey("", "", "1.2.3.4:5000", "curl")
	if !strings.HasPrefix(a, "anon-") {
		t.Errorf("fallback key = %q, want anon- prefix", a)
	}
	if a != b {
		t.Error("fallback key should ignore the client port")
	}
	if a == c {
		t.Error("fallback key should depend on the user agent")
	}
}

func TestRecordExchange_AppendsTwoTurns(t *testing.T) {
	sessions := newFakeSessions()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := NewManager(nil, sessions, Options{Clock: clock})

	if err := m.RecordExchange(context.Background(), "s1", "hi", "How can I help?"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	turns := m.Recent(context.Background(), "s1")
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "hi" {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Text != "How can I help?" {
		t.Errorf("turn 1 = %+v", turns[1])
	}
	if !turns[0].Timestamp.Equal(clock.now) {
		t.Errorf("timestamp = %v, want %v", turns[0].Timestamp, clock.now)
	}
}

func TestRecent_BoundedToHistoryTurns(t *testing.T) {
	sessions := newFakeSessions()
	m := NewManager(nil, sessions, Options{HistoryTurns: 4})
	ctx := context.Background()
	for i := range 5 {
		m.RecordExchange(ctx, "s1", "q", string(rune('a'+i)))
	}
	turns := m.Recent(ctx, "s1")
	if len(turns) != 4 {
		t.Fatalf("got %d turns, want 4", len(turns))
	}
	if turns[3].Text != "e" {
		t.Errorf("last turn = %q, want e", turns[3].Text)
	}
}

func TestStatelessWithoutStore(t *testing.T) {
	m := NewManager(nil, nil, Options{})
	if !m.Stateless() {
		t.Error("Stateless() = false")
	}
	if err := m.RecordExchange(context.Background(), "s1", "a", "b"); err != nil {
		t.Errorf("RecordExchange: %v", err)
	}
	if turns := m.Recent(context.Background(), "s1"); turns != nil {
		t.Errorf("Recent = %v, want nil", turns)
	}
}

func TestRecent_StoreFailureIsEmpty(t *testing.T) {
	sessions := newFakeSessions()
	sessions.failing = true
	m := NewManager(nil, sessions, Options{})
	if turns := m.Recent(context.Background(), "s1"); turns != nil {
		t.Errorf("Recent = %v, want nil", turns)
	}
	if err := m.RecordExchange(context.Background(), "s1", "a", "b"); err == nil {
		t.Error("RecordExchange should report store failure")
	}
}

func TestRememberAndFacts(t *testing.T) {
	m := NewManager(openFacts(t), nil, Options{})
	ctx := context.Background()

	f, err := m.Remember(ctx, "u1", "city", "Chennai", "command")
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if f.ID == "" || f.AddedAt.IsZero() {
		t.Errorf("fact missing ID or timestamp: %+v", f)
	}
	m.Remember(ctx, "u1", "city", "Pune", "command")

	facts, err := m.Facts(ctx, "u1")
	if err != nil {
		t.Fatalf("Facts: %v", err)
	}
	if len(facts) != 2 || facts[0].Value != "Chennai" || facts[1].Value != "Pune" {
		t.Errorf("facts = %+v, want both values in order", facts)
	}

	n, err := m.Reset(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("Reset = %d, %v", n, err)
	}
	if facts, _ := m.Facts(ctx, "u1"); len(facts) != 0 {
		t.Errorf("facts after reset = %+v", facts)
	}
}

func TestRemember_NoStore(t *testing.T) {
	m := NewManager(nil, nil, Options{})
	if _, err := m.Remember(context.Background(), "u1", "k", "v", "command"); !errors.Is(err, ErrNoFactStore) {
		t.Errorf("error = %v, want ErrNoFactStore", err)
	}
}

func TestFormatFacts_MostRecentN(t *testing.T) {
	facts := []storage.Fact{
		{Key: "name", Value: "Asha"},
		{Key: "city", Value: "Chennai"},
		{Key: "machine_model", Value: "DY-CS3000"},
		{Key: "city", Value: "Pune"},
	}
	got := FormatFacts(facts, 3)
	want := "- city: Chennai\n- machine model: DY-CS3000\n- city: Pune"
	if got != want {
		t.Errorf("FormatFacts =\n%s\nwant\n%s", got, want)
	}
	if FormatFacts(nil, 5) != "" {
		t.Error("empty facts should format to empty string")
	}
}

func TestPromptFacts(t *testing.T) {
	m := NewManager(openFacts(t), nil, Options{FactsInPrompt: 1})
	ctx := context.Background()
	m.Remember(ctx, "u1", "city", "Chennai", "command")
	m.Remember(ctx, "u1", "city", "Pune", "command")

	if got := m.PromptFacts(ctx, "u1"); got != "- city: Pune" {
		t.Errorf("PromptFacts = %q", got)
	}
}
