// Package memory merges short-term session history and durable per-user facts
// into the side context of an answer.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/supportqa/internal/storage"
)

// FactStore is the durable fact storage the Manager needs. Implemented by
// storage.Store.
type FactStore interface {
	AppendFact(ctx context.Context, userID string, f storage.Fact) error
	GetFacts(ctx context.Context, userID string) ([]storage.Fact, error)
	ResetFacts(ctx context.Context, userID string) (int, error)
}

// ErrNoFactStore is returned by fact operations when no durable store is
// configured.
var ErrNoFactStore = errors.New("no durable fact store configured")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options tunes how much memory reaches the prompt.
type Options struct {
	HistoryTurns  int
	FactsInPrompt int
	Clock         Clock
}

// Manager reads and writes both memory classes. A nil SessionStore makes
// every session stateless; a nil FactStore disables facts.
type Manager struct {
	facts    FactStore
	sessions SessionStore
	clock    Clock

	historyTurns  int
	factsInPrompt int
}

// NewManager creates a Manager. Zero options default to 6 history turns and
// 5 facts.
func NewManager(facts FactStore, sessions SessionStore, opts Options) *Manager {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	if opts.FactsInPrompt <= 0 {
		opts.FactsInPrompt = 5
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Manager{
		facts:         facts,
		sessions:      sessions,
		clock:         opts.Clock,
		historyTurns:  opts.HistoryTurns,
		factsInPrompt: opts.FactsInPrompt,
	}
}

// Stateless reports whether session history is disabled.
func (m *Manager) Stateless() bool { return m.sessions == nil }

// Recent returns the most recent history turns for the session, oldest
// first. Store failures are logged and treated as an empty history so a
// broken session store never fails a request.
func (m *Manager) Recent(ctx context.Context, sessionKey string) []Turn {
	return m.RecentN(ctx, sessionKey, m.historyTurns)
}

// RecentN is Recent with an explicit turn count.
func (m *Manager) RecentN(ctx context.Context, sessionKey string, k int) []Turn {
	if m.sessions == nil {
		return nil
	}
	turns, err := m.sessions.Recent(ctx, sessionKey, k)
	if err != nil {
		slog.Warn("reading session history failed", "session", sessionKey, "error", err)
		return nil
	}
	return turns
}

// RecordExchange appends the user message and the final reply as two turns.
func (m *Manager) RecordExchange(ctx context.Context, sessionKey, userText, reply string) error {
	if m.sessions == nil {
		return nil
	}
	now := m.clock.Now().UTC()
	err := m.sessions.Append(ctx, sessionKey,
		Turn{Timestamp: now, Role: RoleUser, Text: userText},
		Turn{Timestamp: now, Role: RoleAssistant, Text: reply},
	)
	if err != nil {
		return fmt.Errorf("recording exchange: %w", err)
	}
	return nil
}

// Remember appends a fact for userID. Earlier facts under the same key are
// kept.
func (m *Manager) Remember(ctx context.Context, userID, key, value, source string) (storage.Fact, error) {
	if m.facts == nil {
		return storage.Fact{}, ErrNoFactStore
	}
	f := storage.Fact{
		ID:      uuid.New().String(),
		Key:     key,
		Value:   value,
		Source:  source,
		AddedAt: m.clock.Now().UTC(),
	}
	if err := m.facts.AppendFact(ctx, userID, f); err != nil {
		return storage.Fact{}, fmt.Errorf("remembering %q: %w", key, err)
	}
	return f, nil
}

// Facts returns every fact for userID, oldest first.
func (m *Manager) Facts(ctx context.Context, userID string) ([]storage.Fact, error) {
	if m.facts == nil {
		return nil, nil
	}
	facts, err := m.facts.GetFacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	return facts, nil
}

// Reset removes every fact for userID and returns how many were removed.
func (m *Manager) Reset(ctx context.Context, userID string) (int, error) {
	if m.facts == nil {
		return 0, ErrNoFactStore
	}
	n, err := m.facts.ResetFacts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("resetting facts: %w", err)
	}
	return n, nil
}

// PromptFacts returns the most recent facts formatted for the prompt, one
// "key: value" line each, oldest first. Failures are logged and yield "".
func (m *Manager) PromptFacts(ctx context.Context, userID string) string {
	facts, err := m.Facts(ctx, userID)
	if err != nil {
		slog.Warn("loading facts for prompt failed", "error", err)
		return ""
	}
	return FormatFacts(facts, m.factsInPrompt)
}

// FormatFacts renders the last n facts as short lines. When a key repeats,
// both lines are kept and the later one reads last.
func FormatFacts(facts []storage.Fact, n int) string {
	if n > 0 && len(facts) > n {
		facts = facts[len(facts)-n:]
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, fmt.Sprintf("- %s: %s", strings.ReplaceAll(f.Key, "_", " "), f.Value))
	}
	return strings.Join(lines, "\n")
}
