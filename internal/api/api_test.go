package api

import (
	"context"
	"errors"
	"sync"

	"github.com/kalambet/supportqa/internal/contact"
	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/intent"
	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/pipeline"
	"github.com/kalambet/supportqa/internal/retrieval"
	"github.com/kalambet/supportqa/internal/textnorm"
)

// --- mocks ---

type mockResponder struct {
	mu       sync.Mutex
	requests []pipeline.Request
	resp     pipeline.Response
	err      error
	panicMsg string

	search    retrieval.Result
	searchErr error
	history   []memory.Turn
	info      contact.Info
	size      int
}

func (m *mockResponder) Respond(_ context.Context, req pipeline.Request) (pipeline.Response, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.err != nil {
		return pipeline.Response{}, m.err
	}
	return m.resp, nil
}

func (m *mockResponder) Search(_ context.Context, _ string) (retrieval.Result, error) {
	return m.search, m.searchErr
}

func (m *mockResponder) History(_ context.Context, _ string, limit int) []memory.Turn {
	if limit < len(m.history) {
		return m.history[len(m.history)-limit:]
	}
	return m.history
}

func (m *mockResponder) Contact() contact.Info { return m.info }
func (m *mockResponder) CorpusSize() int       { return m.size }
func (m *mockResponder) IndexSize() int        { return m.size * 2 }

func (m *mockResponder) lastRequest() pipeline.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return pipeline.Request{}
	}
	return m.requests[len(m.requests)-1]
}

var errBoom = errors.New("boom")

func newMockResponder() *mockResponder {
	return &mockResponder{
		resp: pipeline.Response{
			Reply:   "The DY-CS3000 has 60 stitches.",
			Intent:  intent.KindKnowledge,
			Mode:    textnorm.ModeEnglish,
			Status:  pipeline.StatusAnswered,
			Sources: []string{"e0"},
		},
		search: retrieval.Result{
			Passable: true,
			Candidates: []retrieval.Candidate{
				{Entry: corpus.Entry{ID: "e0", RawText: "DY-CS3000 sewing machine", Metadata: map[string]string{"source": "manual.pdf"}}, Similarity: 0.8, KeywordBonus: 0.12, Composite: 0.92, Matches: 1},
				{Entry: corpus.Entry{ID: "e1", RawText: "Embroidery hoops"}, Similarity: 0.4, Composite: 0.4},
			},
		},
		info: contact.Info{Email: "help@example.com", Phone: "1800-000-111", Address: "12 Mill Road"},
		size: 3,
	}
}
