package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/supportqa/internal/composer"
	"github.com/kalambet/supportqa/internal/config"
	"github.com/kalambet/supportqa/internal/contact"
	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/engine"
	"github.com/kalambet/supportqa/internal/entity"
	"github.com/kalambet/supportqa/internal/generation"
	"github.com/kalambet/supportqa/internal/intent"
	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/pipeline"
	"github.com/kalambet/supportqa/internal/retrieval"
	"github.com/kalambet/supportqa/internal/storage"
)

// storeCorpusVersion labels a corpus read from the knowledge_entries table.
const storeCorpusVersion = "store"

// app holds the long-lived resources shared by the server and the local
// commands.
type app struct {
	cfg    config.Config
	store  *storage.Store
	engine engine.Engine
	redis  *redis.Client
}

// openApp opens storage and, when withEngine is set, connects to the
// inference backend.
func openApp(ctx context.Context, cfg config.Config, withEngine bool) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, store: store}

	if withEngine {
		eng, err := engine.Detect(ctx, engine.DetectConfig{
			Provider:      cfg.Engine.Provider,
			GenAIAPIKey:   cfg.GenAI.APIKey,
			OllamaBaseURL: cfg.Ollama.BaseURL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("detecting inference engine: %w", err)
		}
		models := []string{cfg.Engine.EmbedModel, cfg.Engine.PrimaryModel, cfg.Engine.FallbackModel}
		if err := engine.EnsureReady(ctx, eng, models, os.Stderr); err != nil {
			a.Close()
			return nil, err
		}
		a.engine = eng
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

// loadCorpus reads the configured corpus file, or the SQLite store when no
// file is set. A configured file that does not exist is a configuration
// error. Any other read failure is logged and yields an empty corpus, so the
// service still answers with kb_unavailable.
func (a *app) loadCorpus(ctx context.Context) (*corpus.Corpus, error) {
	var (
		c   *corpus.Corpus
		err error
	)
	if a.cfg.Corpus.Path != "" {
		c, err = corpus.LoadFile(a.cfg.Corpus.Path)
	} else {
		c, err = corpus.LoadStore(ctx, storeCorpusVersion, corpus.NewSQLiteStore(a.store.DB()))
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("corpus file %s: %w", a.cfg.Corpus.Path, err)
	case err != nil:
		slog.Error("loading corpus", "error", err)
		return corpus.New("", nil), nil
	}
	if err := c.Check(); err != nil {
		slog.Warn("knowledge base is empty", "version", c.Version())
	} else {
		slog.Info("corpus loaded", "version", c.Version(), "entries", c.Len())
	}
	return c, nil
}

// sessions connects to Redis when an address is configured. Without one,
// or when Redis is unreachable, sessions are stateless.
func (a *app) sessions(ctx context.Context) memory.SessionStore {
	if a.cfg.Redis.Addr == "" {
		slog.Info("no redis address configured, sessions are stateless")
		return nil
	}
	rdb, err := memory.Dial(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		slog.Warn("redis unavailable, sessions are stateless", "addr", a.cfg.Redis.Addr, "error", err)
		return nil
	}
	a.redis = rdb
	return memory.NewRedisSessionStore(rdb, a.cfg.Session.TTL)
}

func (a *app) embedder() *retrieval.Embedder {
	return retrieval.NewEmbedder(a.engine, a.cfg.Engine.EmbedModel)
}

// responder wires the full answering pipeline over c.
func (a *app) responder(ctx context.Context, c *corpus.Corpus) *pipeline.Responder {
	cfg := a.cfg
	deps := pipeline.Deps{
		Corpus:     c,
		Entities:   entity.NewIndexer(c, entity.NewFilter(cfg.Retrieval.Prefixes())),
		Contacts:   contact.NewCache(c, contact.Info{Email: cfg.Contact.Email, Phone: cfg.Contact.Phone, Address: cfg.Contact.Address}),
		Classifier: intent.New(intent.DefaultCategories()),
		Ranker: retrieval.NewRanker(retrieval.Config{
			TopK:        cfg.Retrieval.TopK,
			HybridBonus: cfg.Retrieval.HybridBonus,
			MinOKScore:  cfg.Retrieval.MinOKScore,
			Margin:      cfg.Retrieval.Margin,
		}),
		Composer: composer.New(0),
		Memory: memory.NewManager(a.store, a.sessions(ctx), memory.Options{
			HistoryTurns:  cfg.Memory.HistoryTurns,
			FactsInPrompt: cfg.Memory.FactsInPrompt,
		}),
		Interactions: a.store,
	}
	if a.engine != nil {
		deps.Embedder = a.embedder()
		deps.Generator = generation.New(a.engine, generation.Config{
			PrimaryModel:   cfg.Engine.PrimaryModel,
			FallbackModel:  cfg.Engine.FallbackModel,
			MaxRetries:     cfg.Generation.MaxRetries,
			InitialBackoff: cfg.Generation.InitialBackoff,
		})
	}
	return pipeline.New(deps)
}
