// Package ingest builds the knowledge base from a directory of source
// documents: extract text, chunk, embed and store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kalambet/supportqa/internal/corpus"
)

// MetadataSourceKey records the source file of an entry, relative to the
// input directory.
const MetadataSourceKey = "source"

// BatchEmbedder generates embeddings for many texts. Implemented by
// retrieval.Embedder.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EntryStore persists knowledge entries. Implemented by corpus.SQLiteStore.
type EntryStore interface {
	Insert(ctx context.Context, entries []corpus.Entry) error
	Truncate(ctx context.Context) error
}

// Options tunes a build.
type Options struct {
	ChunkSize int
	// Replace clears the store before inserting.
	Replace bool
}

// Report summarises a build.
type Report struct {
	Files   int
	Skipped int
	Failed  int
	Entries []corpus.Entry
}

// Builder turns source documents into stored, embedded entries.
type Builder struct {
	embedder BatchEmbedder
	store    EntryStore
	opts     Options
	logger   *slog.Logger
}

// NewBuilder creates a Builder. A nil store makes Build return the entries
// without persisting them.
func NewBuilder(embedder BatchEmbedder, store EntryStore, opts Options) *Builder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Builder{
		embedder: embedder,
		store:    store,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// Build walks dir, extracts and chunks every supported file, embeds all
// chunks and stores them. A file that cannot be read is logged and counted
// as failed; embedding or storage failures abort the build before anything
// is written.
func (b *Builder) Build(ctx context.Context, dir string) (Report, error) {
	var rep Report
	var entries []corpus.Entry

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(path) {
			rep.Skipped++
			return nil
		}

		text, err := Extract(path)
		if err != nil {
			b.logger.Warn("extracting source failed", "path", path, "error", err)
			rep.Failed++
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		chunks := Chunk(text, b.opts.ChunkSize)
		for _, c := range chunks {
			entries = append(entries, corpus.Entry{
				ID:       uuid.New().String(),
				RawText:  c,
				Metadata: map[string]string{MetadataSourceKey: filepath.ToSlash(rel)},
			})
		}
		rep.Files++
		b.logger.Debug("source chunked", "path", rel, "chunks", len(chunks))
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("walking %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return rep, errors.New("no text found in " + dir)
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.RawText
	}
	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return rep, fmt.Errorf("embedding chunks: %w", err)
	}
	for i := range entries {
		entries[i].Embedding = vecs[i]
		entries[i].Position = i
	}

	if b.store != nil {
		if b.opts.Replace {
			if err := b.store.Truncate(ctx); err != nil {
				return rep, fmt.Errorf("clearing knowledge entries: %w", err)
			}
		}
		if err := b.store.Insert(ctx, entries); err != nil {
			return rep, fmt.Errorf("storing knowledge entries: %w", err)
		}
	}

	rep.Entries = entries
	b.logger.Info("knowledge base built",
		"files", rep.Files,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"entries", len(entries),
	)
	return rep, nil
}
