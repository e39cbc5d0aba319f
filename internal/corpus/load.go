package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxLineSize bounds a single JSONL record; embeddings make lines long.
const maxLineSize = 16 << 20

// fileEnvelope is the object form of a JSON corpus file.
type fileEnvelope struct {
	Version string  `json:"version"`
	Entries []Entry `json:"entries"`
}

// LoadFile reads a corpus from a .json or .jsonl file. A JSON file may hold
// either a bare array of entries or an object with "version" and "entries".
// A missing file is returned as an error wrapping os.ErrNotExist.
func LoadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file: %w", err)
	}

	version := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		entries, err := decodeJSONL(data)
		if err != nil {
			return nil, fmt.Errorf("decoding corpus %s: %w", path, err)
		}
		return New(version, entries), nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decoding corpus %s: %w", path, err)
		}
		return New(version, entries), nil
	}

	var env fileEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decoding corpus %s: %w", path, err)
	}
	if env.Version != "" {
		version = env.Version
	}
	return New(version, env.Entries), nil
}

func decodeJSONL(data []byte) ([]Entry, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []Entry
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// WriteFile writes entries as a JSON corpus file with the given version.
func WriteFile(path, version string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating corpus dir: %w", err)
	}
	data, err := json.Marshal(fileEnvelope{Version: version, Entries: entries})
	if err != nil {
		return fmt.Errorf("encoding corpus: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Exporter is implemented by stores that can return every entry in corpus order.
type Exporter interface {
	ExportAll(ctx context.Context) ([]Entry, error)
}

// LoadStore reads the whole corpus from a store such as SQLiteStore.
func LoadStore(ctx context.Context, version string, store Exporter) (*Corpus, error) {
	entries, err := store.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting corpus: %w", err)
	}
	return New(version, entries), nil
}
