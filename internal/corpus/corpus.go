// Package corpus holds the knowledge-base snapshot that grounds every answer.
package corpus

import (
	"errors"
	"strconv"
	"strings"

	"github.com/kalambet/supportqa/internal/textnorm"
)

// ErrUnavailable is returned when no corpus is loaded or the loaded corpus has
// no usable entries. It is distinct from "nothing relevant matched".
var ErrUnavailable = errors.New("knowledge base unavailable")

// MetadataModelKey is the optional metadata field carrying a curated product
// model identifier for an entry.
const MetadataModelKey = "model"

// Entry is one immutable knowledge-base chunk.
type Entry struct {
	ID          string            `json:"id"`
	RawText     string            `json:"text"`
	CleanedText string            `json:"cleaned_text,omitempty"`
	Embedding   []float32         `json:"embedding"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Position is the entry's index in corpus order. Ranking uses it to break ties.
	Position int `json:"-"`

	search string
}

// Text returns the cleaned text when present, otherwise the raw text.
func (e Entry) Text() string {
	if e.CleanedText != "" {
		return e.CleanedText
	}
	return e.RawText
}

// SearchText returns the folded (lower-cased, whitespace-collapsed) text used
// for literal alias and keyword matching.
func (e Entry) SearchText() string {
	if e.search == "" {
		return textnorm.Fold(e.Text())
	}
	return e.search
}

// Corpus is a read-only snapshot of the knowledge base. It is safe for
// concurrent use because nothing mutates it after New returns.
type Corpus struct {
	version string
	entries []Entry
}

// New builds a Corpus from entries, dropping any entry with empty raw text and
// assigning positional IDs to entries that lack one.
func New(version string, entries []Entry) *Corpus {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.RawText) == "" {
			continue
		}
		e.Position = len(kept)
		if e.ID == "" {
			e.ID = "entry-" + strconv.Itoa(e.Position)
		}
		e.search = textnorm.Fold(e.Text())
		kept = append(kept, e)
	}
	return &Corpus{version: version, entries: kept}
}

// Entries returns the corpus entries in corpus order. Callers must not modify
// the returned slice.
func (c *Corpus) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Len returns the number of usable entries. A nil Corpus has length 0.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Version returns the corpus version label, if the source carried one.
func (c *Corpus) Version() string {
	if c == nil {
		return ""
	}
	return c.version
}

// Check returns ErrUnavailable when the corpus is nil or empty.
func (c *Corpus) Check() error {
	if c.Len() == 0 {
		return ErrUnavailable
	}
	return nil
}
