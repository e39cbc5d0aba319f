// Package entity mines product model identifiers from the knowledge base and
// finds them again in user messages.
package entity

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/textnorm"
)

// Entity is a sticky model token together with the aliases used to find it
// in free text.
type Entity struct {
	Token   string
	Aliases []string
}

// Index is the catalogue of model tokens observed in a corpus. It is
// immutable once built.
type Index struct {
	filter     Filter
	tokens     []string
	aliases    map[string][]string
	borderline []string
}

// Build scans every entry's text and optional model metadata and returns the
// resulting catalogue. It is a pure function of its inputs.
func Build(entries []corpus.Entry, filter Filter) *Index {
	aliasSets := make(map[string]map[string]struct{})
	borderline := make(map[string]struct{})

	add := func(token, surface string) {
		set, ok := aliasSets[token]
		if !ok {
			set = make(map[string]struct{})
			for _, v := range Variants(token) {
				set[v] = struct{}{}
			}
			aliasSets[token] = set
		}
		if surface != "" {
			set[surface] = struct{}{}
		}
	}

	for _, e := range entries {
		for _, raw := range strings.Split(e.Metadata[corpus.MetadataModelKey], ",") {
			if tok := Normalize(raw); len(tok) >= 2 {
				add(tok, "")
			}
		}
		for _, c := range filter.candidates(e.Text()) {
			add(c[1], c[0])
			if _, weak := filter.Accept(c[1]); weak {
				borderline[c[1]] = struct{}{}
			}
		}
	}

	ix := &Index{
		filter:  filter,
		aliases: make(map[string][]string, len(aliasSets)),
	}
	for tok, set := range aliasSets {
		ix.tokens = append(ix.tokens, tok)
		ix.aliases[tok] = sortedKeys(set)
	}
	sort.Strings(ix.tokens)
	ix.borderline = sortedKeys(borderline)
	return ix
}

// Tokens returns the canonical tokens in sorted order.
func (ix *Index) Tokens() []string { return ix.tokens }

// Aliases returns the alias set for a canonical token, or nil if unknown.
func (ix *Index) Aliases(token string) []string { return ix.aliases[token] }

// Borderline returns tokens that passed only the weakest acceptance rule.
func (ix *Index) Borderline() []string { return ix.borderline }

// Len returns the number of canonical tokens.
func (ix *Index) Len() int { return len(ix.tokens) }

// Extract finds the sticky entities in the current message plus recent
// history. A known token is found when any of its aliases occurs as a
// case-insensitive substring; model-like tokens never seen in the corpus are
// added from a direct filter pass. The result is sorted by token.
func (ix *Index) Extract(message string, history []string) []Entity {
	parts := append(append([]string(nil), history...), message)
	text := textnorm.Fold(strings.Join(parts, " "))
	if text == "" {
		return nil
	}

	found := make(map[string][]string)
	for _, tok := range ix.tokens {
		for _, alias := range ix.aliases[tok] {
			if strings.Contains(text, alias) {
				found[tok] = ix.aliases[tok]
				break
			}
		}
	}
	for _, c := range ix.filter.candidates(text) {
		if _, ok := found[c[1]]; ok {
			continue
		}
		if known, ok := ix.aliases[c[1]]; ok {
			found[c[1]] = known
			continue
		}
		found[c[1]] = Variants(c[1])
	}

	out := make([]Entity, 0, len(found))
	for tok, aliases := range found {
		out = append(out, Entity{Token: tok, Aliases: aliases})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Indexer builds an Index from a corpus exactly once, on first use. The corpus
// never changes for the life of the process, so the index is never rebuilt.
type Indexer struct {
	corpus *corpus.Corpus
	filter Filter

	once sync.Once
	ix   *Index
}

// NewIndexer returns an Indexer over c. Nothing is built until Index is called.
func NewIndexer(c *corpus.Corpus, filter Filter) *Indexer {
	return &Indexer{corpus: c, filter: filter}
}

// Index returns the catalogue, building it on the first call. Concurrent
// first calls block until the single build finishes and share its result.
func (i *Indexer) Index() *Index {
	i.once.Do(func() {
		i.ix = Build(i.corpus.Entries(), i.filter)
		for _, tok := range i.ix.borderline {
			slog.Debug("model token near acceptance boundary", "token", tok)
		}
		slog.Info("entity index built",
			"entries", i.corpus.Len(),
			"tokens", i.ix.Len(),
			"borderline", len(i.ix.borderline),
		)
	})
	return i.ix
}
