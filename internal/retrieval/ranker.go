// Package retrieval ranks knowledge entries against a query by combining
// embedding similarity with exact model-token matches, and decides whether
// the best candidates are strong enough to ground an answer.
package retrieval

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/entity"
)

// maxBonusMatches caps how many alias occurrences earn the keyword bonus.
const maxBonusMatches = 3

// partialCredit is the lexical score for a keyword found only inside a
// longer word.
const partialCredit = 0.25

// ErrEmptyQuery is returned by Rank when no query vector is supplied.
var ErrEmptyQuery = errors.New("empty query vector")

// Config holds the ranking knobs.
type Config struct {
	TopK        int
	HybridBonus float64
	MinOKScore  float64
	Margin      float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TopK:        5,
		HybridBonus: 0.12,
		MinOKScore:  0.55,
		Margin:      0.03,
	}
}

// Candidate is a knowledge entry with its scores for one query.
type Candidate struct {
	Entry        corpus.Entry
	Similarity   float64
	KeywordBonus float64
	Composite    float64
	Matches      int
}

// Result is the outcome of a ranking pass.
type Result struct {
	Candidates []Candidate
	Passable   bool
	// EntityLocked is set when a sticky entity occurs literally in one of
	// the candidates, which makes the result passable regardless of score.
	EntityLocked bool
	// Lexical is set when the candidates came from the keyword fallback.
	Lexical bool
}

// Top returns the best candidate, or false when there is none.
func (r Result) Top() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Ranker scores corpus entries. It is safe for concurrent use; the only
// shared state is the cache of compiled keyword lists.
type Ranker struct {
	cfg      Config
	keywords sync.Map // joined keyword list -> *keywordSet
}

// NewRanker returns a Ranker using cfg. A non-positive TopK falls back to the
// default.
func NewRanker(cfg Config) *Ranker {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Ranker{cfg: cfg}
}

// Config returns the ranker's settings.
func (r *Ranker) Config() Config { return r.cfg }

// Rank scores every entry as cosine(query, entry) plus a bonus of
// HybridBonus per sticky-entity alias occurrence in the entry text (capped),
// sorts by composite score keeping corpus order on ties, and returns the top
// K with the passability decision.
func (r *Ranker) Rank(entries []corpus.Entry, query []float32, sticky []entity.Entity) (Result, error) {
	if len(query) == 0 {
		return Result{}, ErrEmptyQuery
	}

	cands := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		sim := Cosine(query, e.Embedding)
		matches := countMatches(e.SearchText(), sticky)
		bonus := r.cfg.HybridBonus * float64(min(matches, maxBonusMatches))
		cands = append(cands, Candidate{
			Entry:        e,
			Similarity:   sim,
			KeywordBonus: bonus,
			Composite:    sim + bonus,
			Matches:      matches,
		})
	}
	sortCandidates(cands)
	if len(cands) > r.cfg.TopK {
		cands = cands[:r.cfg.TopK]
	}

	res := Result{Candidates: cands}
	for _, c := range cands {
		if c.Matches > 0 {
			res.EntityLocked = true
			break
		}
	}
	if top, ok := res.Top(); ok {
		res.Passable = res.EntityLocked || top.Composite >= r.cfg.MinOKScore-r.cfg.Margin
	}
	return res, nil
}

// RankLexical re-ranks the whole corpus against category keywords: each
// whole-word occurrence of a keyword scores 1, a keyword present only inside
// a longer word scores a small partial credit. Entries scoring zero are
// dropped, and any remaining candidate makes the result passable.
func (r *Ranker) RankLexical(entries []corpus.Entry, keywords []string) Result {
	ks := r.compiled(keywords)
	var cands []Candidate
	for _, e := range entries {
		text := e.SearchText()
		var score float64
		for i, p := range ks.patterns {
			if n := len(p.FindAllStringIndex(text, -1)); n > 0 {
				score += float64(n)
			} else if strings.Contains(text, ks.words[i]) {
				score += partialCredit
			}
		}
		if score > 0 {
			cands = append(cands, Candidate{Entry: e, Composite: score})
		}
	}
	sortCandidates(cands)
	if len(cands) > r.cfg.TopK {
		cands = cands[:r.cfg.TopK]
	}
	return Result{Candidates: cands, Passable: len(cands) > 0, Lexical: true}
}

// keywordSet is a category keyword list compiled for whole-word matching.
type keywordSet struct {
	words    []string
	patterns []*regexp.Regexp
}

func compileKeywords(keywords []string) *keywordSet {
	ks := &keywordSet{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		ks.words = append(ks.words, kw)
		ks.patterns = append(ks.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	return ks
}

// compiled returns the compiled form of keywords, compiling each distinct
// list once. Categories are a fixed table, so the cache stays small.
func (r *Ranker) compiled(keywords []string) *keywordSet {
	key := strings.Join(keywords, "\x00")
	if v, ok := r.keywords.Load(key); ok {
		return v.(*keywordSet)
	}
	v, _ := r.keywords.LoadOrStore(key, compileKeywords(keywords))
	return v.(*keywordSet)
}

// countMatches sums, over sticky entities, the highest occurrence count of
// any one of the entity's aliases in text. Taking the maximum keeps
// overlapping aliases ("cs3000" inside "dy-cs3000") from double counting.
func countMatches(text string, sticky []entity.Entity) int {
	total := 0
	for _, ent := range sticky {
		best := 0
		for _, alias := range ent.Aliases {
			if alias == "" {
				continue
			}
			if n := strings.Count(text, alias); n > best {
				best = n
			}
		}
		total += best
	}
	return total
}

func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Composite != cands[j].Composite {
			return cands[i].Composite > cands[j].Composite
		}
		return cands[i].Entry.Position < cands[j].Entry.Position
	})
}
