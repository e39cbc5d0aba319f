// Package pipeline wires the intent cascade, hybrid retrieval, prompt
// composition, generation and the safety guard into a single Respond call.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/supportqa/internal/composer"
	"github.com/kalambet/supportqa/internal/contact"
	"github.com/kalambet/supportqa/internal/corpus"
	"github.com/kalambet/supportqa/internal/engine"
	"github.com/kalambet/supportqa/internal/entity"
	"github.com/kalambet/supportqa/internal/intent"
	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/retrieval"
	"github.com/kalambet/supportqa/internal/storage"
	"github.com/kalambet/supportqa/internal/textnorm"
)

// Status values carried by every Response.
const (
	StatusAnswered             = "answered"
	StatusSmallTalk            = "smalltalk"
	StatusCommand              = "command"
	StatusContact              = "contact"
	StatusNoMatch              = "no_match"
	StatusKBUnavailable        = "kb_unavailable"
	StatusRetrievalUnavailable = "retrieval_unavailable"
	StatusGenerationFailed     = "generation_failed"
	StatusGuarded              = "guarded"
)

// ErrEmptyMessage is returned for a blank message on a non-first turn.
var ErrEmptyMessage = errors.New("message is required")

// entityHistoryTurns is how many earlier user turns feed sticky-entity
// extraction.
const entityHistoryTurns = 2

// historyCommandTurns bounds the "show my history" reply.
const historyCommandTurns = 20

// Embedder turns a query into a vector. Implemented by retrieval.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces answer text. Implemented by generation.Client.
type Generator interface {
	Generate(ctx context.Context, messages []engine.Message) (string, error)
}

// InteractionRecorder keeps finalized exchanges. Implemented by storage.Store.
type InteractionRecorder interface {
	SaveInteraction(ctx context.Context, i storage.Interaction) error
}

// Request is one incoming chat message.
type Request struct {
	Message    string
	SessionKey string
	UserID     string
	FirstTurn  bool
}

// Response is the finalized reply plus diagnostics.
type Response struct {
	Reply    string        `json:"reply"`
	Intent   intent.Kind   `json:"intent"`
	Mode     textnorm.Mode `json:"mode"`
	Status   string        `json:"status"`
	Sources  []string      `json:"sources"`
	Entities []string      `json:"entities,omitempty"`
}

// Deps are the collaborators a Responder needs. Interactions may be nil.
type Deps struct {
	Corpus       *corpus.Corpus
	Entities     *entity.Indexer
	Contacts     *contact.Cache
	Classifier   *intent.Classifier
	Embedder     Embedder
	Ranker       *retrieval.Ranker
	Composer     *composer.Composer
	Generator    Generator
	Memory       *memory.Manager
	Interactions InteractionRecorder
}

// Responder answers chat messages. It holds no per-request state and is safe
// for concurrent use.
type Responder struct {
	corpus       *corpus.Corpus
	entities     *entity.Indexer
	contacts     *contact.Cache
	classifier   *intent.Classifier
	embedder     Embedder
	ranker       *retrieval.Ranker
	composer     *composer.Composer
	generator    Generator
	memory       *memory.Manager
	interactions InteractionRecorder
}

// New creates a Responder. Missing optional pieces get defaults: the built-in
// categories, the default ranker, a 4000-token composer and a stateless
// memory manager.
func New(d Deps) *Responder {
	if d.Entities == nil {
		d.Entities = entity.NewIndexer(d.Corpus, entity.NewFilter(nil))
	}
	if d.Contacts == nil {
		d.Contacts = contact.NewCache(d.Corpus, contact.Info{})
	}
	if d.Classifier == nil {
		d.Classifier = intent.New(intent.DefaultCategories())
	}
	if d.Ranker == nil {
		d.Ranker = retrieval.NewRanker(retrieval.DefaultConfig())
	}
	if d.Composer == nil {
		d.Composer = composer.New(0)
	}
	if d.Memory == nil {
		d.Memory = memory.NewManager(nil, nil, memory.Options{})
	}
	return &Responder{
		corpus:       d.Corpus,
		entities:     d.Entities,
		contacts:     d.Contacts,
		classifier:   d.Classifier,
		embedder:     d.Embedder,
		ranker:       d.Ranker,
		composer:     d.Composer,
		generator:    d.Generator,
		memory:       d.Memory,
		interactions: d.Interactions,
	}
}

// Warm builds the entity index and the contact cache in parallel so the
// first request does not pay for them.
func (r *Responder) Warm(ctx context.Context) error {
	start := time.Now()
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.entities.Index()
		return nil
	})
	g.Go(func() error {
		r.contacts.Get()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("responder warmed", "entries", r.corpus.Len(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// CorpusSize returns the number of usable knowledge entries.
func (r *Responder) CorpusSize() int { return r.corpus.Len() }

// IndexSize returns the number of model tokens in the entity index.
func (r *Responder) IndexSize() int { return r.entities.Index().Len() }

// Contact returns the cached contact details.
func (r *Responder) Contact() contact.Info { return r.contacts.Get() }

// History returns the most recent limit turns of a session.
func (r *Responder) History(ctx context.Context, sessionKey string, limit int) []memory.Turn {
	return r.memory.RecentN(ctx, sessionKey, limit)
}

// Search runs retrieval only and returns the ranked candidates. It never
// calls the generator.
func (r *Responder) Search(ctx context.Context, query string) (retrieval.Result, error) {
	query = textnorm.Clean(query)
	if query == "" {
		return retrieval.Result{}, ErrEmptyMessage
	}
	if err := r.corpus.Check(); err != nil {
		return retrieval.Result{}, err
	}
	sticky := r.entities.Index().Extract(query, nil)
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return retrieval.Result{}, err
	}
	res, err := r.ranker.Rank(r.corpus.Entries(), vec, sticky)
	if err != nil {
		return retrieval.Result{}, err
	}
	if !res.Passable {
		if in := r.classifier.Classify(query); in.Category != nil {
			res = r.ranker.RankLexical(r.corpus.Entries(), in.Category.Keywords)
		}
	}
	return res, nil
}

// Respond produces the reply for one message. The exchange is appended to
// session history and the interaction log whichever branch answered it. An
// error is returned only for malformed input and for cancellation; neither
// writes history.
func (r *Responder) Respond(ctx context.Context, req Request) (Response, error) {
	msg := textnorm.Clean(req.Message)
	if msg == "" && !req.FirstTurn {
		return Response{}, ErrEmptyMessage
	}
	userID := req.UserID
	if userID == "" {
		userID = req.SessionKey
	}

	history := r.memory.Recent(ctx, req.SessionKey)
	t := turn{
		req:       req,
		msg:       msg,
		userID:    userID,
		mode:      textnorm.DetectMode(msg),
		firstTurn: req.FirstTurn || len(history) == 0,
		history:   history,
	}

	var resp Response
	if msg == "" {
		// First turn with nothing typed: the surface has just opened.
		resp = Response{Reply: replyFirstGreeting.in(t.mode), Intent: intent.KindSmallTalk, Status: StatusSmallTalk}
	} else {
		in := r.classifier.Classify(msg)
		var err error
		resp, err = r.dispatch(ctx, t, in)
		if err != nil {
			return Response{}, err
		}
		resp.Intent = in.Kind
	}
	resp.Mode = t.mode
	if resp.Sources == nil {
		resp.Sources = []string{}
	}

	r.finalize(ctx, t, resp)
	return resp, nil
}

// turn carries the per-request values shared by the branches.
type turn struct {
	req       Request
	msg       string
	userID    string
	mode      textnorm.Mode
	firstTurn bool
	history   []memory.Turn
}

func (r *Responder) dispatch(ctx context.Context, t turn, in intent.Intent) (Response, error) {
	switch in.Kind {
	case intent.KindCommand:
		return r.command(ctx, t, in), nil
	case intent.KindSmallTalk:
		return Response{Reply: smallTalkReply(in.SmallTalk, t.mode, t.firstTurn), Status: StatusSmallTalk}, nil
	case intent.KindContact:
		return Response{Reply: contactReply(r.contacts.Get(), t.mode), Status: StatusContact}, nil
	default:
		return r.answer(ctx, t, in.Category)
	}
}

func (r *Responder) command(ctx context.Context, t turn, in intent.Intent) Response {
	resp := Response{Status: StatusCommand}
	switch in.Command {
	case intent.CommandHistory:
		var questions []string
		for _, h := range r.memory.RecentN(ctx, t.req.SessionKey, historyCommandTurns) {
			if h.Role == memory.RoleUser {
				questions = append(questions, h.Text)
			}
		}
		resp.Reply = historyReply(questions, t.mode)
	case intent.CommandMemoryDebug:
		facts, err := r.memory.Facts(ctx, t.userID)
		if err != nil {
			slog.Warn("listing facts failed", "user", t.userID, "error", err)
			resp.Reply = replyMemoryError.in(t.mode)
			break
		}
		resp.Reply = factsReply(facts, t.mode)
	case intent.CommandMemoryReset:
		n, err := r.memory.Reset(ctx, t.userID)
		if err != nil {
			slog.Warn("resetting facts failed", "user", t.userID, "error", err)
			resp.Reply = replyMemoryError.in(t.mode)
			break
		}
		slog.Info("facts reset", "user", t.userID, "removed", n)
		resp.Reply = replyForgot.in(t.mode)
	case intent.CommandRemember:
		if _, err := r.memory.Remember(ctx, t.userID, in.Fact.Key, in.Fact.Value, "chat"); err != nil {
			slog.Warn("remembering fact failed", "user", t.userID, "key", in.Fact.Key, "error", err)
			resp.Reply = replyMemoryError.in(t.mode)
			break
		}
		resp.Reply = rememberedReply(in.Fact, t.mode)
	}
	return resp
}

// answer runs the knowledge path: entities, embedding, ranking, lexical
// fallback, composition, generation and the no-leak guard.
func (r *Responder) answer(ctx context.Context, t turn, category *intent.Category) (Response, error) {
	if err := r.corpus.Check(); err != nil {
		slog.Warn("knowledge base unavailable", "error", err)
		return Response{Reply: replyKBDown.in(t.mode), Status: StatusKBUnavailable}, nil
	}

	sticky := r.entities.Index().Extract(t.msg, recentUserTexts(t.history, entityHistoryTurns))
	tokens := make([]string, len(sticky))
	for i, e := range sticky {
		tokens[i] = e.Token
	}

	vec, err := r.embedder.Embed(ctx, t.msg)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		slog.Warn("embedding query failed", "error", err)
		return Response{Reply: replyRetryLater.in(t.mode), Status: StatusRetrievalUnavailable, Entities: tokens}, nil
	}
	res, err := r.ranker.Rank(r.corpus.Entries(), vec, sticky)
	if err != nil {
		slog.Warn("ranking failed", "error", err)
		return Response{Reply: replyRetryLater.in(t.mode), Status: StatusRetrievalUnavailable, Entities: tokens}, nil
	}
	if !res.Passable && category != nil {
		slog.Debug("hybrid retrieval not passable, trying lexical", "category", category.Name)
		res = r.ranker.RankLexical(r.corpus.Entries(), category.Keywords)
	}
	if top, ok := res.Top(); ok {
		slog.Debug("retrieval done",
			"top", top.Entry.ID,
			"composite", top.Composite,
			"entity_locked", res.EntityLocked,
			"lexical", res.Lexical,
			"passable", res.Passable,
		)
	}
	if !res.Passable {
		return Response{Reply: noMatchReply(tokens, r.contacts.Get(), t.mode), Status: StatusNoMatch, Entities: tokens}, nil
	}

	in := composer.Input{
		Mode:     t.mode,
		Question: t.msg,
		Entities: tokens,
		Facts:    r.memory.PromptFacts(ctx, t.userID),
		History:  t.history,
		Context:  res.Candidates,
	}
	if category != nil {
		in.CategoryHint = category.Hint
	}
	prompt := r.composer.Compose(in)
	if !prompt.HasContext() {
		// Every passing candidate was larger than the context budget.
		slog.Warn("no candidate fits the context budget", "candidates", len(res.Candidates))
		return Response{Reply: noMatchReply(tokens, r.contacts.Get(), t.mode), Status: StatusNoMatch, Entities: tokens}, nil
	}
	resp := Response{Sources: prompt.ContextIDs, Entities: tokens}

	reply, err := r.generator.Generate(ctx, prompt.Messages)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		slog.Warn("generation failed", "error", err)
		resp.Status = StatusGenerationFailed
		switch {
		case errors.Is(err, engine.ErrQuotaExceeded):
			resp.Reply = replyQuota.in(t.mode)
		case errors.Is(err, engine.ErrOverloaded):
			resp.Reply = replyBusy.in(t.mode)
		default:
			resp.Reply = replyFailed.in(t.mode)
		}
		return resp, nil
	}

	switch {
	case textnorm.Clean(reply) == "":
		slog.Warn("generator returned an empty reply")
		resp.Reply = noMatchReply(tokens, r.contacts.Get(), t.mode)
		resp.Status = StatusGuarded
	case prompt.HasContext() && composer.ContainsFallback(reply):
		slog.Warn("reply fell back despite context", "sources", len(prompt.ContextIDs))
		resp.Reply = replyBeSpecific.in(t.mode)
		resp.Status = StatusGuarded
	default:
		resp.Reply = reply
		resp.Status = StatusAnswered
	}
	return resp, nil
}

// finalize appends the exchange to session history and the interaction log.
// Failures are logged; the reply has already been decided.
func (r *Responder) finalize(ctx context.Context, t turn, resp Response) {
	if err := r.memory.RecordExchange(ctx, t.req.SessionKey, t.msg, resp.Reply); err != nil {
		slog.Warn("appending session history failed", "session", t.req.SessionKey, "error", err)
	}
	if r.interactions == nil {
		return
	}
	sources, _ := json.Marshal(resp.Sources)
	err := r.interactions.SaveInteraction(ctx, storage.Interaction{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		SessionKey: t.req.SessionKey,
		UserID:     t.userID,
		UserQuery:  t.msg,
		Reply:      resp.Reply,
		Intent:     string(resp.Intent),
		Status:     resp.Status,
		SourceIDs:  string(sources),
	})
	if err != nil {
		slog.Warn("saving interaction failed", "error", err)
	}
}

// recentUserTexts returns the last n user turns, oldest first.
func recentUserTexts(history []memory.Turn, n int) []string {
	var out []string
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == memory.RoleUser {
			out = append(out, history[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
