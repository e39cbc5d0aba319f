package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/supportqa/internal/engine"
	"github.com/kalambet/supportqa/internal/memory"
	"github.com/kalambet/supportqa/internal/retrieval"
	"github.com/kalambet/supportqa/internal/textnorm"
)

const defaultMaxContextTokens = 4000

// FallbackPhrase is what the model is told to say when the context does not
// contain the answer. Replies are checked for it after generation.
const FallbackPhrase = "please contact our support team"

const baseInstruction = `You are the product support assistant for a sewing machine manufacturer.
Answer the customer's question using only the numbered context blocks below.
Keep answers short and concrete. Quote model numbers exactly as they appear in the context.
If the context does not contain the answer, say "` + FallbackPhrase + `" and nothing else.
Never invent prices, specifications or contact details.`

var modeInstructions = map[textnorm.Mode]string{
	textnorm.ModeEnglish:  "Reply in clear, simple English.",
	textnorm.ModeHinglish: "The customer writes in Hinglish. Reply in friendly Hinglish (Hindi words in Latin script mixed with English), keeping model numbers and specifications in English.",
}

// Input is everything the prompt is built from.
type Input struct {
	Mode         textnorm.Mode
	Question     string
	Entities     []string
	CategoryHint string
	Facts        string
	History      []memory.Turn
	Context      []retrieval.Candidate
}

// Prompt is the composed conversation plus the IDs of the context entries
// that fit in the budget.
type Prompt struct {
	Messages   []engine.Message
	ContextIDs []string
}

// HasContext reports whether any context block made it into the prompt.
func (p Prompt) HasContext() bool { return len(p.ContextIDs) > 0 }

// Composer assembles generation prompts from retrieved context, conversation
// memory and the user's question.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the system message (instructions, mode, hints, facts,
// numbered context), then the recent history turns, then the question.
func (c *Composer) Compose(in Input) Prompt {
	var sb strings.Builder
	sb.WriteString(baseInstruction)

	if instr, ok := modeInstructions[in.Mode]; ok {
		sb.WriteString("\n")
		sb.WriteString(instr)
	}
	if len(in.Entities) > 0 {
		fmt.Fprintf(&sb, "\n\n[Models mentioned]\nThe customer is asking about: %s. Prefer context about these exact models.", strings.Join(in.Entities, ", "))
	}
	if in.CategoryHint != "" {
		sb.WriteString("\n\n[Topic]\n")
		sb.WriteString(in.CategoryHint)
	}
	if in.Facts != "" {
		sb.WriteString("\n\n[About the customer]\nUse only to personalise the reply, never as product information.\n")
		sb.WriteString(in.Facts)
	}

	var ids []string
	blocks := c.selectContext(in.Context, EstimateTokens(sb.String()))
	if len(blocks) > 0 {
		sb.WriteString("\n\n[Context]\n")
		for i, cand := range blocks {
			fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, strings.TrimSpace(cand.Entry.Text()))
			ids = append(ids, cand.Entry.ID)
		}
	}

	msgs := make([]engine.Message, 0, len(in.History)+2)
	msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: strings.TrimRight(sb.String(), "\n")})
	for _, t := range in.History {
		role := engine.RoleUser
		if t.Role == memory.RoleAssistant {
			role = engine.RoleAssistant
		}
		msgs = append(msgs, engine.Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: in.Question})

	return Prompt{Messages: msgs, ContextIDs: ids}
}

// selectContext keeps candidates in rank order while they fit the budget
// left after the fixed part of the system message. A block too large for
// the remaining budget is skipped, and smaller later ones may still fit.
func (c *Composer) selectContext(cands []retrieval.Candidate, used int) []retrieval.Candidate {
	remaining := c.MaxContextTokens - used
	var out []retrieval.Candidate
	for _, cand := range cands {
		text := strings.TrimSpace(cand.Entry.Text())
		if text == "" {
			continue
		}
		tokens := EstimateTokens(text) + 2
		if tokens > remaining {
			continue
		}
		out = append(out, cand)
		remaining -= tokens
	}
	return out
}

// ContainsFallback reports whether reply contains the fallback phrase,
// ignoring case and punctuation runs.
func ContainsFallback(reply string) bool {
	return strings.Contains(textnorm.Fold(reply), FallbackPhrase)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
