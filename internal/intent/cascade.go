package intent

import (
	"strings"

	"github.com/kalambet/supportqa/internal/textnorm"
)

// Message is the input handed to each rule.
type Message struct {
	// Text is the cleaned message with its original case.
	Text string
	// Folded is the lower-cased form most rules match against.
	Folded string
}

// Rule is one step of the cascade.
type Rule struct {
	Name  string
	Match func(m Message) (Intent, bool)
}

// Classifier evaluates its rules top to bottom and returns the first match.
type Classifier struct {
	rules []Rule
}

// New builds the standard cascade: explicit commands, then small talk, then
// contact requests, then product categories. Deterministic answers are
// checked before anything that needs retrieval or generation.
func New(categories []Category) *Classifier {
	return &Classifier{rules: []Rule{
		{Name: "command", Match: matchCommand},
		{Name: "smalltalk", Match: matchSmallTalk},
		{Name: "contact", Match: matchContact},
		{Name: "category", Match: categoryMatcher(categories)},
	}}
}

// NewWithRules builds a Classifier over an explicit rule list.
func NewWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Classify returns the intent of message. No rule is evaluated after the
// first match. A message matching nothing is a plain knowledge question.
func (c *Classifier) Classify(message string) Intent {
	text := textnorm.Clean(message)
	m := Message{Text: text, Folded: strings.ToLower(text)}
	for _, r := range c.rules {
		if in, ok := r.Match(m); ok {
			in.Rule = r.Name
			return in
		}
	}
	return Intent{Kind: KindKnowledge}
}
