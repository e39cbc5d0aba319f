package entity

import (
	"regexp"
	"sort"
	"strings"
)

const (
	minTokenLen = 3
	maxTokenLen = 24

	// borderlineMaxLen marks short tokens accepted only by the
	// letters-then-digit rule as worth a human look.
	borderlineMaxLen = 4
)

// candidatePattern finds model-like surface forms: an alphabetic start, then
// alphanumerics, optionally joined by hyphens, underscores, dots, plus signs
// or en-dashes, with an optional trailing plus ("X2+").
var candidatePattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9]*(?:[-_.+\x{2013}][a-zA-Z0-9]+)*\+?`)

var lettersThenDigit = regexp.MustCompile(`^[a-z]+[0-9]`)

var punctReplacer = strings.NewReplacer(
	"_", "-",
	"\u2013", "-",
	"\u2014", "-",
	"(", "",
	")", "",
)

// Normalize maps a surface form to its canonical token: lower-case, whitespace
// runs collapsed to a hyphen, underscores and dashes turned into hyphens,
// parentheses stripped, anything outside [a-z0-9.+-] dropped, and
// leading/trailing hyphens trimmed.
func Normalize(s string) string {
	s = punctReplacer.Replace(strings.ToLower(s))
	s = strings.Join(strings.Fields(s), "-")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '+', r == '-':
			return r
		}
		return -1
	}, s)
	return strings.Trim(s, "-")
}

// Variants returns the mechanical alias set for a canonical token: the token
// itself, and forms with hyphens, dots or plus signs removed, and with all
// three replaced by spaces.
func Variants(token string) []string {
	set := map[string]struct{}{token: {}}
	add := func(v string) {
		v = strings.Join(strings.Fields(v), " ")
		if v != "" {
			set[v] = struct{}{}
		}
	}
	add(strings.ReplaceAll(token, "-", ""))
	add(strings.ReplaceAll(token, ".", ""))
	add(strings.ReplaceAll(token, "+", ""))
	add(strings.NewReplacer("-", " ", ".", " ", "+", " ").Replace(token))
	return sortedKeys(set)
}

// Filter decides whether a normalized candidate looks like a model identifier.
type Filter struct {
	prefixes []string
}

// NewFilter returns a Filter that also accepts tokens starting with any of the
// given brand or family prefixes.
func NewFilter(brandPrefixes []string) Filter {
	var ps []string
	for _, p := range brandPrefixes {
		if p = Normalize(p); p != "" {
			ps = append(ps, p)
		}
	}
	return Filter{prefixes: ps}
}

// Accept reports whether token is model-like. borderline is true when the
// token passed only through the weakest rule and is short.
func (f Filter) Accept(token string) (ok, borderline bool) {
	if len(token) < minTokenLen || len(token) > maxTokenLen {
		return false, false
	}
	if !strings.ContainsAny(token, "0123456789") {
		return false, false
	}
	if f.hasPrefix(token) || strings.ContainsAny(token, "-.+") {
		return true, false
	}
	if lettersThenDigit.MatchString(token) {
		return true, len(token) <= borderlineMaxLen
	}
	return false, false
}

func (f Filter) hasPrefix(token string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// candidates returns (surface, canonical) pairs for every model-like token in text.
func (f Filter) candidates(text string) [][2]string {
	var out [][2]string
	for _, surface := range candidatePattern.FindAllString(text, -1) {
		tok := Normalize(surface)
		if ok, _ := f.Accept(tok); ok {
			out = append(out, [2]string{strings.ToLower(surface), tok})
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
