// Package textnorm cleans incoming chat text and guesses which language mode
// a reply should be phrased in. Nothing here affects retrieval scoring.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

// Mode is the phrasing mode for replies and generation instructions.
type Mode string

const (
	ModeEnglish  Mode = "english"
	ModeHinglish Mode = "hinglish"
)

var (
	wsRun       = regexp.MustCompile(`\s+`)
	punctRun    = regexp.MustCompile(`([!?.,])[!?.,]+`)
	wordPattern = regexp.MustCompile(`[a-z]+`)
)

// Clean strips invisible characters, collapses whitespace and repeated
// punctuation, and trims the result. Case is preserved.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200b', r == '\u200c', r == '\u200d', r == '\ufeff':
			return -1
		case unicode.IsControl(r) && !unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
	s = punctRun.ReplaceAllString(s, "$1")
	s = wsRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fold returns the cleaned, lower-cased form used for pattern matching.
func Fold(s string) string {
	return strings.ToLower(Clean(s))
}

// Words splits folded text into ASCII letter runs.
func Words(s string) []string {
	return wordPattern.FindAllString(Fold(s), -1)
}

// romanized Hindi function words and common chat verbs. Entries that are also
// frequent English words ("to", "me", "hi") are deliberately absent.
var hinglishWords = map[string]struct{}{
	"hai": {}, "hain": {}, "kya": {}, "kaise": {}, "kaisa": {}, "kaisi": {},
	"mujhe": {}, "muje": {}, "chahiye": {}, "chaiye": {}, "nahi": {}, "nahin": {},
	"batao": {}, "bataye": {}, "bataiye": {}, "btao": {}, "aap": {}, "apka": {},
	"aapka": {}, "kitna": {}, "kitne": {}, "kitni": {}, "kab": {}, "kahan": {},
	"kyun": {}, "kyu": {}, "mera": {}, "meri": {}, "mere": {}, "hum": {},
	"humein": {}, "karna": {}, "karo": {}, "kare": {}, "karen": {}, "kijiye": {},
	"milega": {}, "milegi": {}, "wala": {}, "wali": {}, "wale": {}, "accha": {},
	"acha": {}, "theek": {}, "thik": {}, "bhai": {}, "ji": {}, "haan": {},
	"dijiye": {}, "sakta": {}, "sakte": {}, "sakti": {}, "konsa": {}, "kaunsa": {},
	"bhi": {}, "aur": {}, "lekin": {}, "matlab": {}, "samjhao": {}, "dikhao": {},
}

// DetectMode scores the message for Hinglish signals: any Devanagari script,
// or enough romanized Hindi function words relative to the message length.
func DetectMode(s string) Mode {
	for _, r := range s {
		if unicode.Is(unicode.Devanagari, r) {
			return ModeHinglish
		}
	}
	words := Words(s)
	if len(words) == 0 {
		return ModeEnglish
	}
	hits := 0
	for _, w := range words {
		if _, ok := hinglishWords[w]; ok {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return ModeHinglish
	case hits == 1 && len(words) <= 4:
		return ModeHinglish
	}
	return ModeEnglish
}
