// Package contact mines the support contact details (email, phone, postal
// address) out of the knowledge base once, with static fallbacks.
package contact

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/kalambet/supportqa/internal/corpus"
)

// minPhoneDigits rejects model numbers and prices that happen to look like
// digit runs.
const minPhoneDigits = 8

var (
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?\d[\d\s().-]{6,}\d`)
	addressPattern = regexp.MustCompile(`(?i)^\s*(?:postal address|address|head office|registered office|corporate office|office)\s*[:\-]\s*(.+?)\s*$`)
)

// Info holds the contact details shown to users.
type Info struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Complete reports whether every field is set.
func (i Info) Complete() bool {
	return i.Email != "" && i.Phone != "" && i.Address != ""
}

// withDefaults fills empty fields from d.
func (i Info) withDefaults(d Info) Info {
	if i.Email == "" {
		i.Email = d.Email
	}
	if i.Phone == "" {
		i.Phone = d.Phone
	}
	if i.Address == "" {
		i.Address = d.Address
	}
	return i
}

// Mine scans entries line by line in corpus order. The first match per field
// wins and the scan stops as soon as all three fields are found.
func Mine(entries []corpus.Entry) Info {
	var info Info
	for _, e := range entries {
		for _, line := range strings.Split(e.RawText, "\n") {
			if info.Email == "" {
				if m := emailPattern.FindString(line); m != "" {
					info.Email = m
				}
			}
			if info.Phone == "" {
				info.Phone = findPhone(line)
			}
			if info.Address == "" {
				if m := addressPattern.FindStringSubmatch(line); m != nil {
					info.Address = m[1]
				}
			}
			if info.Complete() {
				return info
			}
		}
	}
	return info
}

func findPhone(line string) string {
	for _, m := range phonePattern.FindAllString(line, -1) {
		digits := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= minPhoneDigits {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// Cache mines the corpus on first use and serves the result for the life of
// the process.
type Cache struct {
	corpus   *corpus.Corpus
	defaults Info

	once sync.Once
	info Info
}

// NewCache returns a Cache over c. Fields the corpus does not yield fall
// back to defaults.
func NewCache(c *corpus.Corpus, defaults Info) *Cache {
	return &Cache{corpus: c, defaults: defaults}
}

// Get returns the contact details, mining the corpus on the first call.
func (c *Cache) Get() Info {
	c.once.Do(func() {
		mined := Mine(c.corpus.Entries())
		c.info = mined.withDefaults(c.defaults)
		slog.Info("contact cache built",
			"email_from_corpus", mined.Email != "",
			"phone_from_corpus", mined.Phone != "",
			"address_from_corpus", mined.Address != "",
		)
	})
	return c.info
}
