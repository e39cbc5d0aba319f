package ingest

import (
	"regexp"
	"strings"
)

// DefaultChunkSize is the target chunk length in bytes.
const DefaultChunkSize = 1200

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk packs paragraphs into chunks of at most size bytes. A paragraph
// longer than size is split at word boundaries. Whitespace inside a
// paragraph is collapsed; paragraph breaks are kept as blank lines.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		for _, piece := range splitWords(para, size) {
			if cur.Len() > 0 && cur.Len()+2+len(piece) > size {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// splitWords breaks s into pieces of at most size bytes at spaces. A single
// word longer than size becomes its own piece.
func splitWords(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		cut := strings.LastIndexByte(s[:size+1], ' ')
		if cut <= 0 {
			cut = strings.IndexByte(s, ' ')
			if cut < 0 {
				break
			}
		}
		out = append(out, s[:cut])
		s = s[cut+1:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
