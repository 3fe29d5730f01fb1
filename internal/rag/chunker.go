// Package rag builds embedding assets (chunk, embed, store) and retrieves
// context from them for prompt assembly.
package rag

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// separators are tried in order; "" means a hard split by rune count.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text into overlapping chunks no longer than Size runes,
// preferring paragraph, then line, sentence and word boundaries.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker. Non-positive size and negative overlap fall
// back to the defaults; overlap is kept below size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunks of text. Blank text yields no chunks.
func (c Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, separators)
}

func (c Chunker) split(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= c.Size {
		return []string{text}
	}

	sep, segments := "", []string(nil)
	for i, s := range seps {
		if s == "" {
			segments = hardSplit(text, c.Size)
			break
		}
		if parts := strings.Split(text, s); len(parts) > 1 {
			sep, segments, seps = s, parts, seps[i+1:]
			break
		}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
		}
	}
	for _, seg := range segments {
		// A single segment can still be too long for this separator.
		if utf8.RuneCountInString(seg) > c.Size && sep != "" {
			flush()
			cur.Reset()
			chunks = append(chunks, c.split(seg, seps)...)
			continue
		}

		next := seg
		if cur.Len() > 0 {
			next = cur.String() + sep + seg
		}
		if utf8.RuneCountInString(next) <= c.Size || cur.Len() == 0 {
			cur.Reset()
			cur.WriteString(next)
			continue
		}

		flush()
		tail := tailRunes(cur.String(), c.Overlap)
		cur.Reset()
		if tail != "" && utf8.RuneCountInString(tail)+len(sep)+utf8.RuneCountInString(seg) <= c.Size {
			cur.WriteString(tail)
			cur.WriteString(sep)
		}
		cur.WriteString(seg)
	}
	flush()
	return chunks
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if n >= len(r) {
		return s
	}
	return string(r[len(r)-n:])
}

func hardSplit(text string, n int) []string {
	r := []rune(text)
	out := make([]string, 0, len(r)/n+1)
	for i := 0; i < len(r); i += n {
		out = append(out, string(r[i:min(i+n, len(r))]))
	}
	return out
}
