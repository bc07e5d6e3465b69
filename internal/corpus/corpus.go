// Package corpus holds the per-page text of one source document.
package corpus

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrUnreadable marks a source document whose text could not be extracted.
var ErrUnreadable = errors.New("source document unreadable")

// TextExtractor turns a source document into a Corpus.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (*Corpus, error)
}

// Corpus is an immutable, ordered list of page texts. Page 0 is the first page
// of the document. Empty pages are kept so indices line up with the source.
type Corpus struct {
	raw      []string
	text     []string
	stripped []int
}

// New builds a corpus from extracted page strings.
func New(pages []string) *Corpus {
	c := &Corpus{
		raw:      make([]string, len(pages)),
		text:     make([]string, len(pages)),
		stripped: make([]int, len(pages)),
	}
	for i, p := range pages {
		p = norm.NFC.String(p)
		c.raw[i] = p
		c.text[i] = matchForm(p)
		c.stripped[i] = utf8.RuneCountInString(strings.TrimSpace(p))
	}
	return c
}

// matchForm lower-cases and collapses whitespace so literal patterns can be
// compared with a plain substring search.
func matchForm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Len returns the number of pages.
func (c *Corpus) Len() int { return len(c.raw) }

// Raw returns page i as extracted (NFC-normalized).
func (c *Corpus) Raw(i int) string { return c.raw[i] }

// Text returns page i lower-cased with whitespace collapsed to single spaces.
func (c *Corpus) Text(i int) string { return c.text[i] }

// Stripped returns the rune count of page i without surrounding whitespace.
func (c *Corpus) Stripped(i int) int { return c.stripped[i] }

// Valid reports whether i is a page index of the corpus.
func (c *Corpus) Valid(i int) bool { return i >= 0 && i < len(c.raw) }

// Pages returns a copy of the raw page texts.
func (c *Corpus) Pages() []string {
	out := make([]string, len(c.raw))
	copy(out, c.raw)
	return out
}
