package detect

import (
	"strings"
	"unicode/utf8"

	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/textutil"
)

// corpus is the aggregate text of all pages. text has diacritics removed and
// is what offsets refer to; raw is the text as fetched, with fold mapping each
// raw byte offset to its offset in text. Offsets in text map back to the page
// they occurred in.
type corpus struct {
	text  string
	raw   string
	fold  []int
	spans []span
}

type span struct {
	start, end int
	url        string
}

func newCorpus(pages []*model.FetchedPage) *corpus {
	b := &corpusBuilder{stripped: make(map[rune]string)}
	c := &corpus{}
	for _, p := range pages {
		if p == nil {
			continue
		}
		text := p.Corpus()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if b.text.Len() > 0 {
			b.write(model.CorpusSeparator)
		}
		start := b.text.Len()
		b.write(text)
		c.spans = append(c.spans, span{start: start, end: b.text.Len(), url: p.URL})
	}
	c.text = b.text.String()
	c.raw = b.raw.String()
	c.fold = append(b.offsets, b.text.Len())
	return c
}

// foldRange maps a [start, end) range of raw to the same range of text.
func (c *corpus) foldRange(loc []int) []int {
	return []int{c.fold[loc[0]], c.fold[loc[1]]}
}

type corpusBuilder struct {
	raw, text strings.Builder
	offsets   []int
	stripped  map[rune]string
}

// write appends s to raw and its mark-stripped form to text, one rune at a
// time so every raw offset has a text offset.
func (b *corpusBuilder) write(s string) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		folded := s[i : i+size]
		if r >= utf8.RuneSelf {
			f, ok := b.stripped[r]
			if !ok {
				f = textutil.StripMarks(string(r))
				b.stripped[r] = f
			}
			folded = f
		}
		for range size {
			b.offsets = append(b.offsets, b.text.Len())
		}
		b.raw.WriteString(s[i : i+size])
		b.text.WriteString(folded)
		i += size
	}
}

// spanAt returns the page span containing offset.
func (c *corpus) spanAt(offset int) (span, bool) {
	lo, hi := 0, len(c.spans)
	for lo < hi {
		mid := (lo + hi) / 2
		switch s := c.spans[mid]; {
		case offset < s.start:
			hi = mid
		case offset >= s.end:
			lo = mid + 1
		default:
			return s, true
		}
	}
	return span{}, false
}

// window returns [start-radius, end+radius] clamped to the page of start.
func (c *corpus) window(start, end, radius int) (int, int) {
	s, ok := c.spanAt(start)
	if !ok {
		return start, end
	}
	return max(start-radius, s.start), min(end+radius, s.end)
}
