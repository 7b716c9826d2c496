package detect

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/regulator"
	"github.com/nao1215/brokersafety/internal/textutil"
)

// DefaultWindow is the number of characters searched on each side of an
// entity name for a licensing verb and a regulator mention.
const DefaultWindow = 200

// proximityPattern must occur in the window for an entity to be paired.
var proximityPattern = regexp.MustCompile(`(?i)\b(?:authori[sz]ed|regulated|licen[sc]ed|supervised)\b`)

// Detector matches a regulator catalog against crawled text.
// It is safe for concurrent use.
type Detector struct {
	matchers []regulatorMatcher
	window   int
	logger   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithWindow sets the pairing window radius in characters.
func WithWindow(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Detector for catalog. A nil catalog selects the built-in one.
func New(catalog *regulator.Catalog, opts ...Option) *Detector {
	if catalog == nil {
		catalog = regulator.Default()
	}
	d := &Detector{
		window: DefaultWindow,
		logger: slog.Default(),
	}
	for _, r := range catalog.Records() {
		d.matchers = append(d.matchers, compileMatcher(r))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// regulatorMatcher holds the compiled patterns of one catalog record.
type regulatorMatcher struct {
	record regulator.Record
	abbr   *regexp.Regexp
	name   *regexp.Regexp
}

func compileMatcher(r regulator.Record) regulatorMatcher {
	m := regulatorMatcher{record: r}

	var alts []string
	for _, k := range append([]string{r.Abbreviation}, r.Aliases...) {
		if p := wordPattern(k); p != "" {
			alts = append(alts, p)
		}
	}
	if len(alts) > 0 {
		m.abbr = regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
	}

	if words := nameWords(r.DisplayName); len(words) > 0 {
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(w)
		}
		m.name = regexp.MustCompile(`(?i)\b` + strings.Join(quoted, `[^\pL\pN]+`) + `\b`)
	}
	return m
}

// qualifierPattern matches a parenthesized qualifier such as "(Seychelles)".
var qualifierPattern = regexp.MustCompile(`\s*\([^)]*\)`)

// nameWords returns the folded words of a display name without its
// parenthesized qualifier.
func nameWords(display string) []string {
	folded := textutil.Fold(qualifierPattern.ReplaceAllString(display, ""))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// wordPattern quotes s for whole-word matching. Word boundaries are only
// required at edges that are word characters, so "FSA (Seychelles)" works.
func wordPattern(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	q := strings.Join(strings.Fields(regexp.QuoteMeta(s)), `\s+`)
	if isWordByte(s[0]) {
		q = `\b` + q
	}
	if isWordByte(s[len(s)-1]) {
		q += `\b`
	}
	return q
}

func isWordByte(b byte) bool {
	return b == '_' || b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}

// regulatorHit is a detected regulator with its mention offsets.
type regulatorHit struct {
	record   regulator.Record
	mentions [][]int
	sources  []string
}

// Detect runs regulator, entity, compensation and NBP detection over the
// aggregate text of pages. It never returns nil.
func (d *Detector) Detect(pages []*model.FetchedPage) *model.Detection {
	det := &model.Detection{
		Regulators: []regulator.Record{},
		Entities:   []model.DetectedEntity{},
	}
	c := newCorpus(pages)
	if c.text == "" {
		return det
	}

	hits := d.findRegulators(c)
	for _, h := range hits {
		det.Regulators = append(det.Regulators, h.record)
	}
	det.NegativeBalanceProtection = detectNBP(c.text)
	det.InvestorProtection, det.CompensationExplicit = detectCompensation(c, d.window)
	det.Entities = d.pair(c, hits, findEntities(c.text), det.NegativeBalanceProtection, det.InvestorProtection)

	d.logger.Debug("detection finished",
		"regulators", det.Abbreviations(),
		"entities", len(det.Entities),
		"nbp", det.NegativeBalanceProtection != "",
		"compensation", det.InvestorProtection)
	return det
}

// findRegulators returns the matched records in catalog order. Abbreviations
// and aliases match the text as fetched so "más" never reads as MAS; full
// names match the mark-stripped text. Mentions of one regulator are merged.
func (d *Detector) findRegulators(c *corpus) []regulatorHit {
	var hits []regulatorHit
	for _, m := range d.matchers {
		var mentions [][]int
		if m.abbr != nil {
			for _, loc := range m.abbr.FindAllStringIndex(c.raw, -1) {
				mentions = append(mentions, c.foldRange(loc))
			}
		}
		if m.name != nil {
			mentions = append(mentions, m.name.FindAllStringIndex(c.text, -1)...)
		}
		if len(mentions) == 0 {
			continue
		}
		hit := regulatorHit{record: m.record, mentions: mentions}
		seen := make(map[string]bool)
		for _, loc := range mentions {
			if s, ok := c.spanAt(loc[0]); ok && !seen[s.url] {
				seen[s.url] = true
				hit.sources = append(hit.sources, s.url)
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// pair associates entity names with the nearest regulator mention in their
// window, looking forward first. Regulators left without a named entity get one unnamed entity.
func (d *Detector) pair(c *corpus, hits []regulatorHit, names []entityMatch, nbp, inv string) []model.DetectedEntity {
	paired := make([][]model.DetectedEntity, len(hits))
	type slot struct{ hit, pos int }
	index := make(map[string]slot)

	for _, em := range names {
		lo, hi := c.window(em.start, em.end, d.window)
		if !proximityPattern.MatchString(c.text[lo:hi]) {
			continue
		}
		best := nearestMention(hits, em, lo, hi)
		if best < 0 {
			continue
		}

		src := ""
		if s, ok := c.spanAt(em.start); ok {
			src = s.url
		}
		e := newEntity(em.name, hits[best].record, nbp, inv)
		if at, ok := index[e.Key()]; ok {
			existing := &paired[at.hit][at.pos]
			existing.SourceURLs = appendUnique(existing.SourceURLs, src)
			continue
		}
		e.SourceURLs = appendUnique(e.SourceURLs, src)
		index[e.Key()] = slot{hit: best, pos: len(paired[best])}
		paired[best] = append(paired[best], e)
	}

	var out []model.DetectedEntity
	for i, h := range hits {
		if len(paired[i]) > 0 {
			out = append(out, paired[i]...)
			continue
		}
		e := newEntity("", h.record, nbp, inv)
		e.SourceURLs = append(e.SourceURLs, h.sources...)
		out = append(out, e)
	}
	if out == nil {
		out = []model.DetectedEntity{}
	}
	return out
}

// nearestMention returns the hit whose mention is closest to em inside
// [lo, hi]. Mentions after the name win over mentions before it, as in
// "X Ltd is authorised and regulated by the FCA". It returns -1 when no
// mention lies in the window.
func nearestMention(hits []regulatorHit, em entityMatch, lo, hi int) int {
	after, afterDist := -1, math.MaxInt
	before, beforeDist := -1, math.MaxInt
	for i, h := range hits {
		for _, m := range h.mentions {
			if m[0] < lo || m[1] > hi {
				continue
			}
			dist := distance(em.start, em.end, m[0], m[1])
			if m[0] >= em.start {
				if dist < afterDist {
					after, afterDist = i, dist
				}
			} else if dist < beforeDist {
				before, beforeDist = i, dist
			}
		}
	}
	if after >= 0 {
		return after
	}
	return before
}

func newEntity(name string, r regulator.Record, nbp, inv string) model.DetectedEntity {
	return model.DetectedEntity{
		EntityName:                name,
		RegulatorAbbr:             r.Abbreviation,
		Regulator:                 r.DisplayName,
		Tier:                      r.Tier,
		Jurisdiction:              r.Jurisdiction(),
		InvestorProtection:        inv,
		NegativeBalanceProtection: nbp,
		RegionTokens:              append([]string(nil), r.JurisdictionTokens...),
		SourceURLs:                []string{},
	}
}

// distance is the gap between two spans, zero when they overlap.
func distance(aStart, aEnd, bStart, bEnd int) int {
	switch {
	case bEnd <= aStart:
		return aStart - bEnd
	case bStart >= aEnd:
		return bStart - aEnd
	default:
		return 0
	}
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
