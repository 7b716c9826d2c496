package links

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/textutil"
)

// Classifier picks document links from an anchor set.
type Classifier struct {
	rules  []rule
	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier with the built-in phrase sets.
func New(opts ...Option) *Classifier {
	c := &Classifier{logger: slog.Default()}
	for _, r := range defaultRules {
		c.rules = append(c.rules, rule{
			category: r.category,
			labels:   padAll(r.labels),
			paths:    padAll(r.paths),
			needles:  r.needles,
		})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func padAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, textutil.Pad(textutil.Fold(p)))
	}
	return out
}

// features are the folded forms of one anchor.
type features struct {
	url   string
	label string
	path  string
	lower string
}

func newFeatures(a model.Anchor) features {
	f := features{
		url:   a.URL,
		label: textutil.Pad(textutil.Fold(a.Label)),
		lower: strings.ToLower(a.URL),
	}
	if u, err := url.Parse(a.URL); err == nil {
		f.path = textutil.Pad(textutil.Fold(u.Path))
	}
	return f
}

// pass is one matching stage. Earlier passes take priority.
type pass struct {
	name  string
	match func(r rule, f features) bool
}

var passes = []pass{
	{name: "label", match: func(r rule, f features) bool {
		return containsAny(f.label, r.labels)
	}},
	{name: "path", match: func(r rule, f features) bool {
		return containsAny(f.path, r.paths)
	}},
	{name: "needle", match: func(r rule, f features) bool {
		for _, n := range r.needles {
			if strings.Contains(f.lower, n) {
				return true
			}
		}
		return false
	}},
}

func containsAny(s string, phrases []string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Classify fills at most one URL per slot. Passes run in priority order and
// anchors are visited in traversal order; a filled slot is never overwritten.
func (c *Classifier) Classify(anchors []model.Anchor) model.DocumentLinks {
	feats := make([]features, 0, len(anchors))
	for _, a := range anchors {
		if a.URL == "" {
			continue
		}
		feats = append(feats, newFeatures(a))
	}

	filled := make(map[Category]string, len(c.rules))
	for _, p := range passes {
		for _, r := range c.rules {
			if filled[r.category] != "" {
				continue
			}
			for _, f := range feats {
				if p.match(r, f) {
					filled[r.category] = f.url
					c.logger.Debug("document link classified", "slot", r.category, "pass", p.name, "url", f.url)
					break
				}
			}
		}
	}

	return model.DocumentLinks{
		Terms:           filled[Terms],
		Risk:            filled[Risk],
		ClientAgreement: filled[ClientAgreement],
		OpenAccount:     filled[OpenAccount],
		Privacy:         filled[Privacy],
	}
}

// Get returns the URL of slot c in l.
func Get(l model.DocumentLinks, c Category) string {
	switch c {
	case Terms:
		return l.Terms
	case Risk:
		return l.Risk
	case ClientAgreement:
		return l.ClientAgreement
	case OpenAccount:
		return l.OpenAccount
	case Privacy:
		return l.Privacy
	default:
		return ""
	}
}
