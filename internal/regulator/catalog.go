package regulator

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is the relative strength classification of a regulator.
type Tier string

const (
	// Tier1 is the strongest oversight class.
	Tier1 Tier = "Tier-1"
	// Tier2 is the intermediate class.
	Tier2 Tier = "Tier-2"
	// Tier3 covers offshore and light-touch regimes.
	Tier3 Tier = "Tier-3"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case Tier1, Tier2, Tier3:
		return true
	default:
		return false
	}
}

// Catalog construction errors.
var (
	// ErrDuplicateAbbreviation is returned when two records share an abbreviation or alias.
	ErrDuplicateAbbreviation = errors.New("duplicate regulator abbreviation")

	// ErrEmptyAbbreviation is returned for a record without abbreviation.
	ErrEmptyAbbreviation = errors.New("regulator abbreviation is empty")

	// ErrInvalidTier is returned for a record whose tier is not Tier-1..Tier-3.
	ErrInvalidTier = errors.New("invalid regulator tier")
)

// Record describes one regulator.
type Record struct {
	// Abbreviation is the canonical short name, e.g. "FCA".
	Abbreviation string `json:"abbreviation" yaml:"abbreviation"`

	// DisplayName is the full name, e.g. "Financial Conduct Authority".
	DisplayName string `json:"display_name" yaml:"display_name"`

	// Tier is the strength classification.
	Tier Tier `json:"tier" yaml:"tier"`

	// JurisdictionTokens are the default region tokens (uk, eu, au, row, ...).
	JurisdictionTokens []string `json:"jurisdiction_tokens" yaml:"jurisdiction_tokens"`

	// Country is an explicit human readable jurisdiction. When empty the
	// jurisdiction is derived from the first token.
	Country string `json:"country,omitempty" yaml:"country,omitempty"`

	// Aliases are alternative spellings matched as whole words, e.g. "IIROC".
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Jurisdiction returns the human readable jurisdiction of the record.
func (r Record) Jurisdiction() string {
	if r.Country != "" {
		return r.Country
	}
	for _, tok := range r.JurisdictionTokens {
		if c, ok := tokenCountries[tok]; ok {
			return c
		}
	}
	if len(r.JurisdictionTokens) > 0 {
		return strings.ToUpper(r.JurisdictionTokens[0])
	}
	return ""
}

func (r Record) clone() Record {
	out := r
	out.JurisdictionTokens = append([]string(nil), r.JurisdictionTokens...)
	out.Aliases = append([]string(nil), r.Aliases...)
	return out
}

// Catalog is an immutable lookup table of regulators.
// It is safe for concurrent use.
type Catalog struct {
	records []Record
	index   map[string]int // upper-cased abbreviation or alias -> position
}

// New builds a catalog from records. Order is preserved and used as the
// output order of detection results.
func New(records ...Record) (*Catalog, error) {
	c := &Catalog{
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)*2),
	}
	for _, r := range records {
		if strings.TrimSpace(r.Abbreviation) == "" {
			return nil, ErrEmptyAbbreviation
		}
		if !r.Tier.Valid() {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidTier, r.Tier, r.Abbreviation)
		}
		pos := len(c.records)
		keys := append([]string{r.Abbreviation}, r.Aliases...)
		for _, k := range keys {
			key := indexKey(k)
			if _, exists := c.index[key]; exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateAbbreviation, k)
			}
			c.index[key] = pos
		}
		c.records = append(c.records, r.clone())
	}
	return c, nil
}

// MustNew is like New but panics on error. It is meant for static tables.
func MustNew(records ...Record) *Catalog {
	c, err := New(records...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of regulators.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Records returns a copy of all records in catalog order.
func (c *Catalog) Records() []Record {
	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.clone()
	}
	return out
}

// Lookup finds a record by abbreviation or alias, case-insensitively.
func (c *Catalog) Lookup(name string) (Record, bool) {
	pos, ok := c.index[indexKey(name)]
	if !ok {
		return Record{}, false
	}
	return c.records[pos].clone(), true
}

// NormalizeAbbreviation maps an alias to its canonical abbreviation.
// Unknown names are returned trimmed but otherwise unchanged.
func (c *Catalog) NormalizeAbbreviation(name string) string {
	if r, ok := c.Lookup(name); ok {
		return r.Abbreviation
	}
	return strings.TrimSpace(name)
}

// Country returns the jurisdiction of the regulator named abbr, or "".
func (c *Catalog) Country(abbr string) string {
	r, ok := c.Lookup(abbr)
	if !ok {
		return ""
	}
	return r.Jurisdiction()
}

// TokenCountry maps a jurisdiction token such as "eu" to a display name.
func TokenCountry(token string) string {
	return tokenCountries[strings.ToLower(token)]
}

func indexKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
