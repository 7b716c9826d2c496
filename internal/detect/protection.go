package detect

import (
	"regexp"
	"strings"
)

// NBPRetail is the negative balance protection value when a phrase is found.
const NBPRetail = "Yes (retail)"

// nbpPatterns match negative balance protection phrases on the
// diacritic-free corpus.
var nbpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bnegative\s+balance\s+protection\b`),
	regexp.MustCompile(`(?i)\bNBP\b`),
	regexp.MustCompile(`(?i)\bproteccion\s+(?:de|contra)(?:\s+el)?\s+saldo\s+negativo\b`),
	regexp.MustCompile(`(?i)\bprotection\s+contre\s+(?:le\s+|un\s+)?solde\s+negatif\b`),
	regexp.MustCompile(`(?i)\bnegativsaldoschutz\b`),
	regexp.MustCompile(`(?i)\bschutz\s+vor\s+negativem\s+(?:konto)?saldo\b`),
	regexp.MustCompile(`(?i)\bprotezione\s+(?:dal|del|contro\s+il)\s+saldo\s+negativo\b`),
	regexp.MustCompile(`(?i)\bprotecao\s+(?:de|contra)\s+saldo\s+negativo\b`),
	regexp.MustCompile(`(?i)\bochrona\s+przed\s+ujemnym\s+saldem\b`),
}

func detectNBP(text string) string {
	for _, re := range nbpPatterns {
		if re.MatchString(text) {
			return NBPRetail
		}
	}
	return ""
}

// scheme is an investor compensation scheme with its statutory default.
type scheme struct {
	name     string
	mention  *regexp.Regexp
	amount   *regexp.Regexp
	currency string
	fallback string
}

var schemes = []scheme{
	{
		name:     "FSCS",
		mention:  regexp.MustCompile(`(?i)\bFSCS\b|\bFinancial\s+Services\s+Compensation\s+Scheme\b`),
		amount:   regexp.MustCompile(`(?:£|\bGBP)\s?(\d{1,3}(?:,\d{3})+|\d{2,7})\b`),
		currency: "£",
		fallback: "85,000",
	},
	{
		name:     "ICF",
		mention:  regexp.MustCompile(`(?i)\bICF\b|\bInvestor\s+Compensation\s+Fund\b`),
		amount:   regexp.MustCompile(`(?:€|\bEUR)\s?(\d{1,3}(?:,\d{3})+|\d{2,7})\b`),
		currency: "€",
		fallback: "20,000",
	},
	{
		name:     "SIPC",
		mention:  regexp.MustCompile(`(?i)\bSIPC\b|\bSecurities\s+Investor\s+Protection\s+Corporation\b`),
		amount:   regexp.MustCompile(`(?:\$|\bUSD)\s?(\d{1,3}(?:,\d{3})+|\d{2,7})\b`),
		currency: "$",
		fallback: "500,000",
	},
}

// detectCompensation describes every scheme named in the corpus. An amount
// in the scheme's currency near a mention wins over the statutory default.
// explicit reports whether any amount was read from the corpus.
func detectCompensation(c *corpus, radius int) (desc string, explicit bool) {
	var parts []string
	for _, s := range schemes {
		mentions := s.mention.FindAllStringIndex(c.text, -1)
		if len(mentions) == 0 {
			continue
		}
		amount := ""
		for _, m := range mentions {
			lo, hi := c.window(m[0], m[1], radius)
			if sub := s.amount.FindStringSubmatch(c.text[lo:hi]); sub != nil {
				amount = groupThousands(sub[1])
				break
			}
		}
		if amount != "" {
			explicit = true
		} else {
			amount = s.fallback
		}
		parts = append(parts, s.name+" up to "+s.currency+amount)
	}
	return strings.Join(parts, "; "), explicit
}

// groupThousands formats a plain digit run as 85,000. Grouped input is kept.
func groupThousands(digits string) string {
	if strings.Contains(digits, ",") || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
