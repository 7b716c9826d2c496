package regulator

// tokenCountries maps jurisdiction tokens to display names.
var tokenCountries = map[string]string{
	"uk":  "UK",
	"eu":  "EU/EEA",
	"au":  "Australia",
	"za":  "South Africa",
	"row": "Rest of World",
	"us":  "United States",
	"ca":  "Canada",
	"de":  "Germany",
	"ch":  "Switzerland",
	"sg":  "Singapore",
	"hk":  "Hong Kong",
	"ae":  "United Arab Emirates",
	"ie":  "Ireland",
	"fr":  "France",
	"es":  "Spain",
	"it":  "Italy",
	"nl":  "Netherlands",
	"nz":  "New Zealand",
	"at":  "Austria",
	"pl":  "Poland",
	"ky":  "Cayman Islands",
	"bvi": "British Virgin Islands",
	"mu":  "Mauritius",
	"ke":  "Kenya",
	"jp":  "Japan",
	"gi":  "Gibraltar",
	"mt":  "Malta",
	"jo":  "Jordan",
	"bz":  "Belize",
	"sc":  "Seychelles",
}

// defaultRecords is the built-in regulator table. Country is set only where
// the first token would give a misleading jurisdiction.
func defaultRecords() []Record {
	return []Record{
		{Abbreviation: "FCA", DisplayName: "Financial Conduct Authority", Tier: Tier1, JurisdictionTokens: []string{"uk"}},
		{Abbreviation: "ASIC", DisplayName: "Australian Securities & Investments Commission", Tier: Tier1, JurisdictionTokens: []string{"au"}},
		{Abbreviation: "CySEC", DisplayName: "Cyprus Securities and Exchange Commission", Tier: Tier2, JurisdictionTokens: []string{"eu"}},
		{Abbreviation: "FSCA", DisplayName: "Financial Sector Conduct Authority", Tier: Tier2, JurisdictionTokens: []string{"za", "row"}},
		{Abbreviation: "FSA", DisplayName: "Financial Services Authority (Seychelles)", Tier: Tier3, JurisdictionTokens: []string{"row"}, Country: "Seychelles", Aliases: []string{"FSA (Seychelles)", "FSC (Seychelles)"}},
		{Abbreviation: "NFA", DisplayName: "National Futures Association", Tier: Tier1, JurisdictionTokens: []string{"us"}},
		{Abbreviation: "CFTC", DisplayName: "Commodity Futures Trading Commission", Tier: Tier1, JurisdictionTokens: []string{"us"}},
		{Abbreviation: "BaFin", DisplayName: "Bundesanstalt für Finanzdienstleistungsaufsicht", Tier: Tier1, JurisdictionTokens: []string{"de", "eu"}},
		{Abbreviation: "FINMA", DisplayName: "Swiss Financial Market Supervisory Authority", Tier: Tier1, JurisdictionTokens: []string{"ch"}},
		{Abbreviation: "MAS", DisplayName: "Monetary Authority of Singapore", Tier: Tier1, JurisdictionTokens: []string{"sg"}},
		{Abbreviation: "SFC", DisplayName: "Securities and Futures Commission (Hong Kong)", Tier: Tier1, JurisdictionTokens: []string{"hk"}},
		{Abbreviation: "DFSA", DisplayName: "Dubai Financial Services Authority", Tier: Tier2, JurisdictionTokens: []string{"ae"}},
		{Abbreviation: "FSRA", DisplayName: "Financial Services Regulatory Authority (ADGM)", Tier: Tier2, JurisdictionTokens: []string{"ae"}},
		{Abbreviation: "CBI", DisplayName: "Central Bank of Ireland", Tier: Tier1, JurisdictionTokens: []string{"ie", "eu"}},
		{Abbreviation: "AMF", DisplayName: "Autorité des marchés financiers (France)", Tier: Tier1, JurisdictionTokens: []string{"fr", "eu"}},
		{Abbreviation: "CNMV", DisplayName: "Comisión Nacional del Mercado de Valores", Tier: Tier1, JurisdictionTokens: []string{"es", "eu"}},
		{Abbreviation: "CONSOB", DisplayName: "Commissione Nazionale per le Società e la Borsa", Tier: Tier1, JurisdictionTokens: []string{"it", "eu"}},
		{Abbreviation: "AFM", DisplayName: "Netherlands Authority for the Financial Markets", Tier: Tier1, JurisdictionTokens: []string{"nl", "eu"}},
		{Abbreviation: "FMA NZ", DisplayName: "Financial Markets Authority (New Zealand)", Tier: Tier2, JurisdictionTokens: []string{"nz"}},
		{Abbreviation: "FMA AT", DisplayName: "Austrian Financial Market Authority", Tier: Tier2, JurisdictionTokens: []string{"at", "eu"}},
		{Abbreviation: "KNF", DisplayName: "Polish Financial Supervision Authority", Tier: Tier2, JurisdictionTokens: []string{"pl", "eu"}},
		{Abbreviation: "CIMA", DisplayName: "Cayman Islands Monetary Authority", Tier: Tier3, JurisdictionTokens: []string{"ky"}},
		{Abbreviation: "FSC BVI", DisplayName: "Financial Services Commission (BVI)", Tier: Tier3, JurisdictionTokens: []string{"bvi"}, Aliases: []string{"FSC (BVI)"}},
		{Abbreviation: "FSC Mauritius", DisplayName: "Financial Services Commission (Mauritius)", Tier: Tier3, JurisdictionTokens: []string{"mu"}, Aliases: []string{"FSC (Mauritius)"}},
		{Abbreviation: "CMA", DisplayName: "Capital Markets Authority (Kenya)", Tier: Tier3, JurisdictionTokens: []string{"ke"}},
		{Abbreviation: "JFSA", DisplayName: "Japan Financial Services Agency", Tier: Tier1, JurisdictionTokens: []string{"jp"}},
		{Abbreviation: "CIRO", DisplayName: "Canadian Investment Regulatory Organization", Tier: Tier1, JurisdictionTokens: []string{"ca"}, Aliases: []string{"IIROC"}},
		{Abbreviation: "SEC", DisplayName: "U.S. Securities and Exchange Commission", Tier: Tier1, JurisdictionTokens: []string{"us"}},
		{Abbreviation: "FINRA", DisplayName: "Financial Industry Regulatory Authority", Tier: Tier1, JurisdictionTokens: []string{"us"}},
		{Abbreviation: "SIPC", DisplayName: "Securities Investor Protection Corporation", Tier: Tier1, JurisdictionTokens: []string{"us"}},
		{Abbreviation: "GFSC", DisplayName: "Gibraltar Financial Services Commission", Tier: Tier2, JurisdictionTokens: []string{"gi"}},
		{Abbreviation: "MFSA", DisplayName: "Malta Financial Services Authority", Tier: Tier2, JurisdictionTokens: []string{"mt", "eu"}, Country: "EU/EEA"},
		{Abbreviation: "JSC", DisplayName: "Jordan Securities Commission", Tier: Tier3, JurisdictionTokens: []string{"jo"}},
		{Abbreviation: "IFSC", DisplayName: "International Financial Services Commission (Belize)", Tier: Tier3, JurisdictionTokens: []string{"bz"}},
	}
}

// Default returns a fresh catalog with the built-in regulator table.
func Default() *Catalog {
	return MustNew(defaultRecords()...)
}
