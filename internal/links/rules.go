package links

// Category is a document link slot.
type Category string

// Link slots in fill order.
const (
	Terms           Category = "terms"
	Risk            Category = "risk"
	ClientAgreement Category = "client_agreement"
	OpenAccount     Category = "open_account"
	Privacy         Category = "privacy"
)

// Categories lists every slot in fill order.
var Categories = []Category{Terms, Risk, ClientAgreement, OpenAccount, Privacy}

// rule holds the matchers of one slot for each pass. labels and paths are
// phrases matched as whole words after folding; New pads them once.
// needles are lowercase substrings of the full URL.
type rule struct {
	category Category
	labels   []string
	paths    []string
	needles  []string
}

var defaultRules = []rule{
	{
		category: Terms,
		labels: []string{
			"terms and conditions", "terms of business", "terms of service", "terms of use",
			"general terms", "trading terms", "terms",
			"terminos y condiciones", "terminos generales",
			"conditions generales", "conditions d utilisation",
			"allgemeine geschaftsbedingungen", "geschaftsbedingungen", "agb",
			"termini e condizioni", "condizioni generali",
			"termos e condicoes", "termos de uso",
			"regulamin", "warunki handlowe",
		},
		paths:   []string{"terms and conditions", "terms", "tnc", "agb", "general conditions"},
		needles: []string{".pdf/terms", "terms-and-conditions", "terms_of", "/terms"},
	},
	{
		category: Risk,
		labels: []string{
			"risk disclosure", "risk warning", "risk notice", "risk statement", "risk disclaimer",
			"advertencia de riesgo", "divulgacion de riesgos", "aviso de riesgo",
			"avertissement sur les risques", "divulgation des risques",
			"risikohinweis", "risikowarnung", "risikoaufklarung",
			"avvertenza sui rischi", "informativa sui rischi",
			"aviso de risco", "divulgacao de riscos",
			"ostrzezenie o ryzyku", "informacja o ryzyku",
		},
		paths:   []string{"risk disclosure", "risk warning", "riskdisclosure", "risk", "risks"},
		needles: []string{".pdf/risk", "risk-disclosure", "/risk", "risk_disclosure"},
	},
	{
		category: ClientAgreement,
		labels: []string{
			"client agreement", "customer agreement", "client services agreement",
			"account agreement", "client service agreement", "customer terms",
			"contrato de cliente", "contrato con el cliente",
			"accord client", "convention de compte", "contrat client",
			"kundenvereinbarung", "kundenvertrag",
			"contratto cliente", "accordo con il cliente",
			"contrato do cliente", "acordo do cliente",
			"umowa z klientem", "umowa klienta",
		},
		paths:   []string{"client agreement", "client services agreement", "customer agreement", "clientagreement"},
		needles: []string{".pdf/client", "client-services-agreement", "client-agreement", "clientagreement"},
	},
	{
		category: OpenAccount,
		labels: []string{
			"open account", "open an account", "open live account", "open a live account",
			"open real account", "create account", "create an account", "start trading",
			"sign up", "signup", "register", "join now", "get started",
			"abrir cuenta", "abre tu cuenta", "registrarse", "empezar a operar",
			"ouvrir un compte", "inscription", "commencer a trader",
			"konto eroffnen", "jetzt handeln", "registrieren",
			"apri un conto", "apri conto", "inizia a fare trading", "registrati",
			"abrir conta", "comece a negociar", "cadastre se",
			"otworz konto", "zaloz konto", "zarejestruj sie",
		},
		paths:   []string{"open account", "open live account", "signup", "sign up", "register", "registration"},
		needles: []string{"open-account", "register", "join"},
	},
	{
		category: Privacy,
		labels: []string{
			"privacy policy", "privacy notice", "privacy statement", "privacy",
			"politica de privacidad", "aviso de privacidad",
			"politique de confidentialite", "confidentialite",
			"datenschutzerklarung", "datenschutz",
			"informativa sulla privacy", "informativa privacy",
			"politica de privacidade", "privacidade",
			"polityka prywatnosci",
		},
		paths:   []string{"privacy policy", "privacy", "datenschutz"},
		needles: []string{"privacy", "datenschutz"},
	},
}
