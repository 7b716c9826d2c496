package links

import (
	"testing"

	"github.com/nao1215/brokersafety/internal/model"
)

const base = "https://broker.example"

func anchor(path, label string) model.Anchor {
	return model.Anchor{URL: base + path, Label: label}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		anchors  []model.Anchor
		category Category
		want     string
	}{
		{
			name:     "risk disclosure label on pdf",
			anchors:  []model.Anchor{anchor("/docs/rd.pdf", "Risk Disclosure")},
			category: Risk,
			want:     base + "/docs/rd.pdf",
		},
		{
			name:     "localized terms label",
			anchors:  []model.Anchor{anchor("/es/legal/doc-12", "Términos y Condiciones")},
			category: Terms,
			want:     base + "/es/legal/doc-12",
		},
		{
			name:     "german client agreement label",
			anchors:  []model.Anchor{anchor("/de/vertrag", "Kundenvereinbarung")},
			category: ClientAgreement,
			want:     base + "/de/vertrag",
		},
		{
			name:     "call to action with uninformative url",
			anchors:  []model.Anchor{anchor("/go?id=42", "Start Trading")},
			category: OpenAccount,
			want:     base + "/go?id=42",
		},
		{
			name:     "french open account",
			anchors:  []model.Anchor{anchor("/fr/x", "Ouvrir un compte")},
			category: OpenAccount,
			want:     base + "/fr/x",
		},
		{
			name:     "path token without label",
			anchors:  []model.Anchor{anchor("/legal/client_agreement_v3.pdf", "")},
			category: ClientAgreement,
			want:     base + "/legal/client_agreement_v3.pdf",
		},
		{
			name:     "substring fallback",
			anchors:  []model.Anchor{anchor("/files/termsofbusiness.pdf", "Download"), anchor("/join-us-today", "Now")},
			category: OpenAccount,
			want:     base + "/join-us-today",
		},
		{
			name:     "privacy label",
			anchors:  []model.Anchor{anchor("/p/1", "Privacy Policy")},
			category: Privacy,
			want:     base + "/p/1",
		},
		{
			name:     "unrelated anchors fill nothing",
			anchors:  []model.Anchor{anchor("/markets/forex", "Forex"), anchor("/about", "About us")},
			category: Terms,
			want:     "",
		},
		{
			name:     "terms is a whole word",
			anchors:  []model.Anchor{anchor("/glossary", "Trading terminology")},
			category: Terms,
			want:     "",
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Get(c.Classify(tt.anchors), tt.category)
			if got != tt.want {
				t.Errorf("expected %s %q, got %q", tt.category, tt.want, got)
			}
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	t.Parallel()

	t.Run("label beats earlier path match", func(t *testing.T) {
		t.Parallel()

		links := New().Classify([]model.Anchor{
			anchor("/risk", "Markets"),
			anchor("/docs/a.pdf", "Risk Warning"),
		})
		if links.Risk != base+"/docs/a.pdf" {
			t.Errorf("expected label match, got %q", links.Risk)
		}
	})

	t.Run("first hit in traversal order wins", func(t *testing.T) {
		t.Parallel()

		links := New().Classify([]model.Anchor{
			anchor("/legal/terms-and-conditions", "Terms and Conditions"),
			anchor("/legal/terms-2024.pdf", "Terms"),
		})
		if links.Terms != base+"/legal/terms-and-conditions" {
			t.Errorf("expected first anchor, got %q", links.Terms)
		}
	})

	t.Run("filled slot is not overwritten by weaker match", func(t *testing.T) {
		t.Parallel()

		links := New().Classify([]model.Anchor{
			anchor("/a", "General Terms"),
			anchor("/legal/terms_of_service", ""),
			anchor("/x/terms", ""),
		})
		if links.Terms != base+"/a" {
			t.Errorf("expected label match to stay, got %q", links.Terms)
		}
	})

	t.Run("one anchor may fill several slots", func(t *testing.T) {
		t.Parallel()

		links := New().Classify([]model.Anchor{
			anchor("/legal/terms-and-risk", "Terms and Risk Disclosure"),
		})
		if links.Terms == "" || links.Risk == "" {
			t.Errorf("expected terms and risk, got %+v", links)
		}
		if links.ClientAgreement != "" || links.OpenAccount != "" {
			t.Errorf("expected other slots empty, got %+v", links)
		}
	})
}

func TestClassifyEmpty(t *testing.T) {
	t.Parallel()

	links := New().Classify(nil)
	if links != (model.DocumentLinks{}) {
		t.Errorf("expected empty links, got %+v", links)
	}
	links = New().Classify([]model.Anchor{{URL: "", Label: "Terms"}})
	if links.Terms != "" {
		t.Errorf("expected empty url to be skipped, got %q", links.Terms)
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	l := model.DocumentLinks{
		Terms:           "t",
		Risk:            "r",
		ClientAgreement: "c",
		OpenAccount:     "o",
		Privacy:         "p",
	}
	want := map[Category]string{Terms: "t", Risk: "r", ClientAgreement: "c", OpenAccount: "o", Privacy: "p", "other": ""}
	for cat, w := range want {
		if got := Get(l, cat); got != w {
			t.Errorf("Get(%s): expected %q, got %q", cat, w, got)
		}
	}
	if len(Categories) != 5 {
		t.Errorf("expected 5 categories, got %d", len(Categories))
	}
}
