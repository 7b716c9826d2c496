package regulator

import (
	"errors"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cat := Default()
	if cat.Len() != 34 {
		t.Errorf("expected 34 regulators, got %d", cat.Len())
	}

	t.Run("lookup is case insensitive", func(t *testing.T) {
		t.Parallel()
		r, ok := cat.Lookup("cysec")
		if !ok {
			t.Fatal("expected CySEC to be found")
		}
		if r.Abbreviation != "CySEC" {
			t.Errorf("expected CySEC, got %s", r.Abbreviation)
		}
		if r.Tier != Tier2 {
			t.Errorf("expected Tier-2, got %s", r.Tier)
		}
	})

	t.Run("aliases resolve to canonical abbreviation", func(t *testing.T) {
		t.Parallel()
		tests := map[string]string{
			"IIROC":            "CIRO",
			"FSC (BVI)":        "FSC BVI",
			"fsc (mauritius)":  "FSC Mauritius",
			"FSA (Seychelles)": "FSA",
			"FSC (SEYCHELLES)": "FSA",
			"Unknown":          "Unknown",
		}
		for in, want := range tests {
			if got := cat.NormalizeAbbreviation(in); got != want {
				t.Errorf("NormalizeAbbreviation(%q) = %q, want %q", in, got, want)
			}
		}
	})

	t.Run("country", func(t *testing.T) {
		t.Parallel()
		tests := map[string]string{
			"FCA":   "UK",
			"CySEC": "EU/EEA",
			"FSCA":  "South Africa",
			"FSA":   "Seychelles",
			"NFA":   "United States",
			"MFSA":  "EU/EEA",
			"XYZ":   "",
		}
		for abbr, want := range tests {
			if got := cat.Country(abbr); got != want {
				t.Errorf("Country(%q) = %q, want %q", abbr, got, want)
			}
		}
	})

	t.Run("records returns a copy", func(t *testing.T) {
		t.Parallel()
		recs := cat.Records()
		recs[0].Abbreviation = "MUTATED"
		recs[0].JurisdictionTokens[0] = "zz"
		again := cat.Records()
		if again[0].Abbreviation != "FCA" || again[0].JurisdictionTokens[0] != "uk" {
			t.Errorf("catalog was mutated through Records(): %+v", again[0])
		}
	})

	t.Run("default returns independent instances", func(t *testing.T) {
		t.Parallel()
		if Default() == Default() {
			t.Error("expected distinct catalog instances")
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []Record
		wantErr error
	}{
		{
			name: "valid",
			records: []Record{
				{Abbreviation: "AAA", DisplayName: "A", Tier: Tier1},
				{Abbreviation: "BBB", DisplayName: "B", Tier: Tier3},
			},
		},
		{
			name: "duplicate abbreviation",
			records: []Record{
				{Abbreviation: "AAA", Tier: Tier1},
				{Abbreviation: "aaa", Tier: Tier2},
			},
			wantErr: ErrDuplicateAbbreviation,
		},
		{
			name: "alias collides with abbreviation",
			records: []Record{
				{Abbreviation: "AAA", Tier: Tier1},
				{Abbreviation: "BBB", Tier: Tier2, Aliases: []string{"AAA"}},
			},
			wantErr: ErrDuplicateAbbreviation,
		},
		{
			name:    "empty abbreviation",
			records: []Record{{Abbreviation: " ", Tier: Tier1}},
			wantErr: ErrEmptyAbbreviation,
		},
		{
			name:    "invalid tier",
			records: []Record{{Abbreviation: "AAA", Tier: "Tier-9"}},
			wantErr: ErrInvalidTier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.records...)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMustNewPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNew(Record{Abbreviation: "X", Tier: "bad"})
}

func TestRecordJurisdictionFallback(t *testing.T) {
	t.Parallel()

	r := Record{Abbreviation: "X", Tier: Tier1, JurisdictionTokens: []string{"qq"}}
	if got := r.Jurisdiction(); got != "QQ" {
		t.Errorf("expected QQ, got %q", got)
	}
	if got := TokenCountry("EU"); got != "EU/EEA" {
		t.Errorf("expected EU/EEA, got %q", got)
	}
}
