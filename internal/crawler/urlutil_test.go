package crawler

import (
	"testing"

	"github.com/nao1215/brokersafety/internal/model"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds root path", "https://Broker.Example", "https://broker.example/"},
		{"strips fragment", "https://broker.example/legal#risk", "https://broker.example/legal"},
		{"drops default port", "https://broker.example:443/terms", "https://broker.example/terms"},
		{"keeps other port", "http://127.0.0.1:8080/terms", "http://127.0.0.1:8080/terms"},
		{"drops user info", "https://user:pw@broker.example/", "https://broker.example/"},
		{"lowercases scheme", "HTTPS://broker.example/Legal", "https://broker.example/Legal"},
		{"keeps query", "https://broker.example/doc?id=7", "https://broker.example/doc?id=7"},
		{"rejects relative", "/legal", ""},
		{"rejects other schemes", "ftp://broker.example/terms", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		origin    string
		candidate string
		want      bool
	}{
		{"same host", "https://broker.example", "https://broker.example/legal", true},
		{"www and apex", "https://www.broker.example", "https://broker.example/legal", true},
		{"subdomain", "https://broker.example", "https://docs.broker.example/risk.pdf", true},
		{"multi-label suffix", "https://www.broker.co.uk", "https://legal.broker.co.uk/", true},
		{"different registrable domain", "https://broker.co.uk", "https://other.co.uk/", false},
		{"different site", "https://broker.example", "https://twitter.com/broker", false},
		{"same IP", "http://127.0.0.1:8080", "http://127.0.0.1:9090/x", true},
		{"different IP", "http://127.0.0.1", "http://127.0.0.2/x", false},
		{"invalid candidate", "https://broker.example", "::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SameSite(tt.origin, tt.candidate); got != tt.want {
				t.Errorf("SameSite(%q, %q) = %v, want %v", tt.origin, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestURLKinds(t *testing.T) {
	t.Parallel()

	if !IsDocument("https://broker.example/files/Risk.PDF") {
		t.Error("expected PDF to be a document")
	}
	if IsDocument("https://broker.example/legal") {
		t.Error("expected page not to be a document")
	}
	if !IsBinaryAsset("https://broker.example/static/logo.svg") {
		t.Error("expected svg to be a binary asset")
	}
	if !IsJSONEndpoint("https://broker.example/api/entities.json?v=2") {
		t.Error("expected JSON endpoint")
	}
	if got := Origin("https://Broker.Example/legal?x=1"); got != "https://broker.example" {
		t.Errorf("unexpected origin %q", got)
	}
	if got := Origin("mailto:a@b.c"); got != "" {
		t.Errorf("expected empty origin, got %q", got)
	}
}

func TestFrontierOrder(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	f.push(model.CandidateURL{URL: "a", Score: 1})
	f.push(model.CandidateURL{URL: "b", Score: 6})
	f.push(model.CandidateURL{URL: "c", Score: 6})
	f.push(model.CandidateURL{URL: "d", Score: 12})

	var got []string
	for f.len() > 0 {
		c, _ := f.pop()
		got = append(got, c.URL)
	}
	want := []string{"d", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if _, ok := f.pop(); ok {
		t.Error("expected empty frontier")
	}
}
