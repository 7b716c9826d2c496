package crawler

import (
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize normalizes rawURL for deduplication: lowercase scheme and host,
// default ports dropped, fragment stripped, empty path made "/". It returns
// "" for anything that is not an absolute http(s) URL.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return canonical(u)
}

func canonical(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return ""
	}
	c := *u
	c.Scheme = scheme
	c.Host = strings.ToLower(c.Host)
	if port := c.Port(); (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		c.Host = c.Hostname()
	}
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	if c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return c.String()
}

// resolveHref resolves href against base, rejecting empty, fragment-only and
// non-navigational schemes.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "sms:", "whatsapp:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return canonical(u)
	}
	return canonical(base.ResolveReference(u))
}

// Origin returns scheme://host of rawURL, or "".
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return scheme + "://" + strings.ToLower(u.Host)
}

// SameSite reports whether candidate is on the same site as origin: equal
// hosts, or hosts sharing the registrable domain (eTLD+1). IP hosts must be
// equal.
func SameSite(origin, candidate string) bool {
	ou, err := url.Parse(origin)
	if err != nil {
		return false
	}
	cu, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	oh := strings.ToLower(ou.Hostname())
	ch := strings.ToLower(cu.Hostname())
	if oh == "" || ch == "" {
		return false
	}
	if oh == ch {
		return true
	}
	if net.ParseIP(oh) != nil || net.ParseIP(ch) != nil {
		return false
	}
	oroot, err := publicsuffix.EffectiveTLDPlusOne(oh)
	if err != nil {
		return false
	}
	croot, err := publicsuffix.EffectiveTLDPlusOne(ch)
	if err != nil {
		return false
	}
	return oroot == croot
}

// extension returns the lowercased path extension without the dot.
func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
}

// IsDocument reports whether rawURL points at a document such as a PDF.
func IsDocument(rawURL string) bool {
	return documentExtensions[extension(rawURL)]
}

// IsBinaryAsset reports whether rawURL points at an image, style, script,
// archive or media file.
func IsBinaryAsset(rawURL string) bool {
	return binaryExtensions[extension(rawURL)]
}

// IsJSONEndpoint reports whether rawURL names a .json resource.
func IsJSONEndpoint(rawURL string) bool {
	return extension(rawURL) == "json"
}
