package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,

	// Authentication
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"api-key":       true,
	"access_token":  true,
	"refresh_token": true,
	"private_key":   true,
	"secret_key":    true,

	// Session
	"session":    true,
	"session_id": true,
	"sessionid":  true,
	"sid":        true,
	"jsessionid": true,

	// Credentials
	"credential":  true,
	"credentials": true,
	"auth":        true,
	"proxy_user":  true,
}

// sensitiveQueryParams are query parameters masked inside logged URLs.
// Broker sites put affiliate tokens and signed download links in the
// query string of legal document URLs.
var sensitiveQueryParams = map[string]bool{
	"token":            true,
	"access_token":     true,
	"refresh_token":    true,
	"auth":             true,
	"key":              true,
	"api_key":          true,
	"apikey":           true,
	"password":         true,
	"pass":             true,
	"secret":           true,
	"session":          true,
	"sessionid":        true,
	"sid":              true,
	"sig":              true,
	"signature":        true,
	"x-amz-signature":  true,
	"x-amz-credential": true,
	"code":             true,
}

// sensitivePatterns contains regex patterns that indicate a whole value is
// secret regardless of its key.
var sensitivePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// API keys (common formats)
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),

	// AWS access keys
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),

	// Private key markers
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// hexDigest matches content hashes, which look like API keys but are not secret.
var hexDigest = regexp.MustCompile(`^[0-9a-f]{32,128}$`)

// urlPattern finds URLs embedded in free text such as error messages.
var urlPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"'<>]+`)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and sanitizes attributes before they
// reach it. Values under sensitive keys are masked entirely. URLs inside
// string and error values keep their host and path but lose userinfo
// passwords and sensitive query parameters, so proxy credentials and signed
// document links never reach the log.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it to the underlying handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, RedactURLs(r.Message), r.PC)

	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})

	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes sanitized and added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = h.sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

// sanitizeAttr sanitizes a single attribute, recursively handling groups.
func (h *SecureHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = h.sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		strVal := a.Value.String()
		if isSensitiveValue(strVal) {
			return slog.String(a.Key, MaskValue)
		}
		if redacted := RedactURLs(strVal); redacted != strVal {
			return slog.String(a.Key, redacted)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactURLs(msg); redacted != msg {
				return slog.String(a.Key, redacted)
			}
		}
	}

	return a
}

// containsSensitiveKeyword checks if the key contains sensitive keywords.
// The bare "key" keyword is excluded because it causes false positives
// ("cache_key", "monkey"). "seed" is excluded because seed URLs are a
// normal crawl input here.
func containsSensitiveKeyword(key string) bool {
	sensitiveKeywords := []string{
		"password", "passwd", "secret", "token", "auth",
		"credential", "private", "cookie",
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// isSensitiveValue checks if a value matches sensitive patterns.
func isSensitiveValue(value string) bool {
	if hexDigest.MatchString(value) {
		return false
	}
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactURLs masks userinfo passwords and sensitive query parameters of every
// URL found in s. Text that is not a URL is returned unchanged.
func RedactURLs(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, redactURL)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		query := u.Query()
		for name := range query {
			if sensitiveQueryParams[strings.ToLower(name)] {
				query.Set(name, MaskValue)
				changed = true
			}
		}
		if changed {
			u.RawQuery = query.Encode()
		}
	}

	if !changed {
		return raw
	}
	// Keep the mask readable instead of percent-encoded.
	return strings.ReplaceAll(u.String(), url.QueryEscape(MaskValue), MaskValue)
}

// NewSecureLogger creates a new slog.Logger writing sanitized text records
// to w. verbose selects the debug level; otherwise only warnings and errors
// are written.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a new slog.Logger writing sanitized JSON
// records to w.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
