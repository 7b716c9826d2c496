package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/nao1215/brokersafety/internal/model"
)

// Defaults for a Client.
const (
	DefaultUserAgent      = "brokersafety/1.0 (+https://github.com/nao1215/brokersafety; safety facts crawler)"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-GB,en-US;q=0.9,en;q=0.8"
	DefaultMaxBodySize    = 5 * 1024 * 1024
	maxRedirects          = 10
)

// Response is a successfully fetched body.
type Response struct {
	// URL is the requested URL.
	URL string `json:"url"`

	// FinalURL is the URL after redirects.
	FinalURL string `json:"final_url"`

	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`

	// Body is decoded (gunzipped, UTF-8) and truncated to the size limit.
	Body []byte `json:"-"`

	// Hash is the SHA3-256 of Body.
	Hash string `json:"hash"`

	// FromCache is true when the response came from the cache.
	FromCache bool `json:"from_cache"`
}

// MediaType returns the lowercased media type without parameters.
func (r *Response) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(r.ContentType, ";")[0]))
	}
	return mt
}

// IsHTML reports whether the body is HTML, sniffing when the header is missing.
func (r *Response) IsHTML() bool {
	switch r.MediaType() {
	case "text/html", "application/xhtml+xml":
		return true
	case "":
		return strings.Contains(http.DetectContentType(r.Body), "text/html")
	default:
		return false
	}
}

// IsJSON reports whether the body is JSON.
func (r *Response) IsJSON() bool {
	mt := r.MediaType()
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsPDF reports whether the body is a PDF document.
func (r *Response) IsPDF() bool {
	return r.MediaType() == "application/pdf" || bytes.HasPrefix(r.Body, []byte("%PDF-"))
}

// Cache stores successful responses by URL.
type Cache interface {
	Get(ctx context.Context, rawURL string) (*Response, bool)
	Put(ctx context.Context, rawURL string, resp *Response)
}

// Client performs bounded GET requests.
type Client struct {
	httpClient     *http.Client
	timeout        time.Duration
	userAgent      string
	acceptLanguage string
	maxBodySize    int64
	headers        map[string]string
	cookie         string
	cache          Cache
	interval       time.Duration
	logger         *slog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-fetch timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithAcceptLanguage sets the Accept-Language header.
func WithAcceptLanguage(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.acceptLanguage = lang
		}
	}
}

// WithMaxBodySize limits how many bytes of a body are read.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithCookie sends a raw cookie string with every request.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithTransport replaces the HTTP transport, e.g. with SOCKS5 egress.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.httpClient.Transport = rt
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCache enables response caching.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithRateLimit spaces requests to the same host by at least interval.
func WithRateLimit(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
	c := &Client{
		httpClient: &http.Client{
			Jar: jar,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout:        model.DefaultTimeout,
		userAgent:      DefaultUserAgent,
		acceptLanguage: DefaultAcceptLanguage,
		maxBodySize:    DefaultMaxBodySize,
		headers:        make(map[string]string),
		logger:         slog.Default(),
		limiters:       make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-fetch timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get fetches rawURL within the per-fetch timeout. A non-2xx status is a
// failure. The returned error is always a *Error.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	if c.cache != nil {
		if resp, ok := c.cache.Get(ctx, rawURL); ok {
			cached := *resp
			cached.FromCache = true
			return &cached, nil
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("unsupported URL %q", rawURL)
		}
		return nil, &Error{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(ctx))
	defer cancel()

	if err := c.wait(fetchCtx, u.Host); err != nil {
		return nil, c.classify(ctx, rawURL, err)
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}
	c.setHeaders(req, u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		c.logger.Debug("fetch rejected", "url", rawURL, "status", resp.StatusCode)
		return nil, &Error{
			URL:        rawURL,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, c.classifyBody(ctx, rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := decodeBody(raw, u.Path, contentType, c.maxBodySize)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindBody, Err: err}
	}

	out := &Response{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Hash:        model.HashBody(body),
	}
	c.logger.Debug("fetched", "url", rawURL, "final_url", out.FinalURL, "status", out.StatusCode, "bytes", len(body))

	if c.cache != nil {
		c.cache.Put(ctx, rawURL, out)
	}
	return out, nil
}

type timeoutKey struct{}

// ContextWithTimeout bounds every fetch made with the returned context by d.
// The shorter of d and the client timeout wins. Non-positive d is ignored.
func ContextWithTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return context.WithValue(ctx, timeoutKey{}, d)
}

func (c *Client) timeoutFor(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok && d < c.timeout {
		return d
	}
	return c.timeout
}

func (c *Client) setHeaders(req *http.Request, u *url.URL) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("Accept-Language", c.acceptLanguage)
	req.Header.Set("Referer", u.Scheme+"://"+u.Host+"/")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.interval <= 0 {
		return nil
	}
	c.limitersMu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.interval), 1)
		c.limiters[host] = lim
	}
	c.limitersMu.Unlock()
	return lim.Wait(ctx)
}

// classify maps a transport error to a typed failure. parent is the caller's
// context; its cancellation wins over the per-fetch timeout.
func (c *Client) classify(parent context.Context, rawURL string, err error) *Error {
	if parent.Err() != nil {
		return &Error{URL: rawURL, Kind: KindCancelled, Err: parent.Err()}
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{URL: rawURL, Kind: KindTimeout, Err: err}
	}
	return &Error{URL: rawURL, Kind: KindNetwork, Err: err}
}

func (c *Client) classifyBody(parent context.Context, rawURL string, err error) *Error {
	fe := c.classify(parent, rawURL, err)
	if fe.Kind == KindNetwork {
		fe.Kind = KindBody
	}
	return fe
}

// decodeBody gunzips compressed sitemaps and transcodes text to UTF-8.
func decodeBody(raw []byte, path, contentType string, limit int64) ([]byte, error) {
	body := raw
	if isGzip(raw) && (strings.HasSuffix(strings.ToLower(path), ".gz") || strings.Contains(contentType, "gzip")) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		body, err = io.ReadAll(io.LimitReader(zr, limit))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
	}

	if !isText(contentType) {
		return body, nil
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, nil //nolint:nilerr // unknown charset, keep raw bytes
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body, nil //nolint:nilerr // partial decode, keep raw bytes
	}
	return decoded, nil
}

func isGzip(b []byte) bool {
	return len(b) > 2 && b[0] == 0x1f && b[1] == 0x8b
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}
