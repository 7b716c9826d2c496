// Package fetch provides the bounded HTTP GET used by the crawler.
//
// Every call carries its own timeout and returns either a Response or a
// typed *Error describing the failure (timeout, non-2xx status, network,
// body read, cancellation). Errors never escape as panics and the caller
// decides whether a failure matters; the crawler records it and moves on.
//
// A Client is safe for concurrent use. Optional collaborators:
//   - Cache: an in-memory LRU (MemoryCache) or the SQLite history database
//   - a per-host rate limit (golang.org/x/time/rate)
//   - a custom transport, e.g. SOCKS5 egress from the tor package
//
// Response bodies are read through a size limit, gunzipped when the URL or
// magic bytes say so, and transcoded to UTF-8 for text content types.
package fetch
