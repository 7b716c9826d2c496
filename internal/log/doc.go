// Package log provides secure logging built on top of the standard slog
// package.
//
// The SecureHandler masks values under sensitive keys (cookies, authorization
// headers, tokens) and rewrites URLs found in string and error values so that
// proxy passwords and signed query parameters never reach the log. Host and
// path stay visible, which keeps crawl logs useful for debugging.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
// The same logger is handed to tornago when the embedded Tor daemon is used.
package log
