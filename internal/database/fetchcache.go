package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/brokersafety/internal/fetch"
)

// FetchCache is a fetch.Cache backed by the fetches table. Entries older
// than its TTL are treated as missing.
type FetchCache struct {
	h      *HistoryDB
	ttl    time.Duration
	logger *slog.Logger
}

var _ fetch.Cache = (*FetchCache)(nil)

// FetchCache returns a cache over the fetches table. A ttl of zero or less
// keeps entries forever.
func (h *HistoryDB) FetchCache(ttl time.Duration) *FetchCache {
	return &FetchCache{h: h, ttl: ttl, logger: slog.Default()}
}

// Get returns the cached response for rawURL when it is fresh.
func (c *FetchCache) Get(ctx context.Context, rawURL string) (*fetch.Response, bool) {
	query := `
	SELECT final_url, status_code, content_type, body, hash, fetched_at
	FROM fetches WHERE url = ?
	`

	var (
		resp      = &fetch.Response{URL: rawURL}
		finalURL  sql.NullString
		ctype     sql.NullString
		hash      sql.NullString
		fetchedAt int64
	)
	err := c.h.db.QueryRowContext(ctx, query, rawURL).Scan(
		&finalURL, &resp.StatusCode, &ctype, &resp.Body, &hash, &fetchedAt,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Debug("fetch cache lookup failed", "url", rawURL, "error", err)
		}
		return nil, false
	}
	if c.ttl > 0 && time.Since(time.Unix(0, fetchedAt)) > c.ttl {
		return nil, false
	}

	resp.FinalURL = finalURL.String
	resp.ContentType = ctype.String
	resp.Hash = hash.String
	resp.FromCache = true
	return resp, true
}

// Put stores resp under rawURL, replacing any previous entry.
func (c *FetchCache) Put(ctx context.Context, rawURL string, resp *fetch.Response) {
	if resp == nil {
		return
	}
	query := `
	INSERT INTO fetches (url, final_url, status_code, content_type, body, hash, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		final_url = excluded.final_url,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		body = excluded.body,
		hash = excluded.hash,
		fetched_at = excluded.fetched_at
	`
	_, err := c.h.db.ExecContext(ctx, query,
		rawURL, resp.FinalURL, resp.StatusCode, resp.ContentType, resp.Body, resp.Hash, time.Now().UnixNano(),
	)
	if err != nil {
		c.logger.Debug("fetch cache store failed", "url", rawURL, "error", err)
	}
}

// Prune deletes entries older than the TTL and returns how many were removed.
func (c *FetchCache) Prune(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-c.ttl).UnixNano()
	result, err := c.h.db.ExecContext(ctx, `DELETE FROM fetches WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
