package crawler

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// Sitemap discovery bounds.
const (
	// DefaultSitemapLimit caps <loc> entries taken from sitemaps.
	DefaultSitemapLimit = 24

	// maxSitemapDocuments caps sitemap files fetched, indexes included.
	maxSitemapDocuments = 6
)

// fallbackSitemaps are probed when robots.txt names none.
var fallbackSitemaps = []string{"/sitemap.xml", "/wp-sitemap.xml"}

type sitemapIndex struct {
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Location string `xml:"loc"`
}

type urlSet struct {
	URLs []urlEntry `xml:"url"`
}

type urlEntry struct {
	Location string `xml:"loc"`
}

// FetchRobots fetches and parses origin/robots.txt. It returns nil when the
// file is missing or unparseable; callers treat nil as "allow everything".
func FetchRobots(ctx context.Context, f Fetcher, origin string) *robotstxt.RobotsData {
	resp, err := f.Get(ctx, origin+"/robots.txt")
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		return nil
	}
	return robots
}

// DiscoverSitemapURLs reads the sitemaps named in robots (or the well-known
// fallbacks), follows one level of sitemap index and returns up to limit
// same-site <loc> entries matching the regulatory filter.
func DiscoverSitemapURLs(ctx context.Context, f Fetcher, origin string, robots *robotstxt.RobotsData, limit int) []string {
	if limit <= 0 {
		limit = DefaultSitemapLimit
	}

	var queue []string
	if robots != nil {
		queue = append(queue, robots.Sitemaps...)
	}
	if len(queue) == 0 {
		for _, p := range fallbackSitemaps {
			queue = append(queue, origin+p)
		}
	}

	out := newOrderedSet()
	visited := make(map[string]bool)
	fetched := 0
	for len(queue) > 0 && fetched < maxSitemapDocuments && len(out.items) < limit {
		if ctx.Err() != nil {
			break
		}
		sm := strings.TrimSpace(queue[0])
		queue = queue[1:]
		if sm == "" || visited[sm] || !SameSite(origin, sm) {
			continue
		}
		visited[sm] = true
		fetched++

		resp, err := f.Get(ctx, sm)
		if err != nil {
			continue
		}
		children, locs := parseSitemap(resp.Body)
		queue = append(queue, prioritizeSitemaps(children)...)
		for _, loc := range locs {
			if len(out.items) >= limit {
				break
			}
			if !sitemapFilter.MatchString(loc) || !SameSite(origin, loc) {
				continue
			}
			out.add(Canonicalize(loc))
		}
	}
	return out.items
}

// parseSitemap returns child sitemaps of an index, or the <loc> entries of a
// urlset. Malformed XML yields nothing.
func parseSitemap(data []byte) (children, locs []string) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Location); loc != "" {
				children = append(children, loc)
			}
		}
		return children, nil
	}

	var set urlSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, nil
	}
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Location); loc != "" {
			locs = append(locs, loc)
		}
	}
	return nil, locs
}

// prioritizeSitemaps moves child sitemaps whose name suggests legal or page
// content to the front.
func prioritizeSitemaps(children []string) []string {
	var first, rest []string
	for _, c := range children {
		lc := strings.ToLower(c)
		if sitemapFilter.MatchString(lc) || strings.Contains(lc, "page") {
			first = append(first, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(first, rest...)
}

// RobotsAllow reports whether robots permits agent to fetch rawURL.
// A nil robots allows everything.
func RobotsAllow(robots *robotstxt.RobotsData, rawURL, agent string) bool {
	if robots == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return robots.TestAgent(p, agent)
}
