// Package crawler discovers and fetches the regulatory pages of a broker site.
//
// # Architecture
//
// The package is built around the Spider type, which coordinates one bounded
// crawl:
//
//  1. The homepage is fetched first. Its anchors, hreflang alternates and
//     embedded script state feed the Generator.
//  2. The Generator combines seeds, homepage anchors, well-known legal paths
//     under each locale prefix, sitemap entries and embedded URLs into a
//     deduplicated list of same-site candidates, each with a heuristic score.
//  3. Candidates enter a priority frontier. A small worker pool fetches them
//     best-first until the frontier drains, the page budget is spent, or the
//     context ends.
//  4. Each HTML page is reduced by the Parser to visible text, labeled anchors
//     and embedded strings. Regulatory-looking anchors are followed while the
//     depth limit allows. Document links are recorded rather than parsed.
//
// # Bounds
//
// Every URL admitted for fetching is charged against the page budget and
// recorded as a tried path, so the tried paths never outnumber the budget.
// Link depth counts from the seed layer: depth 0 fetches seeds and generated
// candidates only. Only hosts sharing the origin's registrable domain are
// crawled.
//
// # Failures
//
// A failed fetch is counted and recorded but never aborts the crawl. Pages
// fetched before the context ends are kept.
//
// # Usage
//
//	client := fetch.New(fetch.WithTimeout(25 * time.Second))
//	spider := crawler.NewSpider(client, crawler.WithWorkers(4))
//	result, err := spider.Crawl(ctx, model.NewCrawlRequest("https://broker.example"))
package crawler
