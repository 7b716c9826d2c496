// Package safety provides the extraction strategies that turn a crawl
// request into a safety report.
//
// Two strategies exist:
//   - HeuristicCrawlExtractor crawls the broker site and derives the record
//     from what it finds.
//   - FixedFactExtractor returns curated facts for a known broker, embedded
//     as YAML fact sheets, optionally verifying its links and filling gaps
//     from a heuristic crawl.
//
// A Registry selects the strategy for a request by broker id or homepage
// host and falls back to the heuristic crawl. Every strategy returns a
// non-nil report, even together with an error.
package safety
