// Package links classifies the anchors gathered during a crawl into the
// document slots of a safety record: terms, risk disclosure, client
// agreement, open account and privacy.
//
// Three passes run in priority order. The first matches the folded anchor
// label against localized phrase sets, the second matches words of the URL
// path, and the third falls back to plain substrings of the URL. Within a
// pass anchors are visited in traversal order. The first hit fills a slot and
// later hits never replace it.
package links
