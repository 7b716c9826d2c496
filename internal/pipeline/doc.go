// Package pipeline executes the steps of one safety extraction in sequence.
//
// A heuristic extraction is four steps over a shared model.SafetyScan:
// crawl, detect, classify links and normalize. Each step is a Step that
// receives the scan and extends it. The last three are Finalizer steps, so
// when the deadline ends the crawl they still run on the pages collected so
// far and the scan always ends with a record.
//
// BatchProcessor runs many requests with bounded concurrency using errgroup.
// Requests share only what the caller's RunFunc closes over, typically the
// immutable regulator catalog and a fetch client with its cache.
package pipeline
