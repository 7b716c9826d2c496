// Package model defines the core data structures used throughout brokersafety.
//
// This package contains the following main types:
//   - CrawlRequest: What to crawl and within which budgets
//   - CandidateURL, FetchedPage, Anchor: Crawl working memory
//   - DetectedEntity, Detection, DocumentLinks: Analysis results
//   - NormalizedSafetyRecord: The terminal artifact handed downstream
//   - SafetyScan: Per-invocation state threaded through pipeline steps
//   - SafetyReport: The record plus run metadata, written by reports and history
//
// The models are serializable to JSON for report output and database storage.
package model
