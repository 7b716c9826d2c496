// Package main provides the entry point for the brokersafety CLI.
//
// brokersafety crawls the public website of a retail trading broker and
// reports which regulators license it, through which legal entities, and
// where its legal documents live.
//
// Usage:
//
//	brokersafety crawl <homepage>
//	brokersafety history <homepage>
//	brokersafety regulators
//
// See --help for all available options.
package main

func main() {
	Execute()
}
