// Package database provides SQLite-based local history for brokersafety.
//
// The HistoryDB stores:
//   - Safety reports as JSON, with a regulator summary per report
//   - The licensed entities of every report, queryable by regulator
//   - Cached fetch responses, exposed as a fetch.Cache
//
// SQLite is used through modernc.org/sqlite, a CGO-free driver, so the
// history is a single file in the data directory and the binary
// cross-compiles without a C toolchain.
package database
