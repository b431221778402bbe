// Package database provides the SQLite job journal for the proxy
// generator.
//
// It stores:
//   - One row per finished proxy job (ready or failed), keyed by job id
//   - A small key/value metadata table (last cleanup time)
//
// Database implements proxy.Journal. The database uses WAL mode for
// concurrent reads and creates its schema on open.
package database
