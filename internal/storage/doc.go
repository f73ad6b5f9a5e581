// Package storage persists task collections.
//
// Drivers:
//   - "csv":    one task per line: name,description,deadline,completed
//   - "json":   a JSON array of records
//   - "yaml":   a YAML sequence of records
//   - "sqlite": a SQLite database file (modernc.org/sqlite, pure Go)
//
// File drivers replace the whole file on Save (write to a temp file, then
// rename). Load skips malformed records with a warning instead of failing.
package storage
