// Package storage persists reminder records and per-user timezones.
//
// Two drivers:
//   - "file": dependency-free jsonl journal + periodic snapshot (default)
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// The store is the durable source of truth: the scheduling engine is
// rebuilt from it on every start.
package storage
