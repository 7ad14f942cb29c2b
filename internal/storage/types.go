package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed = errors.New("store closed")
	// ErrNotFound is returned by delete/get style operations that require
	// the record to exist.
	ErrNotFound = errors.New("reminder not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// An empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
