package storage

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by the service layer.
//
// PutReminder upserts by job id. DeleteReminder of an unknown id returns
// ErrNotFound. List results are ordered by creation time (stable across
// edits, which preserve CreatedAt).
type Store interface {
	PutReminder(ctx context.Context, r reminder.Reminder) error
	DeleteReminder(ctx context.Context, jobID string) error
	GetReminder(ctx context.Context, jobID string) (reminder.Reminder, bool, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error)
	ListAll(ctx context.Context) ([]reminder.Reminder, error)

	SetTimezone(ctx context.Context, ownerID int64, zone string) error
	GetTimezone(ctx context.Context, ownerID int64) (zone string, ok bool, err error)

	Close() error
}

// Open initializes the configured store. An empty driver defaults to "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
