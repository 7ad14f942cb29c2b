//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutReminder(ctx context.Context, r reminder.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(job_id, owner_id, text, fire_time, recurrence, attach_kind, attach_text, attach_file_id, attach_file_name, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   text=excluded.text,
		   fire_time=excluded.fire_time,
		   recurrence=excluded.recurrence,
		   attach_kind=excluded.attach_kind,
		   attach_text=excluded.attach_text,
		   attach_file_id=excluded.attach_file_id,
		   attach_file_name=excluded.attach_file_name`,
		r.JobID, r.OwnerID, r.Text, r.Time.String(), string(r.Recurrence),
		nullStr(string(r.Attachment.Kind)), nullStr(r.Attachment.Text),
		nullStr(r.Attachment.FileID), nullStr(r.Attachment.FileName),
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE job_id = ?`, jobID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const reminderColumns = `job_id, owner_id, text, fire_time, recurrence, attach_kind, attach_text, attach_file_id, attach_file_name, created_at`

func (s *sqliteStore) GetReminder(ctx context.Context, jobID string) (reminder.Reminder, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE job_id = ?`, jobID)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, false, nil
	}
	if err != nil {
		return reminder.Reminder{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? ORDER BY created_at, job_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders ORDER BY created_at, job_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) SetTimezone(ctx context.Context, ownerID int64, zone string) error {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return errors.New("timezone is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_timezones(owner_id, timezone) VALUES(?,?)
		 ON CONFLICT(owner_id) DO UPDATE SET timezone=excluded.timezone`,
		ownerID, zone,
	)
	return err
}

func (s *sqliteStore) GetTimezone(ctx context.Context, ownerID int64) (string, bool, error) {
	var zone string
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM user_timezones WHERE owner_id = ?`, ownerID).Scan(&zone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return zone, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (reminder.Reminder, error) {
	var (
		r          reminder.Reminder
		fireTime   string
		recurrence string
		kind       sql.NullString
		attText    sql.NullString
		fileID     sql.NullString
		fileName   sql.NullString
		createdAt  string
	)
	if err := row.Scan(&r.JobID, &r.OwnerID, &r.Text, &fireTime, &recurrence, &kind, &attText, &fileID, &fileName, &createdAt); err != nil {
		return reminder.Reminder{}, err
	}
	tod, err := reminder.ParseTimeOfDay(fireTime)
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("corrupt fire_time for %s: %w", r.JobID, err)
	}
	r.Time = tod
	r.Recurrence = reminder.Recurrence(recurrence)
	r.Attachment = reminder.Attachment{
		Kind:     reminder.AttachmentKind(kind.String),
		Text:     attText.String,
		FileID:   fileID.String,
		FileName: fileName.String,
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

func collectReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	out := make([]reminder.Reminder, 0, 8)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
