package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of the full state)
//   - <prefix>.journal.jsonl (append-only journal since the snapshot)
//
// The journal is replayed over the snapshot on open and periodically
// compacted back into it.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	reminders map[string]reminder.Reminder
	timezones map[int64]string

	writes int
}

// compactEvery bounds journal growth between snapshots.
const compactEvery = 1000

type journalRecord struct {
	Op       string             `json:"op"` // put | del | tz
	Reminder *reminder.Reminder `json:"reminder,omitempty"`
	JobID    string             `json:"job_id,omitempty"`
	OwnerID  int64              `json:"owner_id,omitempty"`
	Zone     string             `json:"zone,omitempty"`
}

type snapshot struct {
	Reminders []reminder.Reminder `json:"reminders"`
	Timezones map[string]string   `json:"timezones"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./remindbot_store"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		reminders:    map[string]reminder.Reminder{},
		timezones:    map[int64]string{},
	}
	_ = s.loadSnapshot(snapPath)
	_ = s.replayJournal(journalPath)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf

	log.Debug("file store opened",
		logx.Int("reminders", len(s.reminders)),
		logx.Int("timezones", len(s.timezones)),
		logx.String("prefix", prefix),
	)
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	// Compact on close so the next open starts with an empty journal.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("compact on close failed", logx.Err(err))
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) PutReminder(ctx context.Context, r reminder.Reminder) error {
	_ = ctx
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "put", Reminder: &r}); err != nil {
		return err
	}
	s.reminders[r.JobID] = r
	return nil
}

func (s *fileStore) DeleteReminder(ctx context.Context, jobID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[jobID]; !ok {
		return ErrNotFound
	}
	if err := s.appendLocked(journalRecord{Op: "del", JobID: jobID}); err != nil {
		return err
	}
	delete(s.reminders, jobID)
	return nil
}

func (s *fileStore) GetReminder(ctx context.Context, jobID string) (reminder.Reminder, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[jobID]
	return r, ok, nil
}

func (s *fileStore) ListByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]reminder.Reminder, 0, 8)
	for _, r := range s.reminders {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	s.mu.Unlock()
	sortReminders(out)
	return out, nil
}

func (s *fileStore) ListAll(ctx context.Context) ([]reminder.Reminder, error) {
	_ = ctx
	s.mu.Lock()
	out := make([]reminder.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortReminders(out)
	return out, nil
}

func (s *fileStore) SetTimezone(ctx context.Context, ownerID int64, zone string) error {
	_ = ctx
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return errors.New("timezone is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "tz", OwnerID: ownerID, Zone: zone}); err != nil {
		return err
	}
	s.timezones[ownerID] = zone
	return nil
}

func (s *fileStore) GetTimezone(ctx context.Context, ownerID int64) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.timezones[ownerID]
	return z, ok, nil
}

// sortReminders orders by creation time (edits preserve CreatedAt, so the
// list a user sees keeps its numbering), job id as tiebreaker.
func sortReminders(rs []reminder.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].JobID < rs[j].JobID
	})
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{
		Reminders: make([]reminder.Reminder, 0, len(s.reminders)),
		Timezones: make(map[string]string, len(s.timezones)),
	}
	for _, r := range s.reminders {
		snap.Reminders = append(snap.Reminders, r)
	}
	sortReminders(snap.Reminders)
	for id, z := range s.timezones {
		snap.Timezones[strconv.FormatInt(id, 10)] = z
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Reminders {
		if r.JobID == "" {
			continue
		}
		s.reminders[r.JobID] = r
	}
	for k, z := range snap.Timezones {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		s.timezones[id] = z
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		switch rec.Op {
		case "put":
			if rec.Reminder != nil && rec.Reminder.JobID != "" {
				s.reminders[rec.Reminder.JobID] = *rec.Reminder
			}
		case "del":
			if rec.JobID != "" {
				delete(s.reminders, rec.JobID)
			}
		case "tz":
			if rec.OwnerID != 0 && rec.Zone != "" {
				s.timezones[rec.OwnerID] = rec.Zone
			}
		}
	}
	return sc.Err()
}
