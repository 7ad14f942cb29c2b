package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrValidation = errors.New("validation")

// Recurrence is the machine code of a repetition rule.
type Recurrence string

const (
	Once      Recurrence = "once"
	Daily     Recurrence = "daily"
	Weekly    Recurrence = "weekly"
	Weekdays  Recurrence = "weekdays"
	MonWedFri Recurrence = "mon_wed_fri"
	TueThu    Recurrence = "tue_thu"
)

// Recurrences lists all codes in menu order.
func Recurrences() []Recurrence {
	return []Recurrence{Once, Daily, Weekly, Weekdays, MonWedFri, TueThu}
}

func (r Recurrence) Valid() bool {
	switch r {
	case Once, Daily, Weekly, Weekdays, MonWedFri, TueThu:
		return true
	}
	return false
}

func (r Recurrence) IsOnce() bool { return r == Once }

// DaySet returns the cron day-of-week field for recurring codes
// (empty for Once).
func (r Recurrence) DaySet() string {
	switch r {
	case Daily:
		return "*"
	case Weekly:
		return "SUN-SAT"
	case Weekdays:
		return "MON-FRI"
	case MonWedFri:
		return "MON,WED,FRI"
	case TueThu:
		return "TUE,THU"
	}
	return ""
}

// Label returns the human-facing Russian label shown in menus and lists.
func (r Recurrence) Label() string {
	switch r {
	case Once:
		return "Один раз"
	case Daily:
		return "Ежедневно"
	case Weekly:
		return "Еженедельно"
	case Weekdays:
		return "По будням"
	case MonWedFri:
		return "Пн, Ср, Пт"
	case TueThu:
		return "Вт, Чт"
	}
	return string(r)
}

// ParseRecurrence maps a code string to a Recurrence.
func ParseRecurrence(s string) (Recurrence, error) {
	r := Recurrence(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown recurrence %q", ErrValidation, s)
	}
	return r, nil
}

// TimeOfDay is a wall-clock minute, zone-independent.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses strict "HH:MM" (24h). "9:05" is accepted,
// out-of-range components are not.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || h == "" || len(h) > 2 || len(m) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time %q (want HH:MM)", ErrValidation, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid hour in %q", ErrValidation, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid minute in %q", ErrValidation, s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// AttachmentKind discriminates the optional comment payload.
type AttachmentKind string

const (
	AttachNone     AttachmentKind = ""
	AttachText     AttachmentKind = "text"
	AttachPhoto    AttachmentKind = "photo"
	AttachDocument AttachmentKind = "document"
)

// Attachment is the optional extra payload delivered after the reminder text.
// Photo and document attachments are stored as Telegram file ids and re-sent
// without re-uploading.
type Attachment struct {
	Kind     AttachmentKind `json:"kind,omitempty"`
	Text     string         `json:"text,omitempty"`
	FileID   string         `json:"file_id,omitempty"`
	FileName string         `json:"file_name,omitempty"`
}

func (a Attachment) IsZero() bool { return a.Kind == AttachNone }

func (a Attachment) Validate() error {
	switch a.Kind {
	case AttachNone:
		if a.Text != "" || a.FileID != "" || a.FileName != "" {
			return fmt.Errorf("%w: attachment payload without kind", ErrValidation)
		}
	case AttachText:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("%w: text attachment is empty", ErrValidation)
		}
	case AttachPhoto, AttachDocument:
		if strings.TrimSpace(a.FileID) == "" {
			return fmt.Errorf("%w: %s attachment without file id", ErrValidation, a.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown attachment kind %q", ErrValidation, a.Kind)
	}
	return nil
}

// Reminder is one stored reminder record. JobID is the scheduling identity;
// OwnerID is the Telegram user (and chat) the reminder belongs to.
type Reminder struct {
	JobID      string     `json:"job_id"`
	OwnerID    int64      `json:"owner_id"`
	Text       string     `json:"text"`
	Time       TimeOfDay  `json:"time"`
	Recurrence Recurrence `json:"recurrence"`
	Attachment Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("%w: empty job id", ErrValidation)
	}
	if r.OwnerID == 0 {
		return fmt.Errorf("%w: empty owner id", ErrValidation)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: empty reminder text", ErrValidation)
	}
	if !r.Time.Valid() {
		return fmt.Errorf("%w: invalid time %s", ErrValidation, r.Time)
	}
	if !r.Recurrence.Valid() {
		return fmt.Errorf("%w: invalid recurrence %q", ErrValidation, r.Recurrence)
	}
	return r.Attachment.Validate()
}
