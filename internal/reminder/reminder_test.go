package reminder

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    TimeOfDay
		wantErr bool
	}{
		{name: "plain", raw: "09:30", want: TimeOfDay{Hour: 9, Minute: 30}},
		{name: "single digit hour", raw: "9:05", want: TimeOfDay{Hour: 9, Minute: 5}},
		{name: "midnight", raw: "00:00", want: TimeOfDay{}},
		{name: "last minute", raw: "23:59", want: TimeOfDay{Hour: 23, Minute: 59}},
		{name: "padded input", raw: " 12:00 ", want: TimeOfDay{Hour: 12}},
		{name: "hour overflow", raw: "24:00", wantErr: true},
		{name: "minute overflow", raw: "12:60", wantErr: true},
		{name: "single digit minute", raw: "12:5", wantErr: true},
		{name: "no colon", raw: "1230", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "words", raw: "полдень", wantErr: true},
		{name: "negative", raw: "-1:00", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeOfDay(%q) = %v, want error", tt.raw, got)
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("error %v is not ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	t.Parallel()
	if got := (TimeOfDay{Hour: 7, Minute: 5}).String(); got != "07:05" {
		t.Fatalf("String() = %q, want 07:05", got)
	}
}

func TestParseRecurrence(t *testing.T) {
	t.Parallel()
	for _, r := range Recurrences() {
		got, err := ParseRecurrence(string(r))
		if err != nil {
			t.Fatalf("ParseRecurrence(%q) error: %v", r, err)
		}
		if got != r {
			t.Fatalf("ParseRecurrence(%q) = %q", r, got)
		}
	}
	if got, err := ParseRecurrence(" Daily "); err != nil || got != Daily {
		t.Fatalf("ParseRecurrence with padding = %q, %v", got, err)
	}
	if _, err := ParseRecurrence("fortnightly"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRecurrenceDaySet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rec  Recurrence
		want string
	}{
		{Once, ""},
		{Daily, "*"},
		{Weekly, "SUN-SAT"},
		{Weekdays, "MON-FRI"},
		{MonWedFri, "MON,WED,FRI"},
		{TueThu, "TUE,THU"},
	}
	for _, tt := range tests {
		if got := tt.rec.DaySet(); got != tt.want {
			t.Fatalf("%s.DaySet() = %q, want %q", tt.rec, got, tt.want)
		}
	}
}

func TestAttachmentValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		att     Attachment
		wantErr bool
	}{
		{name: "none", att: Attachment{}},
		{name: "text", att: Attachment{Kind: AttachText, Text: "купить хлеб"}},
		{name: "photo", att: Attachment{Kind: AttachPhoto, FileID: "AgAC123"}},
		{name: "document", att: Attachment{Kind: AttachDocument, FileID: "BQAC456", FileName: "план.pdf"}},
		{name: "empty text", att: Attachment{Kind: AttachText, Text: "  "}, wantErr: true},
		{name: "photo without file id", att: Attachment{Kind: AttachPhoto}, wantErr: true},
		{name: "payload without kind", att: Attachment{Text: "orphan"}, wantErr: true},
		{name: "unknown kind", att: Attachment{Kind: "sticker", FileID: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.att.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestReminderValidate(t *testing.T) {
	t.Parallel()
	valid := Reminder{
		JobID:      "reminder_42_abc",
		OwnerID:    42,
		Text:       "позвонить маме",
		Time:       TimeOfDay{Hour: 18, Minute: 30},
		Recurrence: Daily,
		CreatedAt:  time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid reminder rejected: %v", err)
	}

	broken := []func(r *Reminder){
		func(r *Reminder) { r.JobID = "" },
		func(r *Reminder) { r.OwnerID = 0 },
		func(r *Reminder) { r.Text = "   " },
		func(r *Reminder) { r.Time = TimeOfDay{Hour: 25} },
		func(r *Reminder) { r.Recurrence = "sometimes" },
		func(r *Reminder) { r.Attachment = Attachment{Kind: AttachText} },
	}
	for i, mutate := range broken {
		r := valid
		mutate(&r)
		if err := r.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}
