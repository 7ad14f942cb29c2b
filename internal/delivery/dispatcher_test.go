package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sentItem struct {
	kind string // text | photo | document
	text string
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentItem
	textErr error
	attErr  error
}

func (a *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                           { return nil }

func (a *fakeAdapter) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		if a.textErr != nil {
			return transport.MessageRef{}, a.textErr
		}
	} else if a.attErr != nil {
		return transport.MessageRef{}, a.attErr
	}
	a.sent = append(a.sent, sentItem{kind: "text", text: text})
	return transport.MessageRef{ChatID: 1, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) SendPhoto(_ context.Context, _ transport.ChatTarget, _ transport.PhotoRef, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attErr != nil {
		return transport.MessageRef{}, a.attErr
	}
	a.sent = append(a.sent, sentItem{kind: "photo", text: caption})
	return transport.MessageRef{}, nil
}

func (a *fakeAdapter) SendDocument(_ context.Context, _ transport.ChatTarget, _ transport.DocumentRef, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attErr != nil {
		return transport.MessageRef{}, a.attErr
	}
	a.sent = append(a.sent, sentItem{kind: "document", text: caption})
	return transport.MessageRef{}, nil
}

func (a *fakeAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}
func (a *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (a *fakeAdapter) items() []sentItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentItem(nil), a.sent...)
}

func testFiredReminder() reminder.Reminder {
	return reminder.Reminder{
		JobID:      "job-1",
		OwnerID:    42,
		Text:       "выключить духовку",
		Time:       reminder.TimeOfDay{Hour: 18},
		Recurrence: reminder.Once,
		CreatedAt:  time.Now(),
	}
}

func TestFireMessage(t *testing.T) {
	t.Parallel()
	msk, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	now := time.Date(2024, 5, 1, 15, 4, 0, 0, time.UTC) // 18:04 in Moscow
	got := FireMessage(testFiredReminder(), msk, now)
	want := "⏰ Напоминание: выключить духовку\n🕒 Ваше время: 18:04 (Europe/Moscow)"
	if got != want {
		t.Fatalf("FireMessage = %q, want %q", got, want)
	}
}

func TestFireMessageNilLocation(t *testing.T) {
	t.Parallel()
	got := FireMessage(testFiredReminder(), nil, time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC))
	if !strings.Contains(got, "15:00 (UTC)") {
		t.Fatalf("nil location not rendered as UTC: %q", got)
	}
}

func TestDeliverPlain(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	d := NewTelegram(ad, 100, logx.Nop())

	if res := d.Deliver(context.Background(), testFiredReminder(), time.UTC); res != ResultOK {
		t.Fatalf("Deliver = %v, want ok", res)
	}
	items := ad.items()
	if len(items) != 1 || items[0].kind != "text" {
		t.Fatalf("sent %+v, want one text", items)
	}
	if !strings.HasPrefix(items[0].text, "⏰ Напоминание: ") {
		t.Fatalf("unexpected message: %q", items[0].text)
	}
}

func TestDeliverWithAttachments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		att  reminder.Attachment
		kind string
	}{
		{name: "text", att: reminder.Attachment{Kind: reminder.AttachText, Text: "захвати ключи"}, kind: "text"},
		{name: "photo", att: reminder.Attachment{Kind: reminder.AttachPhoto, FileID: "AgAC1"}, kind: "photo"},
		{name: "document", att: reminder.Attachment{Kind: reminder.AttachDocument, FileID: "BQAC1", FileName: "список.txt"}, kind: "document"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ad := &fakeAdapter{}
			d := NewTelegram(ad, 100, logx.Nop())
			r := testFiredReminder()
			r.Attachment = tt.att

			if res := d.Deliver(context.Background(), r, time.UTC); res != ResultOK {
				t.Fatalf("Deliver = %v, want ok", res)
			}
			items := ad.items()
			if len(items) != 2 {
				t.Fatalf("sent %d items, want 2", len(items))
			}
			if items[1].kind != tt.kind {
				t.Fatalf("attachment sent as %s, want %s", items[1].kind, tt.kind)
			}
			if !strings.HasPrefix(items[1].text, "💬 Комментарий:") {
				t.Fatalf("attachment without comment header: %q", items[1].text)
			}
		})
	}
}

func TestDeliverClassifiesErrors(t *testing.T) {
	t.Parallel()
	gone := fmt.Errorf("%w: blocked by the user", transport.ErrRecipientGone)

	ad := &fakeAdapter{textErr: gone}
	d := NewTelegram(ad, 100, logx.Nop())
	if res := d.Deliver(context.Background(), testFiredReminder(), time.UTC); res != ResultPermanent {
		t.Fatalf("gone recipient: Deliver = %v, want permanent", res)
	}

	ad = &fakeAdapter{textErr: errors.New("telegram: internal server error (500)")}
	d = NewTelegram(ad, 100, logx.Nop())
	if res := d.Deliver(context.Background(), testFiredReminder(), time.UTC); res != ResultTransient {
		t.Fatalf("server error: Deliver = %v, want transient", res)
	}
}

func TestDeliverAttachmentFailureDoesNotFailDelivery(t *testing.T) {
	t.Parallel()
	// The reminder text arrived; a flaky attachment must not trigger a
	// permanent-path cleanup or make a once reminder look undelivered.
	ad := &fakeAdapter{attErr: errors.New("telegram: file is too big")}
	d := NewTelegram(ad, 100, logx.Nop())
	r := testFiredReminder()
	r.Attachment = reminder.Attachment{Kind: reminder.AttachPhoto, FileID: "AgAC1"}

	if res := d.Deliver(context.Background(), r, time.UTC); res != ResultOK {
		t.Fatalf("Deliver = %v, want ok", res)
	}

	// Unless the failure says the recipient is gone for good.
	ad = &fakeAdapter{attErr: fmt.Errorf("%w: deactivated", transport.ErrRecipientGone)}
	d = NewTelegram(ad, 100, logx.Nop())
	if res := d.Deliver(context.Background(), r, time.UTC); res != ResultPermanent {
		t.Fatalf("Deliver = %v, want permanent", res)
	}
}

func TestDeliverCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewTelegram(&fakeAdapter{}, 1, logx.Nop())
	if res := d.Deliver(ctx, testFiredReminder(), time.UTC); res != ResultTransient {
		t.Fatalf("Deliver on dead context = %v, want transient", res)
	}
}
