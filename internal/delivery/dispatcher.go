// Package delivery owns the outbound side of a firing: message formatting,
// the global send rate limit and the permanent/transient failure split the
// service layer acts on.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Result int

const (
	ResultOK Result = iota
	// ResultTransient means the send failed but may succeed later; the next
	// occurrence is the retry.
	ResultTransient
	// ResultPermanent means the recipient is gone for good; the caller
	// should drop the reminder.
	ResultPermanent
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultTransient:
		return "transient"
	case ResultPermanent:
		return "permanent"
	}
	return "unknown"
}

// Dispatcher delivers one fired reminder to its owner.
type Dispatcher interface {
	Deliver(ctx context.Context, r reminder.Reminder, loc *time.Location) Result
}

const defaultRatePerSec = 25

// Telegram sends fired reminders through the chat transport, capped by a
// process-wide rate limiter (Telegram throttles bots around 30 msg/s).
type Telegram struct {
	adapter transport.Adapter
	log     logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewTelegram(adapter transport.Adapter, ratePerSec int, log logx.Logger) *Telegram {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// SetRate applies a new send cap at runtime (config reload).
func (d *Telegram) SetRate(perSec int) {
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	d.mu.Lock()
	d.limiter.SetLimit(rate.Limit(perSec))
	d.limiter.SetBurst(perSec)
	d.mu.Unlock()
}

// FireMessage renders the reminder text the user receives, with the firing
// time shown in the owner's zone.
func FireMessage(r reminder.Reminder, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return fmt.Sprintf("⏰ Напоминание: %s\n🕒 Ваше время: %s (%s)", r.Text, local.Format("15:04"), loc.String())
}

func (d *Telegram) Deliver(ctx context.Context, r reminder.Reminder, loc *time.Location) Result {
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Debug("delivery aborted before send", logx.String("job_id", r.JobID), logx.Err(err))
		return ResultTransient
	}

	to := transport.ChatTarget{ChatID: r.OwnerID}
	if _, err := d.adapter.SendText(ctx, to, FireMessage(r, loc, time.Now()), nil); err != nil {
		return d.classify(r, "text", err)
	}

	if res := d.deliverAttachment(ctx, r, to); res != ResultOK {
		return res
	}
	return ResultOK
}

// deliverAttachment sends the optional comment payload. A transient
// attachment failure does not fail the delivery (the reminder itself
// arrived); only a gone recipient is escalated.
func (d *Telegram) deliverAttachment(ctx context.Context, r reminder.Reminder, to transport.ChatTarget) Result {
	const commentHeader = "💬 Комментарий:"
	a := r.Attachment

	var err error
	switch a.Kind {
	case reminder.AttachNone:
		return ResultOK
	case reminder.AttachText:
		_, err = d.adapter.SendText(ctx, to, commentHeader+"\n"+a.Text, nil)
	case reminder.AttachPhoto:
		_, err = d.adapter.SendPhoto(ctx, to, transport.PhotoRef{FileID: a.FileID}, commentHeader, nil)
	case reminder.AttachDocument:
		_, err = d.adapter.SendDocument(ctx, to, transport.DocumentRef{FileID: a.FileID, FileName: a.FileName}, commentHeader, nil)
	default:
		d.log.Warn("unknown attachment kind", logx.String("job_id", r.JobID), logx.String("kind", string(a.Kind)))
		return ResultOK
	}
	if err == nil {
		return ResultOK
	}
	if errors.Is(err, transport.ErrRecipientGone) {
		return d.classify(r, "attachment", err)
	}
	d.log.Warn("attachment send failed", logx.String("job_id", r.JobID), logx.String("kind", string(a.Kind)), logx.Err(err))
	return ResultOK
}

func (d *Telegram) classify(r reminder.Reminder, stage string, err error) Result {
	if errors.Is(err, transport.ErrRecipientGone) {
		d.log.Info("recipient gone; delivery permanently failed",
			logx.String("job_id", r.JobID),
			logx.Int64("owner_id", r.OwnerID),
			logx.String("stage", stage),
			logx.Err(err),
		)
		return ResultPermanent
	}
	d.log.Warn("delivery failed",
		logx.String("job_id", r.JobID),
		logx.Int64("owner_id", r.OwnerID),
		logx.String("stage", stage),
		logx.Err(err),
	)
	return ResultTransient
}
