package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/service"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)

	// Cancel always wins, in any state.
	if text == btnCancel {
		r.resetSession(m.FromID)
		r.send(ctx, m.ChatID, msgCancelled, mainMenu())
		return
	}

	switch text {
	case "/start":
		r.resetSession(m.FromID)
		r.send(ctx, m.ChatID, fmt.Sprintf(msgGreeting, r.core.Timezone(ctx, m.FromID)), mainMenu())
		return
	case "/ping":
		r.send(ctx, m.ChatID, r.pingText(), nil)
		return
	}

	s := r.session(m.FromID)
	switch s.step {
	case stepIdle:
		r.handleMenu(ctx, m, text)
	case stepAwaitText:
		r.stepText(ctx, m, s, text)
	case stepAwaitTime:
		r.stepTime(ctx, m, s, text)
	case stepAwaitRecurrence:
		// Recurrence is picked on the inline keyboard; nudge and re-send it.
		r.send(ctx, m.ChatID, msgAskRecurrence, recurrenceMenu())
	case stepAwaitAttachment:
		r.stepAttachment(ctx, m, s, text)
	}
}

func (r *Router) handleMenu(ctx context.Context, m *transport.Message, text string) {
	switch text {
	case btnAdd:
		s := r.session(m.FromID)
		*s = session{step: stepAwaitText}
		r.send(ctx, m.ChatID, msgAskText, cancelMenu())

	case btnList:
		rs, err := r.core.List(ctx, m.FromID)
		if err != nil {
			r.log.Warn("list failed", logx.Int64("owner_id", m.FromID), logx.Err(err))
			r.send(ctx, m.ChatID, msgGenericFailure, mainMenu())
			return
		}
		if len(rs) == 0 {
			r.send(ctx, m.ChatID, msgListEmpty, mainMenu())
			return
		}
		r.send(ctx, m.ChatID, formatList(rs), mainMenu())

	case btnDelete:
		rs, err := r.core.List(ctx, m.FromID)
		if err != nil {
			r.log.Warn("list failed", logx.Int64("owner_id", m.FromID), logx.Err(err))
			r.send(ctx, m.ChatID, msgGenericFailure, mainMenu())
			return
		}
		if len(rs) == 0 {
			r.send(ctx, m.ChatID, msgDeleteEmpty, mainMenu())
			return
		}
		r.send(ctx, m.ChatID, msgAskDelete, deleteMenu(rs))

	case btnTimezone:
		r.send(ctx, m.ChatID, msgAskTimezone, timezoneMenu())

	case btnTest:
		if _, err := r.core.CreateTest(ctx, m.FromID); err != nil {
			r.log.Warn("test reminder failed", logx.Int64("owner_id", m.FromID), logx.Err(err))
			r.send(ctx, m.ChatID, msgGenericFailure, mainMenu())
			return
		}
		r.send(ctx, m.ChatID, msgTestCreated, mainMenu())

	default:
		r.send(ctx, m.ChatID, msgMenuHint, mainMenu())
	}
}

func (r *Router) stepText(ctx context.Context, m *transport.Message, s *session, text string) {
	if text == "" {
		r.send(ctx, m.ChatID, msgAskText, cancelMenu())
		return
	}
	s.draft.Text = text
	s.step = stepAwaitTime
	r.send(ctx, m.ChatID, msgAskTime, cancelMenu())
}

func (r *Router) stepTime(ctx context.Context, m *transport.Message, s *session, text string) {
	tod, err := reminder.ParseTimeOfDay(text)
	if err != nil {
		r.send(ctx, m.ChatID, msgBadTime, cancelMenu())
		return
	}
	s.draft.Time = tod
	s.step = stepAwaitRecurrence
	r.send(ctx, m.ChatID, msgAskRecurrence, recurrenceMenu())
}

func (r *Router) stepAttachment(ctx context.Context, m *transport.Message, s *session, text string) {
	switch {
	case text == btnSkip:
		s.draft.Attachment = reminder.Attachment{}
	case m.Photo != nil:
		s.draft.Attachment = reminder.Attachment{Kind: reminder.AttachPhoto, FileID: m.Photo.FileID}
	case m.Document != nil:
		s.draft.Attachment = reminder.Attachment{
			Kind:     reminder.AttachDocument,
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
		}
	case text != "":
		s.draft.Attachment = reminder.Attachment{Kind: reminder.AttachText, Text: text}
	default:
		r.send(ctx, m.ChatID, msgAskAttachment, attachmentMenu())
		return
	}
	r.finishCreate(ctx, m.ChatID, m.FromID, s.draft)
}

func (r *Router) finishCreate(ctx context.Context, chatID, ownerID int64, draft service.Draft) {
	r.resetSession(ownerID)
	created, err := r.core.Create(ctx, ownerID, draft)
	if err != nil {
		r.log.Warn("create failed", logx.Int64("owner_id", ownerID), logx.Err(err))
		r.send(ctx, chatID, msgCreateFailed, mainMenu())
		return
	}
	r.send(ctx, chatID, formatCreated(created), mainMenu())
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	switch {
	case cb.Data == cbBack:
		r.answer(ctx, cb.ID, "")
		r.edit(ctx, ref, msgCancelled)

	case strings.HasPrefix(cb.Data, cbRecurrence):
		s := r.session(cb.FromID)
		if s.step != stepAwaitRecurrence {
			r.answer(ctx, cb.ID, "")
			return
		}
		rec, err := reminder.ParseRecurrence(strings.TrimPrefix(cb.Data, cbRecurrence))
		if err != nil {
			r.answer(ctx, cb.ID, "")
			return
		}
		s.draft.Recurrence = rec
		s.step = stepAwaitAttachment
		r.answer(ctx, cb.ID, rec.Label())
		r.edit(ctx, ref, msgAskRecurrence+" "+rec.Label())
		r.send(ctx, cb.ChatID, msgAskAttachment, attachmentMenu())

	case strings.HasPrefix(cb.Data, cbTimezone):
		zone := strings.TrimPrefix(cb.Data, cbTimezone)
		if err := r.core.SetTimezone(ctx, cb.FromID, zone); err != nil {
			r.log.Warn("set timezone failed", logx.Int64("owner_id", cb.FromID), logx.String("zone", zone), logx.Err(err))
			r.answer(ctx, cb.ID, "")
			r.send(ctx, cb.ChatID, msgGenericFailure, mainMenu())
			return
		}
		r.answer(ctx, cb.ID, "Часовой пояс сохранён")
		r.edit(ctx, ref, fmt.Sprintf("🌍 Часовой пояс изменён на %s.", zone))

	case strings.HasPrefix(cb.Data, cbDelete):
		jobID := strings.TrimPrefix(cb.Data, cbDelete)
		err := r.core.Delete(ctx, cb.FromID, jobID)
		switch {
		case err == nil:
			r.answer(ctx, cb.ID, "Удалено")
			r.edit(ctx, ref, "✅ Напоминание удалено.")
		case errors.Is(err, service.ErrNotFound):
			r.answer(ctx, cb.ID, "Уже удалено")
			r.edit(ctx, ref, "Это напоминание уже удалено.")
		default:
			r.log.Warn("delete failed", logx.String("job_id", jobID), logx.Err(err))
			r.answer(ctx, cb.ID, "")
			r.send(ctx, cb.ChatID, msgGenericFailure, mainMenu())
		}

	default:
		r.answer(ctx, cb.ID, "")
	}
}

func (r *Router) pingText() string {
	h := r.core.Health()
	state := "работает"
	if !h.Running {
		state = "остановлен"
	}
	tick := "—"
	if !h.LastTick.IsZero() {
		tick = time.Since(h.LastTick).Round(time.Second).String()
	}
	return fmt.Sprintf("pong 🏓\nПланировщик: %s, задач: %d, последний тик: %s назад", state, h.Tasks, tick)
}
