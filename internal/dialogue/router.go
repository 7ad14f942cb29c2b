package dialogue

import (
	"context"
	"runtime/debug"
	"sync"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/service"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Router consumes transport updates and drives the wizard state machine.
// Updates are handled sequentially, so session access never races with
// itself; the mutex guards against concurrent Run calls only.
type Router struct {
	core    *service.Core
	adapter transport.Adapter
	log     logx.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

func New(core *service.Core, adapter transport.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		core:     core,
		adapter:  adapter,
		log:      log,
		sessions: map[int64]*session{},
	}
}

// Run processes updates until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			r.handle(ctx, up)
		}
	}
}

// handle dispatches one update with panic isolation, so a bug in a flow
// can't kill the update loop.
func (r *Router) handle(ctx context.Context, up transport.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic handling update",
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil || up.Message.IsGroup {
			return
		}
		r.handleMessage(ctx, up.Message)
	case transport.UpdateCallback:
		if up.Callback == nil {
			return
		}
		r.handleCallback(ctx, up.Callback)
	}
}

func (r *Router) send(ctx context.Context, chatID int64, text string, rm *tele.ReplyMarkup) {
	var opt *transport.SendOptions
	if rm != nil {
		opt = &transport.SendOptions{ReplyMarkupAdapter: rm}
	}
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.log.Warn("reply send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) edit(ctx context.Context, ref transport.MessageRef, text string) {
	if err := r.adapter.EditText(ctx, ref, text, nil); err != nil {
		r.log.Debug("message edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}
}
