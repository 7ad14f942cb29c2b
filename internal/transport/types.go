package transport

import (
	"context"
	"errors"
)

// ErrRecipientGone marks delivery failures that can never succeed again for
// this recipient (bot blocked, account deactivated, chat gone). Callers
// classify with errors.Is and drop the recipient's state.
var ErrRecipientGone = errors.New("recipient gone")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an incoming chat message. Text carries plain text; for media
// messages Photo or Document is set and Text holds the caption (if any).
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	Photo        *PhotoRef
	Document     *DocumentRef
	IsGroup      bool
}

// PhotoRef references an already-uploaded Telegram photo by file id.
// File ids are stable per bot and can be re-sent without re-uploading.
type PhotoRef struct {
	FileID string
}

// DocumentRef references an already-uploaded Telegram document by file id.
type DocumentRef struct {
	FileID   string
	FileName string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo PhotoRef, caption string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc DocumentRef, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
