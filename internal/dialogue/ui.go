package dialogue

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
)

// Main menu buttons (reply keyboard).
const (
	btnAdd      = "➕ Добавить напоминание"
	btnList     = "📋 Список напоминаний"
	btnDelete   = "❌ Удалить напоминание"
	btnTimezone = "🌍 Изменить часовой пояс"
	btnTest     = "🔄 Тест напоминания"
	btnCancel   = "🔙 Отмена"
	btnSkip     = "Пропустить"
)

// Callback data prefixes (inline keyboards).
const (
	cbRecurrence = "rec:"
	cbTimezone   = "tz:"
	cbDelete     = "del:"
	cbBack       = "back"
)

const (
	msgGreeting = "Привет! Я бот-напоминалка.\nВаш часовой пояс: %s\n\nВыберите действие:"
	msgMenuHint = "Выберите действие на клавиатуре ниже:"

	msgAskText        = "Введите текст напоминания:"
	msgAskTime        = "Введите время в формате ЧЧ:ММ (например, 09:30):"
	msgBadTime        = "❌ Неверный формат времени. Введите время в формате ЧЧ:ММ, например 09:30."
	msgAskRecurrence  = "Как часто напоминать?"
	msgAskAttachment  = "Добавьте комментарий к напоминанию (текст, фото или документ) или нажмите «Пропустить»."
	msgCancelled      = "Действие отменено."
	msgCreateFailed   = "⚠️ Не получилось сохранить напоминание. Попробуйте ещё раз."
	msgGenericFailure = "⚠️ Что-то пошло не так. Попробуйте ещё раз."

	msgListEmpty   = "У вас пока нет напоминаний."
	msgDeleteEmpty = "Удалять нечего: список напоминаний пуст."
	msgAskDelete   = "Какое напоминание удалить?"
	msgAskTimezone = "Выберите часовой пояс:"
	msgTestCreated = "🔄 Тестовое напоминание придёт примерно через минуту."
)

// timezoneChoices are the zones offered in the menu, label → IANA name.
var timezoneChoices = []struct {
	Label string
	Zone  string
}{
	{"Москва", "Europe/Moscow"},
	{"Киев", "Europe/Kiev"},
	{"Лондон", "Europe/London"},
	{"Нью-Йорк", "America/New_York"},
}

func mainMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rm.ReplyKeyboard = [][]tele.ReplyButton{
		{{Text: btnAdd}},
		{{Text: btnList}, {Text: btnDelete}},
		{{Text: btnTimezone}, {Text: btnTest}},
	}
	return rm
}

func cancelMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rm.ReplyKeyboard = [][]tele.ReplyButton{
		{{Text: btnCancel}},
	}
	return rm
}

func attachmentMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rm.ReplyKeyboard = [][]tele.ReplyButton{
		{{Text: btnSkip}},
		{{Text: btnCancel}},
	}
	return rm
}

func recurrenceMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(reminder.Recurrences()))
	for _, rec := range reminder.Recurrences() {
		rows = append(rows, []tele.InlineButton{
			{Text: rec.Label(), Data: cbRecurrence + string(rec)},
		})
	}
	rm.InlineKeyboard = rows
	return rm
}

func timezoneMenu() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(timezoneChoices)+1)
	for _, tc := range timezoneChoices {
		rows = append(rows, []tele.InlineButton{
			{Text: tc.Label, Data: cbTimezone + tc.Zone},
		})
	}
	rows = append(rows, []tele.InlineButton{{Text: btnCancel, Data: cbBack}})
	rm.InlineKeyboard = rows
	return rm
}

func deleteMenu(rs []reminder.Reminder) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(rs)+1)
	for _, r := range rs {
		rows = append(rows, []tele.InlineButton{
			{Text: fmt.Sprintf("❌ %s %s", r.Time, truncate(r.Text, 32)), Data: cbDelete + r.JobID},
		})
	}
	rows = append(rows, []tele.InlineButton{{Text: btnCancel, Data: cbBack}})
	rm.InlineKeyboard = rows
	return rm
}

func formatList(rs []reminder.Reminder) string {
	var b strings.Builder
	b.WriteString("📋 Ваши напоминания:\n")
	for i, r := range rs {
		fmt.Fprintf(&b, "\n%d. %s — %s (%s)", i+1, r.Time, r.Text, r.Recurrence.Label())
		if !r.Attachment.IsZero() {
			b.WriteString(" 💬")
		}
	}
	return b.String()
}

func formatCreated(r reminder.Reminder) string {
	return fmt.Sprintf("✅ Напоминание создано: %s — %s (%s)", r.Time, r.Text, r.Recurrence.Label())
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
