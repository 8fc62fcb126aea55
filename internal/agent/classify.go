package agent

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UpdateKind is the routing class of an update.
type UpdateKind int

const (
	KindUnknown UpdateKind = iota
	KindInlineQuery
	KindCallbackQuery
	KindMessage
)

func (k UpdateKind) String() string {
	switch k {
	case KindInlineQuery:
		return "inline_query"
	case KindCallbackQuery:
		return "callback_query"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Classify picks the routing class of u. The first match wins, in this
// order: inline query, callback query, message. Channel posts, edits and
// every other update shape are KindUnknown.
func Classify(u tgbotapi.Update) UpdateKind {
	switch {
	case u.InlineQuery != nil:
		return KindInlineQuery
	case u.CallbackQuery != nil:
		return KindCallbackQuery
	case u.Message != nil:
		return KindMessage
	default:
		return KindUnknown
	}
}
