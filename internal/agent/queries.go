package agent

import (
	"context"
	"fmt"

	"entice/internal/domain"
	"entice/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	memberLookupLimit = 10
	// Telegram rejects inline answers with more results.
	maxInlineResults = 50
	nominateButton   = "Accept Nomination"
)

// handleInlineQuery offers a nomination article for every tracked chat the
// querying user belongs to. The answer is personal and never cached.
func (d *Dispatcher) handleInlineQuery(ctx context.Context, q *tgbotapi.InlineQuery) error {
	actx, ok := d.holder.Get()
	if !ok {
		d.logger.Debug("context not ready, ignoring inline query", "query_id", q.ID)
		return nil
	}

	chats, err := actx.Store.LoadChats(ctx)
	if err != nil {
		d.logger.Error("failed to load chats for inline query", "query_id", q.ID, "err", err)
		return d.messenger.AnswerInline(ctx, q.ID, nil, true, 0)
	}

	var userID int64
	if q.From != nil {
		userID = q.From.ID
	}
	member := d.memberChats(ctx, chats, userID)
	if len(member) > maxInlineResults {
		d.logger.Warn("too many chats for one inline answer, truncating",
			"query_id", q.ID, "chats", len(member), "limit", maxInlineResults)
		member = member[:maxInlineResults]
	}

	articles := make([]domain.InlineArticle, 0, len(member))
	for _, chat := range member {
		text, err := d.renderer.Render(templates.Nominate, map[string]string{"group": chat.Title})
		if err != nil {
			return fmt.Errorf("render %s for chat %d: %w", templates.Nominate, chat.ID, err)
		}
		articles = append(articles, domain.InlineArticle{
			ID:         uuid.NewString(),
			Title:      chat.Title,
			Text:       text,
			ButtonText: nominateButton,
			ButtonData: fmt.Sprintf("nominate:%d", chat.ID),
		})
	}

	if err := d.messenger.AnswerInline(ctx, q.ID, articles, true, 0); err != nil {
		return err
	}
	d.logger.Debug("answered inline query", "query_id", q.ID, "results", len(articles))
	return nil
}

// memberChats looks up userID in every chat in parallel and keeps the chats
// where the user is creator, administrator or member, in input order. A
// failed lookup drops only that chat.
func (d *Dispatcher) memberChats(ctx context.Context, chats []domain.Chat, userID int64) []domain.Chat {
	statuses := make([]string, len(chats))

	var g errgroup.Group
	g.SetLimit(memberLookupLimit)
	for i, chat := range chats {
		i, chat := i, chat
		g.Go(func() error {
			status, err := d.messenger.ChatMemberStatus(ctx, chat.ID, userID)
			if err != nil {
				d.logger.Warn("membership lookup failed", "chat_id", chat.ID, "user_id", userID, "err", err)
				return nil
			}
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Chat
	for i, chat := range chats {
		if domain.IsActiveMember(statuses[i]) {
			out = append(out, chat)
		}
	}
	return out
}

// handleCallbackQuery answers every callback with the deep link to the bot.
func (d *Dispatcher) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	link := d.startLink
	if link == "" {
		actx, ok := d.holder.Get()
		if !ok {
			d.logger.Debug("context not ready, ignoring callback query", "query_id", q.ID)
			return nil
		}
		link = StartLink(actx.Identity.UserName)
	}
	return d.messenger.AnswerCallback(ctx, q.ID, link)
}

// StartLink is the deep link that opens a private chat with the bot.
func StartLink(username string) string {
	return "https://t.me/" + username + "?start=hello"
}
