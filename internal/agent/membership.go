package agent

import (
	"context"
	"errors"
	"fmt"

	"entice/internal/domain"
	"entice/internal/metrics"
	"entice/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleJoin starts tracking a chat the bot was added to and greets it.
// A chat that is already tracked gets no reply.
func (d *Dispatcher) handleJoin(ctx context.Context, actx *Context, msg *tgbotapi.Message) error {
	chat := domain.Chat{
		ID:    msg.Chat.ID,
		Title: msg.Chat.Title,
	}

	if _, err := actx.Store.InsertChat(ctx, chat); err != nil {
		if errors.Is(err, domain.ErrChatExists) {
			d.logger.Error("already tracking chat", "chat_id", chat.ID, "title", chat.Title, "err", err)
			return nil
		}
		return fmt.Errorf("track chat %d: %w", chat.ID, err)
	}
	metrics.ChatsJoined.Inc()
	metrics.TrackedChats.Inc()
	d.logger.Info("joined chat", "chat_id", chat.ID, "title", chat.Title)

	if msg.Chat.IsPrivate() {
		return nil
	}

	// Re-read after the store round trip.
	actx, ok := d.holder.Get()
	if !ok {
		return nil
	}
	text, err := d.renderer.Render(templates.Join, map[string]string{
		"username": actx.Identity.UserName,
	})
	if err != nil {
		return fmt.Errorf("render %s for chat %d: %w", templates.Join, chat.ID, err)
	}
	if err := d.messenger.SendText(ctx, chat.ID, text); err != nil {
		return fmt.Errorf("greet chat %d: %w", chat.ID, err)
	}
	return nil
}

// handleLeave forgets a chat the bot was removed from. Store errors are
// logged and swallowed.
func (d *Dispatcher) handleLeave(ctx context.Context, actx *Context, msg *tgbotapi.Message) error {
	if err := actx.Store.DeleteChat(ctx, msg.Chat.ID); err != nil {
		d.logger.Error("failed to forget chat", "chat_id", msg.Chat.ID, "title", msg.Chat.Title, "err", err)
		return nil
	}
	metrics.ChatsLeft.Inc()
	metrics.TrackedChats.Dec()
	d.logger.Info("left chat", "chat_id", msg.Chat.ID, "title", msg.Chat.Title)
	return nil
}
