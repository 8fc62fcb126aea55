package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"entice/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxMessageLen     = 4000
	maxSendRetries    = 3
	pollErrorBackoff  = 3 * time.Second
	updatesBufferSize = 100

	// Telegram allows roughly 30 outbound messages per second per bot.
	sendBurst     = 30
	sendPerSecond = 30
)

// Client is the thin transport to the Telegram Bot API used by the agent.
// The underlying library calls are not context aware; ctx only bounds the
// waits between them.
type Client struct {
	bot            *tgbotapi.BotAPI
	updateInterval time.Duration
	pollTimeout    int
	parseMode      string
	limiter        *RateLimiter
	logger         *slog.Logger
}

type ClientConfig struct {
	Token          string
	UpdateInterval time.Duration
	PollTimeout    int    // seconds
	ParseMode      string // empty sends plain text
	APIEndpoint    string // defaults to tgbotapi.APIEndpoint
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// NewClient builds a client without contacting Telegram; the bot identity is
// resolved later through GetMe.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.PollTimeout+30) * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: httpClient,
		Buffer: updatesBufferSize,
	}
	bot.SetAPIEndpoint(endpoint)

	return &Client{
		bot:            bot,
		updateInterval: cfg.UpdateInterval,
		pollTimeout:    cfg.PollTimeout,
		parseMode:      cfg.ParseMode,
		limiter:        NewRateLimiter(sendBurst, sendPerSecond),
		logger:         cfg.Logger,
	}, nil
}

// GetMe resolves the bot's own account.
func (c *Client) GetMe(ctx context.Context) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	me, err := c.bot.GetMe()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("getMe: %w", err)
	}
	c.bot.Self = me
	return domain.Identity{ID: me.ID, UserName: me.UserName, FirstName: me.FirstName}, nil
}

// Updates long-polls getUpdates until ctx is cancelled. The returned channel
// is closed when polling stops. Each update is delivered once.
func (c *Client) Updates(ctx context.Context) <-chan tgbotapi.Update {
	out := make(chan tgbotapi.Update, c.bot.Buffer)

	go func() {
		defer close(out)
		offset := 0
		for ctx.Err() == nil {
			cfg := tgbotapi.NewUpdate(offset)
			cfg.Timeout = c.pollTimeout

			updates, err := c.bot.GetUpdates(cfg)
			if err != nil {
				c.logger.Warn("telegram getUpdates failed, retrying", "err", err, "backoff", pollErrorBackoff)
				if !sleepCtx(ctx, pollErrorBackoff) {
					return
				}
				continue
			}

			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}

			if !sleepCtx(ctx, c.updateInterval) {
				return
			}
		}
	}()

	c.logger.Info("telegram polling started", "timeout", c.pollTimeout, "interval", c.updateInterval)
	return out
}

// SendText sends text to chatID, split into chunks below the platform limit.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text) {
		if err := c.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends one chunk. It tries the configured parse mode first, falls
// back to plain text on entity parse errors and backs off on rate limits and
// transient failures.
func (c *Client) sendChunk(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 {
			msg.ParseMode = c.parseMode
		}

		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var backoff time.Duration
		var apiErr *tgbotapi.Error
		switch {
		case errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
			backoff = time.Duration(apiErr.RetryAfter) * time.Second
			c.logger.Warn("telegram rate limited, backing off", "retry_after", backoff, "attempt", attempt+1)
		case msg.ParseMode != "" && strings.Contains(err.Error(), "can't parse entities"):
			c.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err, "parseMode", c.parseMode)
			continue
		default:
			backoff = time.Duration(attempt+1) * time.Second
			c.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		}

		if attempt < maxSendRetries && !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("send message to %d after %d attempts: %w", chatID, maxSendRetries+1, lastErr)
}

// AnswerCallback acknowledges a callback query and points the user at url.
func (c *Client) AnswerCallback(ctx context.Context, queryID, url string) error {
	cb := tgbotapi.NewCallback(queryID, "")
	cb.URL = url
	if _, err := c.bot.Request(cb); err != nil {
		return fmt.Errorf("answer callback query %s: %w", queryID, err)
	}
	return nil
}

// AnswerInline answers an inline query with one article per entry.
func (c *Client) AnswerInline(ctx context.Context, queryID string, articles []domain.InlineArticle, personal bool, cacheTime int) error {
	results := make([]interface{}, 0, len(articles))
	for _, a := range articles {
		article := tgbotapi.NewInlineQueryResultArticle(a.ID, a.Title, a.Text)
		if a.ButtonText != "" {
			markup := tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(a.ButtonText, a.ButtonData),
				),
			)
			article.ReplyMarkup = &markup
		}
		results = append(results, article)
	}

	answer := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		CacheTime:     cacheTime,
		IsPersonal:    personal,
	}
	if _, err := c.bot.Request(answer); err != nil {
		return fmt.Errorf("answer inline query %s: %w", queryID, err)
	}
	return nil
}

// ChatMemberStatus returns the membership status of userID in chatID.
func (c *Client) ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("get chat member %d in %d: %w", userID, chatID, err)
	}
	return member.Status, nil
}

func splitMessage(text string) []string {
	var parts []string
	for len(text) > maxMessageLen {
		cutAt := strings.LastIndex(text[:maxMessageLen], "\n")
		if cutAt < maxMessageLen/2 {
			cutAt = maxMessageLen
			// Never split a multi-byte rune.
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return append(parts, text)
}

// sleepCtx waits for d or until ctx is done; it reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
