package domain

import (
	"context"
	"errors"
	"time"
)

// ErrChatExists is returned by ChatStore.InsertChat when a row with the same
// chat id is already stored.
var ErrChatExists = errors.New("chat already tracked")

// Chat is a group the bot has been added to.
type Chat struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	LastUpdated time.Time `json:"last_updated"`
}

// ChatStore persists tracked chats. Each call is a standalone statement.
type ChatStore interface {
	// InsertChat stores a new row. A duplicate id yields ErrChatExists.
	InsertChat(ctx context.Context, chat Chat) (*Chat, error)
	DeleteChat(ctx context.Context, id int64) error
	GetChat(ctx context.Context, id int64) (*Chat, error)
	LoadChats(ctx context.Context) ([]Chat, error)
	Close() error
}
