package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"entice/internal/domain"
	"entice/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const botID = 1000

var botIdentity = domain.Identity{ID: botID, UserName: "EnticeBot", FirstName: "Entice"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// --- messenger ---

type sentText struct {
	ChatID int64
	Text   string
}

type inlineAnswer struct {
	QueryID   string
	Articles  []domain.InlineArticle
	Personal  bool
	CacheTime int
}

type fakeMessenger struct {
	mu sync.Mutex

	me     domain.Identity
	meErr  error
	meGate chan struct{} // GetMe waits for it when non-nil

	updates chan tgbotapi.Update

	sendGate  chan struct{} // SendText waits for it when non-nil
	sent      []sentText
	callbacks map[string]string
	inline    []inlineAnswer

	statuses  map[int64]string
	statusErr map[int64]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		me:        botIdentity,
		updates:   make(chan tgbotapi.Update),
		callbacks: make(map[string]string),
		statuses:  make(map[int64]string),
		statusErr: make(map[int64]error),
	}
}

func (m *fakeMessenger) GetMe(ctx context.Context) (domain.Identity, error) {
	if m.meGate != nil {
		select {
		case <-m.meGate:
		case <-ctx.Done():
			return domain.Identity{}, ctx.Err()
		}
	}
	return m.me, m.meErr
}

func (m *fakeMessenger) Updates(ctx context.Context) <-chan tgbotapi.Update {
	return m.updates
}

func (m *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	if m.sendGate != nil {
		<-m.sendGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentText{ChatID: chatID, Text: text})
	return nil
}

func (m *fakeMessenger) AnswerCallback(ctx context.Context, queryID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[queryID] = url
	return nil
}

func (m *fakeMessenger) AnswerInline(ctx context.Context, queryID string, articles []domain.InlineArticle, personal bool, cacheTime int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inline = append(m.inline, inlineAnswer{QueryID: queryID, Articles: articles, Personal: personal, CacheTime: cacheTime})
	return nil
}

func (m *fakeMessenger) ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.statusErr[chatID]; err != nil {
		return "", err
	}
	return m.statuses[chatID], nil
}

func (m *fakeMessenger) sentTexts() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentText(nil), m.sent...)
}

func (m *fakeMessenger) inlineAnswers() []inlineAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inlineAnswer(nil), m.inline...)
}

func (m *fakeMessenger) callbackURL(queryID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.callbacks[queryID]
	return url, ok
}

// --- store ---

type memStore struct {
	mu        sync.Mutex
	chats     map[int64]domain.Chat
	inserts   int
	insertErr error
	deleteErr error
	loadErr   error
}

func newMemStore(chats ...domain.Chat) *memStore {
	s := &memStore{chats: make(map[int64]domain.Chat)}
	for _, c := range chats {
		s.chats[c.ID] = c
	}
	return s
}

func (s *memStore) InsertChat(ctx context.Context, chat domain.Chat) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	if _, ok := s.chats[chat.ID]; ok {
		return nil, fmt.Errorf("insert chat %d: %w", chat.ID, domain.ErrChatExists)
	}
	chat.LastUpdated = time.Now().UTC()
	s.chats[chat.ID] = chat
	return &chat, nil
}

func (s *memStore) DeleteChat(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.chats, id)
	return nil
}

func (s *memStore) GetChat(ctx context.Context, id int64) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) LoadChats(ctx context.Context) ([]domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]domain.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

// --- renderer ---

type failingRenderer struct{}

func (failingRenderer) Render(name string, data map[string]string) (string, error) {
	return "", errors.New("template: missing key")
}

func testRenderer(t *testing.T) Renderer {
	t.Helper()
	r, err := templates.New()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// --- updates ---

func groupChat(id int64, title string) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "group", Title: title}
}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func joinUpdate(updateID int, chat *tgbotapi.Chat, userID int64) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID:      updateID,
			Chat:           chat,
			NewChatMembers: []tgbotapi.User{{ID: userID, IsBot: true}},
		},
	}
}

func leaveUpdate(updateID int, chat *tgbotapi.Chat, userID int64) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID:      updateID,
			Chat:           chat,
			LeftChatMember: &tgbotapi.User{ID: userID, IsBot: true},
		},
	}
}

func commandUpdate(updateID int, chat *tgbotapi.Chat, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: updateID,
			Chat:      chat,
			From:      &tgbotapi.User{ID: 7},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
		},
	}
}

func inlineUpdate(updateID int, queryID string, userID int64) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID:    updateID,
		InlineQuery: &tgbotapi.InlineQuery{ID: queryID, From: &tgbotapi.User{ID: userID}},
	}
}

func callbackUpdate(updateID int, queryID string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID:      updateID,
		CallbackQuery: &tgbotapi.CallbackQuery{ID: queryID, From: &tgbotapi.User{ID: 7}},
	}
}

// --- dispatchers ---

func newTestDispatcher(t *testing.T, m *fakeMessenger, s domain.ChatStore) *Dispatcher {
	t.Helper()
	return NewDispatcher(DispatcherConfig{
		Messenger:     m,
		Store:         s,
		Renderer:      testRenderer(t),
		MaxConcurrent: 1,
		Logger:        testLogger(),
	})
}

// readyDispatcher has its context populated, as after a successful GetMe.
func readyDispatcher(t *testing.T, m *fakeMessenger, s domain.ChatStore) *Dispatcher {
	t.Helper()
	d := newTestDispatcher(t, m, s)
	if !d.Holder().Set(Context{Identity: botIdentity, Store: s}) {
		t.Fatal("holder unexpectedly populated")
	}
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
