package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entice/internal/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements domain.ChatStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at url and applies the schema.
// url is a file path, optionally prefixed with "sqlite://" or "file:".
func Open(url string, logger *slog.Logger) (*SQLiteStore, error) {
	dbPath := FilePath(url)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// OpenReadOnly opens an existing database without creating it or applying
// migrations. A missing file is reported as os.ErrNotExist.
func OpenReadOnly(url string, logger *slog.Logger) (*SQLiteStore, error) {
	dbPath := FilePath(url)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// FilePath strips the sqlite:// or file: prefix and any query from url.
func FilePath(url string) string {
	url = strings.TrimPrefix(url, "sqlite://")
	url = strings.TrimPrefix(url, "file:")
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return url
}

// InsertChat stores a new chat row. LastUpdated is set by the database.
func (s *SQLiteStore) InsertChat(ctx context.Context, chat domain.Chat) (*domain.Chat, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, description, last_updated) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.Title, chat.Description, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert chat %d: %w", chat.ID, domain.ErrChatExists)
		}
		return nil, fmt.Errorf("insert chat %d: %w", chat.ID, err)
	}
	chat.LastUpdated = now
	return &chat, nil
}

// DeleteChat removes the row for id. Deleting an unknown id is not an error.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chat %d: %w", id, err)
	}
	return nil
}

// GetChat returns nil, nil when the chat is not tracked.
func (s *SQLiteStore) GetChat(ctx context.Context, id int64) (*domain.Chat, error) {
	var c domain.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, last_updated FROM chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Description, &c.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %d: %w", id, err)
	}
	return &c, nil
}

// LoadChats returns every tracked chat ordered by id.
func (s *SQLiteStore) LoadChats(ctx context.Context) ([]domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, last_updated FROM chats ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaVersion reports the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return GetSchemaVersion(s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended result codes disabled
		return strings.Contains(serr.Error(), "UNIQUE constraint failed")
	}
	return false
}
