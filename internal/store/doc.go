// Package store persists the chats the bot has joined in SQLite.
package store
