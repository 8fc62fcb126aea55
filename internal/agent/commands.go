package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"entice/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NotReadyText is the reply to any command received before the bot identity
// is known.
const NotReadyText = "Not ready yet :("

// Env is what a command can reach while it runs.
type Env struct {
	Holder    *Holder
	Messenger Messenger
	Renderer  Renderer
	Logger    *slog.Logger
}

// Command handles one slash command.
type Command interface {
	Name() string // without the leading "/"
	Description() string
	Execute(ctx context.Context, env Env, actx *Context, msg *tgbotapi.Message) error
}

// Commands maps command names to handlers.
type Commands struct {
	mu     sync.RWMutex
	byName map[string]Command
}

// NewCommands creates a registry holding cmds.
func NewCommands(cmds ...Command) *Commands {
	c := &Commands{byName: make(map[string]Command)}
	for _, cmd := range cmds {
		c.Register(cmd)
	}
	return c
}

// DefaultCommands returns the registry the bot ships with.
func DefaultCommands() *Commands {
	return NewCommands(StartCommand{})
}

// Register adds cmd, replacing any command with the same name.
func (c *Commands) Register(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[strings.ToLower(cmd.Name())] = cmd
}

// Get looks a command up by name.
func (c *Commands) Get(name string) (Command, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cmd, ok := c.byName[strings.ToLower(name)]
	return cmd, ok
}

// Names returns the registered names, sorted.
func (c *Commands) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the command in msg. Until the context is populated every
// command gets NotReadyText instead. Unknown commands are ignored.
func (c *Commands) Dispatch(ctx context.Context, env Env, msg *tgbotapi.Message) error {
	actx, ok := env.Holder.Get()
	if !ok {
		if err := env.Messenger.SendText(ctx, msg.Chat.ID, NotReadyText); err != nil {
			return fmt.Errorf("reply not ready to chat %d: %w", msg.Chat.ID, err)
		}
		return nil
	}

	name := msg.Command()
	cmd, found := c.Get(name)
	if !found {
		env.Logger.Debug("unknown command", "command", name, "chat_id", msg.Chat.ID)
		return nil
	}

	env.Logger.Debug("executing command", "command", name, "chat_id", msg.Chat.ID)
	if err := cmd.Execute(ctx, env, actx, msg); err != nil {
		return fmt.Errorf("command /%s: %w", name, err)
	}
	return nil
}

// StartCommand introduces the bot in private chats.
type StartCommand struct{}

func (StartCommand) Name() string        { return "start" }
func (StartCommand) Description() string { return "Introduce the bot" }

func (StartCommand) Execute(ctx context.Context, env Env, actx *Context, msg *tgbotapi.Message) error {
	if !msg.Chat.IsPrivate() {
		return nil
	}
	text, err := env.Renderer.Render(templates.ReplyStart, map[string]string{
		"username": actx.Identity.UserName,
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", templates.ReplyStart, err)
	}
	return env.Messenger.SendText(ctx, msg.Chat.ID, text)
}
