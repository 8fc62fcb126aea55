package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"entice/internal/domain"
	"entice/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultMaxConcurrent = 8

// Messenger is the transport to the chat platform.
type Messenger interface {
	GetMe(ctx context.Context) (domain.Identity, error)
	// Updates streams inbound updates until ctx is done.
	Updates(ctx context.Context) <-chan tgbotapi.Update
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, queryID, url string) error
	AnswerInline(ctx context.Context, queryID string, articles []domain.InlineArticle, personal bool, cacheTime int) error
	ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error)
}

// Renderer renders a named template with a string payload.
type Renderer interface {
	Render(name string, data map[string]string) (string, error)
}

// State is the dispatcher lifecycle.
type State int32

const (
	StateInitializing State = iota // identity not resolved yet
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DispatcherConfig holds the collaborators of a Dispatcher.
type DispatcherConfig struct {
	Messenger Messenger
	Store     domain.ChatStore
	Renderer  Renderer
	Holder    *Holder   // optional, a fresh empty holder when nil
	Commands  *Commands // optional, DefaultCommands when nil
	// StartLink is the deep link returned to callback queries. When empty it
	// is derived from the bot username.
	StartLink     string
	MaxConcurrent int // update handlers running at once
	Logger        *slog.Logger
}

// Dispatcher merges the control channel with the platform feed and routes
// every update to its handler.
type Dispatcher struct {
	messenger Messenger
	store     domain.ChatStore
	renderer  Renderer
	holder    *Holder
	commands  *Commands
	startLink string
	logger    *slog.Logger

	sem      chan struct{}
	inflight sync.WaitGroup
	state    atomic.Int32
}

// NewDispatcher creates a dispatcher in the Initializing state.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Holder == nil {
		cfg.Holder = &Holder{}
	}
	if cfg.Commands == nil {
		cfg.Commands = DefaultCommands()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		messenger: cfg.Messenger,
		store:     cfg.Store,
		renderer:  cfg.Renderer,
		holder:    cfg.Holder,
		commands:  cfg.Commands,
		startLink: cfg.StartLink,
		logger:    cfg.Logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Holder returns the context holder shared with the handlers.
func (d *Dispatcher) Holder() *Holder {
	return d.holder
}

// Run resolves the bot identity in the background and serves updates until
// Stop arrives on control or ctx is cancelled. Stop is a clean exit and
// returns nil; cancellation returns ctx.Err(). Either way Run waits for the
// handlers already running before it returns.
//
// Handlers run with ctx, not with the loop's own lifetime, so Stop does not
// cancel them.
func (d *Dispatcher) Run(ctx context.Context, control <-chan ControlSignal) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.resolveIdentity(loopCtx)

	stream := merge(loopCtx, control, d.messenger.Updates(loopCtx))
	d.logger.Info("dispatcher started", "max_concurrent", cap(d.sem), "commands", d.commands.Names())

	err := d.loop(ctx, stream)

	d.state.Store(int32(StateStopping))
	cancel()
	d.inflight.Wait()
	d.state.Store(int32(StateTerminated))
	d.logger.Info("dispatcher terminated")
	return err
}

func (d *Dispatcher) loop(ctx context.Context, stream <-chan StreamItem) error {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher context done, stopping", "err", ctx.Err())
			return ctx.Err()
		case item, ok := <-stream:
			if !ok {
				return ctx.Err()
			}
			if item.Control != nil {
				d.logger.Info("control signal received", "signal", item.Control.String())
				if *item.Control == Stop {
					return nil
				}
				continue
			}
			if !d.spawn(ctx, *item.Update) {
				return ctx.Err()
			}
		}
	}
}

// spawn handles u on its own goroutine once a handler slot is free. It
// reports false when ctx ended before a slot became available.
func (d *Dispatcher) spawn(ctx context.Context, u tgbotapi.Update) bool {
	kind := Classify(u)
	metrics.UpdatesTotal(kind.String()).Inc()

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	d.inflight.Add(1)
	metrics.InFlight.Inc()
	go func() {
		defer func() {
			metrics.InFlight.Dec()
			<-d.sem
			d.inflight.Done()
		}()

		start := time.Now()
		err := d.Dispatch(ctx, u)
		metrics.HandlerLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpdateFailures.Inc()
			d.logger.Error("update failed", "update_id", u.UpdateID, "kind", kind.String(), "err", err)
		}
	}()
	return true
}

func (d *Dispatcher) resolveIdentity(ctx context.Context) {
	me, err := d.messenger.GetMe(ctx)
	if err != nil {
		d.logger.Error("failed to resolve bot identity, staying in initializing state", "err", err)
		return
	}
	if !d.holder.Set(Context{Identity: me, Store: d.store}) {
		d.logger.Warn("context already populated, ignoring identity", "username", me.UserName)
	}
	if d.state.CompareAndSwap(int32(StateInitializing), int32(StateRunning)) {
		d.logger.Info("bot identity resolved", "username", me.UserName, "id", me.ID)
	}
}

// Dispatch routes one update synchronously and returns the handler's error.
func (d *Dispatcher) Dispatch(ctx context.Context, u tgbotapi.Update) error {
	switch Classify(u) {
	case KindInlineQuery:
		return d.handleInlineQuery(ctx, u.InlineQuery)
	case KindCallbackQuery:
		return d.handleCallbackQuery(ctx, u.CallbackQuery)
	case KindMessage:
		return d.handleMessage(ctx, u.Message)
	default:
		d.logger.Debug("dropping update of unknown shape", "update_id", u.UpdateID)
		return nil
	}
}

// handleMessage applies the message precedence: own join, own leave, command.
func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	actx, ready := d.holder.Get()
	if ready {
		self := actx.Identity.ID
		if joinedSelf(msg, self) {
			return d.handleJoin(ctx, actx, msg)
		}
		if msg.LeftChatMember != nil && msg.LeftChatMember.ID == self {
			return d.handleLeave(ctx, actx, msg)
		}
	}

	if msg.IsCommand() {
		return d.commands.Dispatch(ctx, Env{
			Holder:    d.holder,
			Messenger: d.messenger,
			Renderer:  d.renderer,
			Logger:    d.logger,
		}, msg)
	}

	if !ready {
		d.logger.Debug("context not ready, ignoring message", "chat_id", msg.Chat.ID)
	}
	return nil
}

func joinedSelf(msg *tgbotapi.Message, self int64) bool {
	for _, u := range msg.NewChatMembers {
		if u.ID == self {
			return true
		}
	}
	return false
}
