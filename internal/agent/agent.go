package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyStarted is returned by Start on an agent that already runs.
	ErrAlreadyStarted = errors.New("agent already started")
	// ErrAlreadyStopped is returned by every Stop after the first.
	ErrAlreadyStopped = errors.New("agent already stopped")
)

// Agent owns a dispatcher and its control channel. It is the handle the
// process keeps to stop the bot from a signal handler.
type Agent struct {
	dispatcher *Dispatcher
	heartbeat  *Heartbeat
	control    chan ControlSignal
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	group   errgroup.Group
	done    chan struct{} // closed when the dispatcher has returned
}

// AgentConfig wires an Agent.
type AgentConfig struct {
	Dispatcher *Dispatcher
	Heartbeat  *Heartbeat // optional
	Logger     *slog.Logger
}

// New creates an agent that is not running yet.
func New(cfg AgentConfig) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Agent{
		dispatcher: cfg.Dispatcher,
		heartbeat:  cfg.Heartbeat,
		// Stop is sent at most once.
		control: make(chan ControlSignal, 1),
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
}

// Start runs the dispatcher on its own goroutine and returns immediately.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	a.group.Go(func() error {
		defer close(a.done)
		defer cancel()
		return a.dispatcher.Run(runCtx, a.control)
	})
	if a.heartbeat != nil {
		a.group.Go(func() error {
			a.heartbeat.Start(runCtx)
			return nil
		})
	}

	a.logger.Info("agent started")
	return nil
}

// Stop asks the dispatcher to finish. Only the first call sends the signal;
// later calls, and any call after the dispatcher has returned on its own,
// return ErrAlreadyStopped. Stop before Start is allowed and makes the
// dispatcher exit as soon as it starts.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return ErrAlreadyStopped
	}
	select {
	case <-a.done:
		a.stopped = true
		return ErrAlreadyStopped
	default:
	}
	a.stopped = true
	a.control <- Stop
	a.logger.Info("agent stop requested")
	return nil
}

// Wait blocks until the dispatcher has terminated and returns its error.
func (a *Agent) Wait() error {
	return a.group.Wait()
}

// Dispatcher returns the agent's dispatcher.
func (a *Agent) Dispatcher() *Dispatcher {
	return a.dispatcher
}
