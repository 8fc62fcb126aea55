package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entice/internal/agent"
	"entice/internal/config"
	"entice/internal/metrics"
	"entice/internal/store"
	"entice/internal/telegram"
	"entice/internal/templates"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Long:  "Connects to Telegram, tracks the groups the bot joins and answers inline queries. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLog, err := setupLogger(cfg.General)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog()

	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is not set (try 'entice config set telegram.token <token>')")
	}

	renderer, err := templates.New()
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	if cfg.Templates.File != "" {
		if err := renderer.LoadFile(cfg.Templates.File, logger); err != nil {
			return fmt.Errorf("templates: %w", err)
		}
	}
	logger.Debug("templates ready", "names", renderer.Names())

	db, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("chat store: %w", err)
	}
	defer db.Close()

	client, err := telegram.NewClient(telegram.ClientConfig{
		Token:          cfg.Telegram.Token,
		UpdateInterval: time.Duration(cfg.Telegram.UpdateInterval) * time.Millisecond,
		PollTimeout:    cfg.Telegram.PollTimeout,
		ParseMode:      cfg.Telegram.ParseMode,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}

	dispatcher := agent.NewDispatcher(agent.DispatcherConfig{
		Messenger:     client,
		Store:         db,
		Renderer:      renderer,
		StartLink:     cfg.Telegram.StartLink,
		MaxConcurrent: cfg.Telegram.MaxConcurrentUpdates,
		Logger:        logger,
	})

	var heartbeat *agent.Heartbeat
	if cfg.Metrics.Enabled {
		srv, err := startMetricsServer(cfg.Metrics)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		heartbeat = agent.NewHeartbeat(agent.HeartbeatConfig{
			Interval: time.Duration(cfg.Metrics.RefreshInterval) * time.Second,
			Store:    db,
			Logger:   logger,
		})
	}

	bot := agent.New(agent.AgentConfig{
		Dispatcher: dispatcher,
		Heartbeat:  heartbeat,
		Logger:     logger,
	})
	if err := bot.Start(context.Background()); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go stopOnSignal(bot, done)

	logger.Info("entice running. Press Ctrl+C to stop.", "config", cfgPath)
	if err := bot.Wait(); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// stopOnSignal sends Stop to the bot on SIGINT or SIGTERM until done closes.
func stopOnSignal(bot *agent.Agent, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			logger.Info("signal received, stopping", "signal", sig.String())
			if err := bot.Stop(); errors.Is(err, agent.ErrAlreadyStopped) {
				logger.Warn("already stopping, waiting for in-flight updates")
			}
		}
	}
}

// startMetricsServer binds the listener up front so a busy port is a
// startup error, then serves in the background.
func startMetricsServer(cfg config.MetricsConfig) (*http.Server, error) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, metrics.Collector.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	logger.Info("metrics endpoint enabled", "addr", ln.Addr().String(), "path", cfg.Endpoint)
	return srv, nil
}
