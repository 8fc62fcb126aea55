package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"entice/internal/agent"
	"entice/internal/config"
	"entice/internal/store"
	"entice/internal/telegram"
	"entice/internal/templates"

	"github.com/spf13/cobra"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your entice installation",
		Long: `Verifies that the configuration, bot token, database, templates and
metrics listener are set up correctly. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("entice doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r doctorReport

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'entice init' or 'entice wizard' to create a configuration.\n")
				return fmt.Errorf("config file not found")
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return fmt.Errorf("invalid config: %w", err)
			}
			r.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			switch {
			case cfg.Telegram.Token == "":
				r.fail("Bot token", "telegram.token is empty")
			case offline:
				r.pass("Bot token", "set (not verified, --offline)")
			default:
				checkToken(ctx, &r, cfg.Telegram)
			}

			if schema, err := checkDatabase(ctx, cfg.Database.URL); errors.Is(err, os.ErrNotExist) {
				r.warn("Database", fmt.Sprintf("%s not created yet; 'entice run' creates it", store.FilePath(cfg.Database.URL)))
			} else if err != nil {
				r.fail("Database", err.Error())
			} else {
				r.pass("Database", fmt.Sprintf("%s (schema v%d)", store.FilePath(cfg.Database.URL), schema))
			}

			if cfg.Templates.File != "" {
				renderer, err := templates.New()
				if err == nil {
					err = renderer.LoadFile(cfg.Templates.File, logger)
				}
				if err != nil {
					r.fail("Templates", err.Error())
				} else {
					r.pass("Templates", cfg.Templates.File)
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					r.warn("Metrics listener", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
				} else {
					r.pass("Metrics listener", cfg.Metrics.Listen+" available")
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running entice.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\nentice should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! entice is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that contact Telegram")
	return cmd
}

func checkToken(ctx context.Context, r *doctorReport, cfg config.TelegramConfig) {
	client, err := telegram.NewClient(telegram.ClientConfig{
		Token:     cfg.Token,
		ParseMode: cfg.ParseMode,
		Logger:    logger,
	})
	if err != nil {
		r.fail("Bot token", err.Error())
		return
	}
	me, err := client.GetMe(ctx)
	if err != nil {
		r.fail("Bot token", err.Error())
		return
	}
	r.pass("Bot token", "@"+me.UserName)
	if cfg.StartLink == "" {
		r.pass("Start link", agent.StartLink(me.UserName)+" (derived)")
	}
}

// checkDatabase opens an existing database read-only and reports its schema
// version. Nothing is created or migrated.
func checkDatabase(ctx context.Context, url string) (int, error) {
	db, err := store.OpenReadOnly(url, logger)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return 0, fmt.Errorf("cannot ping: %w", err)
	}
	return db.SchemaVersion()
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
