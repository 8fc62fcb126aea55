package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"entice/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: token → database → start link → metrics → save config",
		Long:  "Guides you through the bot token, database location, start link and metrics endpoint. Writes config to the path used by --config or default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := runWizard(os.Stdin, os.Stdout, cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Printf("\nConfig saved to %s\n", cfgPath)
			fmt.Println("Next: run 'entice doctor', then 'entice run'.")
			return nil
		},
	}
}

// runWizard prompts on out, reads answers from in and updates cfg. An empty
// answer keeps the value shown in brackets.
func runWizard(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	prompt := func(label, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", fmt.Errorf("read answer: %w", err)
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}

	fmt.Fprintln(out, "\n--- Step 1: Bot token ---")
	fmt.Fprintln(out, "Paste the token from @BotFather, or an env reference like ${ENTICE_TELEGRAM_TOKEN}.")
	def := cfg.Telegram.Token
	if def == "" {
		def = "${ENTICE_TELEGRAM_TOKEN}"
	}
	var tok string
	var err error
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		// The token is the first answer, so nothing is buffered in reader yet.
		tok, err = readSecret(f, out, "Token", def)
	} else {
		tok, err = prompt("Token", def)
	}
	if err != nil {
		return err
	}
	cfg.Telegram.Token = tok

	fmt.Fprintln(out, "\n--- Step 2: Database ---")
	url, err := prompt("SQLite database path", cfg.Database.URL)
	if err != nil {
		return err
	}
	cfg.Database.URL = url

	fmt.Fprintln(out, "\n--- Step 3: Start link ---")
	fmt.Fprintln(out, "Link opened by the nomination button. Leave empty to use https://t.me/<bot>?start=hello.")
	link, err := prompt("Start link", cfg.Telegram.StartLink)
	if err != nil {
		return err
	}
	cfg.Telegram.StartLink = link

	fmt.Fprintln(out, "\n--- Step 4: Metrics ---")
	enabled := "n"
	if cfg.Metrics.Enabled {
		enabled = "y"
	}
	ans, err := prompt("Expose Prometheus metrics? (y/n)", enabled)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = strings.HasPrefix(strings.ToLower(ans), "y")
	if cfg.Metrics.Enabled {
		listen, err := prompt("Listen address", cfg.Metrics.Listen)
		if err != nil {
			return err
		}
		cfg.Metrics.Listen = listen
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// readSecret reads a line from a terminal without echoing it.
func readSecret(f *os.File, out io.Writer, label, def string) (string, error) {
	shown := def
	if !strings.HasPrefix(def, "${") {
		shown = config.Sanitize(&config.Config{Telegram: config.TelegramConfig{Token: def}}).Telegram.Token
	}
	fmt.Fprintf(out, "%s [%s]: ", label, shown)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s, nil
	}
	return def, nil
}
