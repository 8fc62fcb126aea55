package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"entice/internal/config"
	"entice/internal/domain"
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	os.Exit(m.Run())
}

func TestPrintError_ListsCauses(t *testing.T) {
	root := errors.New("disk full")
	err := fmt.Errorf("chat store: %w", fmt.Errorf("database migration failed: %w", root))

	var buf bytes.Buffer
	printError(&buf, err, false)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "error: chat store:") {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[2] != "caused by: disk full" {
		t.Errorf("last line = %q", lines[2])
	}
	if strings.Contains(buf.String(), "backtrace") {
		t.Error("no backtrace without --trace")
	}
}

func TestPrintError_Trace(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.New("boom"), true)
	if !strings.Contains(buf.String(), "backtrace:") || !strings.Contains(buf.String(), "goroutine") {
		t.Fatalf("expected a stack dump, got:\n%s", buf.String())
	}
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := newLogger(config.GeneralConfig{LogLevel: "warn", LogFormat: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	l.Info("hidden")
	l.Warn("shown", "chat", 42)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info must be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"chat":42`) {
		t.Errorf("expected JSON record, got %q", out)
	}
}

func TestNewLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "entice.log")
	l, closer, err := newLogger(config.GeneralConfig{LogLevel: "info", LogFile: path}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("to file")
	closer()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file content: %q", data)
	}
}

func TestWriteConfigPaths(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telegram.Token = "123456:ABCDEFGHIJ"

	var buf bytes.Buffer
	writeConfigPaths(&buf, config.Sanitize(cfg))
	out := buf.String()

	for _, want := range []string{
		"general.logLevel = \"info\"\n",
		"metrics.enabled = false\n",
		"telegram.pollTimeout = 30\n",
		"telegram.token = \"1234****GHIJ\"\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "database.url") > strings.Index(out, "general.logLevel") {
		t.Error("paths must be sorted")
	}
}

func TestWriteChats(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	writeChats(&buf, []domain.Chat{
		{ID: -100, Title: "Climbing", LastUpdated: now.Add(-2 * time.Hour)},
		{ID: -200, Title: "Chess", LastUpdated: now.Add(-3 * 24 * time.Hour)},
	}, now)

	out := buf.String()
	for _, want := range []string{"TITLE", "Climbing", "2 hours ago", "Chess", "3 days ago", "2 chat(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteChats_Empty(t *testing.T) {
	var buf bytes.Buffer
	writeChats(&buf, nil, time.Now())
	if strings.TrimSpace(buf.String()) != "No tracked chats." {
		t.Fatalf("got %q", buf.String())
	}
}

func TestRunWizard_AppliesAnswers(t *testing.T) {
	cfg := config.Defaults()
	in := strings.NewReader("123:abc\n/tmp/entice/chats.db\n\ny\n127.0.0.1:9999\n")

	if err := runWizard(in, io.Discard, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Database.URL != "/tmp/entice/chats.db" {
		t.Errorf("database = %q", cfg.Database.URL)
	}
	if cfg.Telegram.StartLink != "" {
		t.Errorf("empty answer must keep empty start link, got %q", cfg.Telegram.StartLink)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9999" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestRunWizard_DefaultsOnEmptyAnswers(t *testing.T) {
	cfg := config.Defaults()
	in := strings.NewReader("\n\n\n\n")

	if err := runWizard(in, io.Discard, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "${ENTICE_TELEGRAM_TOKEN}" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Database.URL != config.Defaults().Database.URL {
		t.Errorf("database = %q", cfg.Database.URL)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics must stay disabled")
	}
}

func TestRunWizard_InputEnds(t *testing.T) {
	if err := runWizard(strings.NewReader(""), io.Discard, config.Defaults()); err == nil {
		t.Fatal("expected error when input ends before the first answer")
	}
}

func TestRenderSystemd(t *testing.T) {
	unit := renderSystemd("/usr/local/bin/entice", "/home/u/.entice/config.json")
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/entice run --config /home/u/.entice/config.json") {
		t.Fatalf("unexpected unit:\n%s", unit)
	}
	if strings.Contains(unit, "{{") {
		t.Fatal("unreplaced placeholder")
	}
}

func TestRenderLaunchd(t *testing.T) {
	plist := renderLaunchd("/opt/entice", "/cfg.yaml", "/logs")
	for _, want := range []string{"<string>" + launchdLabel + "</string>", "<string>run</string>", "<string>/cfg.yaml</string>", "/logs/entice-error.log"} {
		if !strings.Contains(plist, want) {
			t.Errorf("plist missing %q", want)
		}
	}
	if strings.Contains(plist, "{{") {
		t.Fatal("unreplaced placeholder")
	}
}
