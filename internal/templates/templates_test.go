package templates

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRender_Join(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render(Join, map[string]string{"username": "EnticeBot"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Hey! I'm @EnticeBot.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRender_Nominate(t *testing.T) {
	r, _ := New()
	out, err := r.Render(Nominate, map[string]string{"group": "Gophers"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "invitation to Gophers.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRender_MissingKey(t *testing.T) {
	r, _ := New()
	if _, err := r.Render(ReplyStart, map[string]string{}); err == nil {
		t.Fatal("expected error for missing username")
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, _ := New()
	if _, err := r.Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRegister_InvalidSource(t *testing.T) {
	r, _ := New()
	if err := r.Register("broken", "{{.username"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := "join: \"Hi from @{{.username}}\"\nfarewell: \"Bye\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, _ := New()
	if err := r.LoadFile(path, testLogger()); err != nil {
		t.Fatal(err)
	}

	out, err := r.Render(Join, map[string]string{"username": "bot"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hi from @bot" {
		t.Errorf("expected override, got %q", out)
	}

	names := r.Names()
	if len(names) != 4 {
		t.Errorf("expected 4 templates, got %v", names)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	r, _ := New()
	if err := r.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), testLogger()); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	os.WriteFile(path, []byte("- not\n- a map\n"), 0o644)

	r, _ := New()
	if err := r.LoadFile(path, testLogger()); err == nil {
		t.Fatal("expected error for non-map YAML")
	}
}
