package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "entice.db")
	cfgPath := filepath.Join(src, "config.yaml")
	writeFile(t, dbPath, "db-bytes")
	writeFile(t, dbPath+"-wal", "wal-bytes")
	writeFile(t, cfgPath, "general:\n  logLevel: info\n")

	files := backupFiles(dbPath, cfgPath)
	if len(files) != 3 {
		t.Fatalf("expected db, wal and config, got %v", files)
	}

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	if err := createTarGz(archive, files); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	newDB := filepath.Join(dst, "data", "chats.db")
	newCfg := filepath.Join(dst, "config.json")
	restored, err := extractTarGz(archive, newDB, newCfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 3 {
		t.Fatalf("expected 3 restored files, got %v", restored)
	}

	for path, want := range map[string]string{
		newDB:          "db-bytes",
		newDB + "-wal": "wal-bytes",
		newCfg:         "general:\n  logLevel: info\n",
	} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestBackupFiles_SkipsMissing(t *testing.T) {
	dir := t.TempDir()
	if files := backupFiles(filepath.Join(dir, "none.db"), filepath.Join(dir, "none.json")); len(files) != 0 {
		t.Fatalf("expected nothing, got %v", files)
	}
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	writeFile(t, path, "plain text")
	if _, err := extractTarGz(path, "x.db", "x.json"); err == nil {
		t.Fatal("expected error for non-gzip input")
	}
}

func TestRestoreTarget(t *testing.T) {
	cases := map[string]string{
		"entice.db":     "/d/chats.db",
		"entice.db-wal": "/d/chats.db-wal",
		"entice.db-shm": "/d/chats.db-shm",
		"config.json":   "/c/config.json",
		"config.yml":    "/c/config.json",
		"notes.txt":     "",
	}
	for name, want := range cases {
		if got := restoreTarget(name, "/d/chats.db", "/c/config.json"); got != want {
			t.Errorf("restoreTarget(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestResolveDBPath_FromConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	writeFile(t, cfgPath, `{"database": {"url": "sqlite://`+filepath.Join(dir, "bot.db")+`"}}`)

	if got, want := resolveDBPath(cfgPath), filepath.Join(dir, "bot.db"); got != want {
		t.Fatalf("resolveDBPath = %q, want %q", got, want)
	}
}
