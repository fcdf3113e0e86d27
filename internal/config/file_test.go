package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	res, err := Generate(path, GenerateNew)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Backup != "" || res.Unchanged {
		t.Fatalf("unexpected result for a fresh file: %+v", res)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != RenderDefaultTOML() {
		t.Fatalf("fresh file should hold the defaults:\n%s", data)
	}

	if _, err := Generate(path, GenerateNew); !errors.Is(err, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}
}

func TestGenerateOverwriteBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("listen_port = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	first, err := Generate(path, GenerateOverwrite)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first.Backup != path+".bak" {
		t.Fatalf("backup = %q", first.Backup)
	}
	old, _ := os.ReadFile(first.Backup)
	if string(old) != "listen_port = 1\n" {
		t.Fatalf("backup content = %q", old)
	}

	second, err := Generate(path, GenerateOverwrite)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(second.Backup, path+".bak-") {
		t.Fatalf("second backup should be timestamped, got %q", second.Backup)
	}
}

func TestGenerateUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("listen_port = 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := Generate(path, GenerateUpdate)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Unchanged || res.Backup == "" {
		t.Fatalf("expected a merged file with a backup: %+v", res)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "listen_port = 9000\n") || !strings.Contains(string(data), "[transport]") {
		t.Fatalf("update lost user values or missed defaults:\n%s", data)
	}

	again, err := Generate(path, GenerateUpdate)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !again.Unchanged {
		t.Fatalf("second update should find nothing to add")
	}
}

func TestGenerateUpdateMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	res, err := Generate(path, GenerateUpdate)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Unchanged || res.Backup != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
