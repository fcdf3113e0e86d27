package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	v := viper.New()
	if err := Load(context.Background(), v); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := v.GetInt("listen_port"); got != 8080 {
		t.Fatalf("listen_port = %d, want 8080", got)
	}
	if got := v.GetInt("transport.pending_limit"); got != 1<<20 {
		t.Fatalf("transport.pending_limit = %d", got)
	}
	if got := v.GetString("log.level"); got != "info" {
		t.Fatalf("log.level = %q", got)
	}
	if err := CheckConfigValidity(v); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "nettransport")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "listen_port = 9000\n[log]\nlevel = \"debug\"\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NETTRANSPORT_LOG_LEVEL", "warn")

	v := viper.New()
	if err := Load(context.Background(), v); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := v.GetInt("listen_port"); got != 9000 {
		t.Fatalf("listen_port = %d, want file value 9000", got)
	}
	if got := v.GetString("log.level"); got != "warn" {
		t.Fatalf("log.level = %q, want env value", got)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	dir := isolate(t)
	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "absent.toml"))
	if err := Load(context.Background(), v); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestCheckConfigValidityInvalid(t *testing.T) {
	v := viper.New()
	v.Set("listen_port", 70000)
	v.Set("http_addr", "no-port")
	v.Set("log.level", "loud")
	v.Set("transport.pending_limit", -1)
	v.Set("transport.read_buffer", 0)
	v.Set("metrics.namespace", " ")

	err := CheckConfigValidity(v)
	if err == nil {
		t.Fatalf("expected error for invalid config")
	}

	msg := err.Error()
	expected := []string{
		"listen_port must be between 0 and 65535",
		"http_addr must be host:port",
		"log.level must be one of",
		"transport.pending_limit must not be negative",
		"transport.read_buffer must be greater than 0",
		"metrics.namespace is required",
	}
	for _, want := range expected {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected error to contain %q, got %q", want, msg)
		}
	}
}

func TestEmptyHTTPAddrIsValid(t *testing.T) {
	v := viper.New()
	applyDefaults(v)
	v.Set("http_addr", "")
	if err := CheckConfigValidity(v); err != nil {
		t.Fatalf("empty http_addr disables the server and should be valid: %v", err)
	}
}

func TestPendingLimitBelowReadBuffer(t *testing.T) {
	v := viper.New()
	applyDefaults(v)
	v.Set("transport.read_buffer", 4096)

	v.Set("transport.pending_limit", 16)
	err := CheckConfigValidity(v)
	if err == nil || !strings.Contains(err.Error(), "transport.pending_limit must be 0 or at least transport.read_buffer") {
		t.Fatalf("expected pending_limit/read_buffer error, got %v", err)
	}

	for _, ok := range []int{0, 4096, 1 << 20} {
		v.Set("transport.pending_limit", ok)
		if err := CheckConfigValidity(v); err != nil {
			t.Fatalf("pending_limit %d should be valid: %v", ok, err)
		}
	}
}
