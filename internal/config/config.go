package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/mithrel/nettransport/internal/logging"
)

// applyDefaults seeds Viper with defaults defined in GetConfigOptions.
// This centralizes default values and descriptions in one place.
func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// The provided Viper instance is mutated with defaults, file contents, and env.
func Load(ctx context.Context, v *viper.Viper) error {
	// If SetConfigFile was provided upstream it takes precedence; these
	// paths are harmless fallbacks.
	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "nettransport"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "nettransport"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when we were only searching for one.
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: NETTRANSPORT_* (highest among these sources)
	v.SetEnvPrefix("nettransport")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(v.GetString("log.level")) == "" {
		v.Set("log.level", "info")
	}
	return nil
}

// DefaultConfigPath resolves the standard config.toml location.
func DefaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "nettransport", "config.toml")
}

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the default configuration options and their meanings.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "listen_port", Default: 8080, Comment: "TCP port the transport binds on all interfaces; 0 picks an ephemeral port"},
		{Key: "http_addr", Default: "127.0.0.1:7465", Comment: "Listen address for /healthz and /metrics; empty disables"},

		{Key: "log.level", Default: "info", Comment: "Log level: debug, info, warn, error or silent"},
		{Key: "transport.pending_limit", Default: 1 << 20, Comment: "Bytes a connection may hold before the protocol layer installs its data delegate (0 = unlimited)"},
		{Key: "transport.read_buffer", Default: 4096, Comment: "Largest single read handed to the protocol layer, in bytes"},
		{Key: "metrics.namespace", Default: "nettransport", Comment: "Prometheus metric namespace"},
	}
}

// CheckConfigValidity reports every problem found in v at once.
func CheckConfigValidity(v *viper.Viper) error {
	var errs []error

	if p := v.GetInt("listen_port"); p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("listen_port must be between 0 and 65535"))
	}
	if addr := strings.TrimSpace(v.GetString("http_addr")); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("http_addr must be host:port: %v", err))
		}
	}
	if lvl := strings.ToLower(strings.TrimSpace(v.GetString("log.level"))); !slices.Contains(logging.Levels, lvl) {
		errs = append(errs, fmt.Errorf("log.level must be one of %s", strings.Join(logging.Levels, ", ")))
	}
	limit, readBuf := v.GetInt("transport.pending_limit"), v.GetInt("transport.read_buffer")
	if limit < 0 {
		errs = append(errs, fmt.Errorf("transport.pending_limit must not be negative"))
	}
	if readBuf <= 0 {
		errs = append(errs, fmt.Errorf("transport.read_buffer must be greater than 0"))
	}
	// A single read must fit under the limit, or any early delivery breaks
	// the connection.
	if limit > 0 && readBuf > 0 && limit < readBuf {
		errs = append(errs, fmt.Errorf("transport.pending_limit must be 0 or at least transport.read_buffer (%d)", readBuf))
	}
	if strings.TrimSpace(v.GetString("metrics.namespace")) == "" {
		errs = append(errs, fmt.Errorf("metrics.namespace is required"))
	}

	return errors.Join(errs...)
}
