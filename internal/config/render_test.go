package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func readTOML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		t.Fatalf("rendered TOML does not parse: %v\n%s", err, doc)
	}
	return v
}

func TestRenderDefaultTOMLRoundTrips(t *testing.T) {
	v := readTOML(t, RenderDefaultTOML())
	for _, o := range GetConfigOptions() {
		if !v.IsSet(o.Key) {
			t.Fatalf("rendered config is missing %s", o.Key)
		}
	}
	if got := v.GetString("http_addr"); got != "127.0.0.1:7465" {
		t.Fatalf("http_addr = %q", got)
	}
	if err := CheckConfigValidity(v); err != nil {
		t.Fatalf("rendered defaults should be valid: %v", err)
	}
}

func TestUpdateTOMLAddsMissingAndMarksOutdated(t *testing.T) {
	existing := "listen_port = 9000\n\n[log]\nlevel = \"debug\"\ncolour = true\n"
	updated, changed := UpdateTOML(existing)
	if !changed {
		t.Fatalf("expected update to report a change")
	}
	if !strings.Contains(updated, "# OUTDATED: option removed from config schema\n# colour = true") {
		t.Fatalf("unknown key not commented out:\n%s", updated)
	}
	if !strings.Contains(updated, "[transport]") || !strings.Contains(updated, "pending_limit = 1048576") {
		t.Fatalf("missing section not added:\n%s", updated)
	}

	v := readTOML(t, updated)
	if got := v.GetInt("listen_port"); got != 9000 {
		t.Fatalf("existing value lost: listen_port = %d", got)
	}
	if got := v.GetString("log.level"); got != "debug" {
		t.Fatalf("existing value lost: log.level = %q", got)
	}
	if v.IsSet("http_addr") {
		t.Fatalf("top-level key must not be appended inside an open table")
	}
}

func TestUpdateTOMLNoChange(t *testing.T) {
	doc := RenderDefaultTOML()
	updated, changed := UpdateTOML(doc)
	if changed {
		t.Fatalf("complete config should not change:\n%s", updated)
	}
	if updated != doc {
		t.Fatalf("document rewritten without changes")
	}
}
