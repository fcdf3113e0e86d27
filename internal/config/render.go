package config

import (
	"fmt"
	"strings"
)

// section groups options that share the first key segment. The empty name
// holds top-level keys.
type section struct {
	name string
	opts []ConfigOption
}

// splitSections groups opts by TOML table, keeping first-seen order.
func splitSections(opts []ConfigOption) []section {
	out := []section{{name: ""}}
	index := map[string]int{"": 0}
	for _, o := range opts {
		name, key := "", o.Key
		if i := strings.Index(o.Key, "."); i >= 0 {
			name, key = o.Key[:i], o.Key[i+1:]
		}
		at, ok := index[name]
		if !ok {
			at = len(out)
			index[name] = at
			out = append(out, section{name: name})
		}
		out[at].opts = append(out[at].opts, ConfigOption{Key: key, Default: o.Default, Comment: o.Comment})
	}
	return out
}

// RenderDefaultTOML renders a TOML config with defaults from GetConfigOptions.
func RenderDefaultTOML() string {
	lines := []string{"# nettransport configuration (TOML)"}
	for _, s := range splitSections(GetConfigOptions()) {
		if len(s.opts) == 0 {
			continue
		}
		if s.name != "" {
			lines = append(lines, "["+s.name+"]")
		}
		for _, o := range s.opts {
			lines = appendOption(lines, o)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// UpdateTOML merges missing defaults into an existing TOML document and
// comments out keys that are no longer part of the schema. The second result
// reports whether anything changed.
func UpdateTOML(existing string) (string, bool) {
	known := make(map[string]bool)
	for _, o := range GetConfigOptions() {
		known[o.Key] = true
	}

	seen := make(map[string]bool)
	table := ""
	changed := false
	var out []string

	for _, line := range strings.Split(existing, "\n") {
		trim := strings.TrimSpace(line)
		switch {
		case trim == "", strings.HasPrefix(trim, "#"):
			out = append(out, line)
			continue
		case strings.HasPrefix(trim, "[") && strings.HasSuffix(trim, "]"):
			table = strings.TrimSpace(trim[1 : len(trim)-1])
			out = append(out, line)
			continue
		}

		key, ok := parseTOMLKey(line)
		if !ok {
			out = append(out, line)
			continue
		}
		if table != "" {
			key = table + "." + key
		}
		seen[key] = true
		if known[key] {
			out = append(out, line)
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		out = append(out,
			indent+"# OUTDATED: option removed from config schema",
			indent+"# "+strings.TrimLeft(line, " \t"),
		)
		changed = true
	}

	var missing []ConfigOption
	for _, o := range GetConfigOptions() {
		if !seen[o.Key] {
			missing = append(missing, o)
		}
	}
	if len(missing) == 0 {
		return strings.Join(out, "\n"), changed
	}

	out = append(out, "", "# Added by config update")
	for _, s := range splitSections(missing) {
		if len(s.opts) == 0 {
			continue
		}
		if s.name == "" && table != "" {
			// TOML has no way back to the root table once a table is open.
			for _, o := range s.opts {
				out = append(out, "# "+o.Comment, fmt.Sprintf("# %s = %s (move above the first table)", o.Key, tomlValue(o.Default)), "")
			}
			continue
		}
		if s.name != "" {
			out = append(out, "["+s.name+"]")
		}
		for _, o := range s.opts {
			out = appendOption(out, o)
		}
	}
	return strings.Join(out, "\n"), true
}

func parseTOMLKey(line string) (string, bool) {
	idx := strings.Index(line, "=")
	if idx == -1 {
		return "", false
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" || strings.ContainsAny(key[:1], "[\"'") {
		return "", false
	}
	return key, true
}

func appendOption(lines []string, o ConfigOption) []string {
	if o.Comment != "" {
		lines = append(lines, "# "+o.Comment)
	}
	return append(lines, fmt.Sprintf("%s = %s", o.Key, tomlValue(o.Default)), "")
}

func tomlValue(value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []string:
		quoted := make([]string, len(v))
		for i, s := range v {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
