package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// GenerateMode says what Generate does when the target file already exists.
type GenerateMode int

const (
	// GenerateNew refuses to touch an existing file.
	GenerateNew GenerateMode = iota
	// GenerateOverwrite replaces the file with the defaults.
	GenerateOverwrite
	// GenerateUpdate merges missing defaults into the file via UpdateTOML.
	GenerateUpdate
)

// ErrConfigExists is returned by Generate in GenerateNew mode.
var ErrConfigExists = errors.New("config already exists")

// GenerateResult describes what Generate did.
type GenerateResult struct {
	Path string
	// Backup is the copy of the previous file, empty when none was made.
	Backup string
	// Unchanged is set when an update found nothing to add.
	Unchanged bool
}

// Generate writes a config file at path. Any existing file is copied to a
// backup before it is replaced.
func Generate(path string, mode GenerateMode) (GenerateResult, error) {
	res := GenerateResult{Path: path}

	previous, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return res, err
	}
	if exists && mode == GenerateNew {
		return res, fmt.Errorf("%w at %s; use --overwrite to replace it or --update to merge defaults", ErrConfigExists, path)
	}

	content := RenderDefaultTOML()
	if exists && mode == GenerateUpdate {
		updated, changed := UpdateTOML(string(previous))
		if !changed {
			res.Unchanged = true
			return res, nil
		}
		content = updated
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return res, err
	}
	if exists {
		if res.Backup, err = writeBackup(path, previous); err != nil {
			return res, err
		}
	}
	return res, os.WriteFile(path, []byte(content), 0o600)
}

// writeBackup stores data next to path as path.bak, or a timestamped name
// when that is taken.
func writeBackup(path string, data []byte) (string, error) {
	backup := path + ".bak"
	if _, err := os.Stat(backup); err == nil {
		backup = fmt.Sprintf("%s.bak-%s", path, time.Now().Format("20060102-150405"))
	}
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		return "", err
	}
	return backup, nil
}
