// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "holoauth"

// Dir returns the holoauth config directory. XDG_CONFIG_HOME is checked
// first, falling back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Resolve picks the file Load should read. An explicit path is returned
// as is; otherwise DefaultPath is used if it exists, else "".
func Resolve(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	def := DefaultPath()
	_, err := os.Stat(def)
	switch {
	case err == nil:
		return def, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", def).Wrap(err)
	}
}
