// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lanl/gladius-sub000/lib/fault"
)

// NewKey returns a fresh session key. Keys name hand-off files, so they
// contain only characters that are safe in a file name.
func NewKey() string {
	return "gladius-" + uuid.NewString()
}

// ValidateKey rejects keys that could escape the hand-off directory.
func ValidateKey(key string) error {
	if key == "" {
		return fault.Newf(fault.Configuration, "validate session key", "session key is empty")
	}
	if strings.ContainsAny(key, "/\x00") || key == "." || key == ".." {
		return fault.Newf(fault.Configuration, "validate session key", "session key %q contains a path separator", key)
	}
	return nil
}

// InstallPrefix returns the Gladius installation root: configured when
// non-empty, otherwise the parent of the directory holding the running
// executable (binaries live in ${prefix}/bin).
func InstallPrefix(configured string) (string, error) {
	if configured != "" {
		return filepath.Clean(configured), nil
	}
	executable, err := os.Executable()
	if err != nil {
		return "", fault.New(fault.Configuration, "determine install prefix", fmt.Errorf("locating executable: %w", err)).
			WithHint("set install_prefix in the config file")
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}
	return prefixOf(executable), nil
}

func prefixOf(executable string) string {
	return filepath.Dir(filepath.Dir(executable))
}
