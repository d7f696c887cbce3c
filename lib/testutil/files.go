// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data to path, creating parent directories, and
// returns path. The file is executable so it can stand in for a shared
// object or binary.
func WriteFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
