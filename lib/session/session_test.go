// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"strings"
	"testing"

	"github.com/lanl/gladius-sub000/lib/fault"
)

func TestNewKeyIsUniqueAndValid(t *testing.T) {
	first, second := NewKey(), NewKey()
	if first == second {
		t.Fatalf("NewKey returned %q twice", first)
	}
	if !strings.HasPrefix(first, "gladius-") {
		t.Errorf("NewKey() = %q, want gladius- prefix", first)
	}
	if err := ValidateKey(first); err != nil {
		t.Errorf("ValidateKey(NewKey()) = %v", err)
	}
}

func TestValidateKeyRejectsPaths(t *testing.T) {
	for _, key := range []string{"", "..", "a/b", "x\x00y"} {
		err := ValidateKey(key)
		if !fault.IsKind(err, fault.Configuration) {
			t.Errorf("ValidateKey(%q) = %v, want a configuration fault", key, err)
		}
	}
}

func TestInstallPrefix(t *testing.T) {
	got, err := InstallPrefix("/opt/gladius/")
	if err != nil || got != "/opt/gladius" {
		t.Errorf("InstallPrefix(configured) = %q, %v", got, err)
	}
	if got := prefixOf("/opt/gladius/bin/gladius"); got != "/opt/gladius" {
		t.Errorf("prefixOf = %q, want /opt/gladius", got)
	}
	derived, err := InstallPrefix("")
	if err != nil || derived == "" {
		t.Errorf("InstallPrefix(\"\") = %q, %v", derived, err)
	}
}
