// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestErrorWrapsSentinel(t *testing.T) {
	err := New(Handshake, "handshake", fmt.Errorf("reply 7 from rank 3: %w", errSentinel))

	if !errors.Is(err, errSentinel) {
		t.Error("errors.Is should find the sentinel through *Error")
	}
	if got := err.Error(); got != "handshake: reply 7 from rank 3: sentinel" {
		t.Errorf("Error() = %q", got)
	}
	if !IsKind(err, Handshake) {
		t.Errorf("KindOf = %q, want %q", KindOf(err), Handshake)
	}
}

func TestKindOfThroughPlainWrapping(t *testing.T) {
	inner := Newf(Topology, "generate topology", "landscape is empty")
	outer := fmt.Errorf("front end: %w", inner)

	if KindOf(outer) != Topology {
		t.Errorf("KindOf = %q, want %q", KindOf(outer), Topology)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("unclassified error should have empty kind")
	}
}

func TestFormatIncludesHint(t *testing.T) {
	err := New(PluginDiscovery, "find pack", os.ErrNotExist).
		WithHint("echo is not in your search path; update %s and retry", "GLADIUS_PLUGIN_PATH")

	formatted := Format(fmt.Errorf("run: %w", err))
	lines := strings.Split(formatted, "\n")
	if len(lines) != 2 {
		t.Fatalf("Format produced %d lines, want 2: %q", len(lines), formatted)
	}
	if lines[0] != "run: find pack: file does not exist" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[1] != "  echo is not in your search path; update GLADIUS_PLUGIN_PATH and retry" {
		t.Errorf("hint line = %q", lines[1])
	}
}

func TestHintOfFindsInnerHint(t *testing.T) {
	inner := New(Configuration, "read config", os.ErrNotExist).WithHint("set GLADIUS_CONFIG")
	outer := New(Configuration, "start", inner)

	if got := HintOf(outer); got != "set GLADIUS_CONFIG" {
		t.Errorf("HintOf = %q", got)
	}
	if got := HintOf(errors.New("plain")); got != "" {
		t.Errorf("HintOf(plain) = %q, want empty", got)
	}
}
