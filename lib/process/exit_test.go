// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lanl/gladius-sub000/lib/fault"
)

func TestWriteErrorIncludesHint(t *testing.T) {
	var buffer bytes.Buffer
	err := fault.New(fault.PluginABI, "load pack", errors.New("abi 1, core has 2")).
		WithHint("rebuild the plugin against this release")
	WriteError(&buffer, err)

	want := "error: load pack: abi 1, core has 2\n  rebuild the plugin against this release\n"
	if buffer.String() != want {
		t.Errorf("WriteError wrote %q, want %q", buffer.String(), want)
	}
}

func TestWriteErrorPlain(t *testing.T) {
	var buffer bytes.Buffer
	WriteError(&buffer, errors.New("boom"))
	if buffer.String() != "error: boom\n" {
		t.Errorf("WriteError wrote %q", buffer.String())
	}
}
