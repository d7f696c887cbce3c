// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package leafinfo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lanl/gladius-sub000/lib/fault"
)

func sampleInfo() Info {
	return Info{HostName: "nodeA", ParentHostName: "fe-host", Rank: 1, ParentPort: 7100, ParentRank: 0}
}

func TestEncodeLayout(t *testing.T) {
	data, err := Encode([]Info{sampleInfo()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != RecordSize || RecordSize != 524 {
		t.Fatalf("encoded %d bytes, RecordSize %d; want 524", len(data), RecordSize)
	}
	if string(data[:5]) != "nodeA" || data[5] != 0 {
		t.Errorf("host field = %q", data[:8])
	}
	if string(data[256:263]) != "fe-host" {
		t.Errorf("parent host field = %q", data[256:264])
	}
	// 7100 = 0x1BBC, little endian.
	if data[516] != 0xBC || data[517] != 0x1B {
		t.Errorf("parent port bytes = % x", data[516:520])
	}
}

func TestEncodeRejectsLongHost(t *testing.T) {
	info := sampleInfo()
	info.HostName = strings.Repeat("h", HostNameLength)
	if _, err := Encode([]Info{info}); err == nil {
		t.Fatal("Encode accepted a host name that fills the buffer")
	}
}

func TestDecodeChecksSizeFirst(t *testing.T) {
	for _, size := range []int{0, 1, RecordSize - 1, RecordSize + 1, 2*RecordSize - 12} {
		if _, err := Decode(make([]byte, size)); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrInvalidSize", size, err)
		}
	}
}

func TestWriteConsumeRoundTrip(t *testing.T) {
	path := Path(t.TempDir(), "session", 1)
	if err := Write(path, []Info{sampleInfo()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Consume(path)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got != sampleInfo() {
		t.Errorf("Consume = %+v, want %+v", got, sampleInfo())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("hand-off file still present after Consume (stat error %v)", err)
	}

	_, err = Consume(path)
	if !fault.IsKind(err, fault.Connection) {
		t.Errorf("second Consume error = %v, want a connection fault", err)
	}
	if fault.HintOf(err) == "" {
		t.Error("missing hand-off file error carries no hint")
	}
}

func TestWriteLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Write(Path(dir, "s", 3), []Info{sampleInfo()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "s-3" {
		t.Errorf("directory holds %v, want only s-3", entries)
	}
}

func TestConsumeRejectsMultipleTargets(t *testing.T) {
	path := Path(t.TempDir(), "session", 2)
	second := sampleInfo()
	second.Rank = 2
	if err := Write(path, []Info{sampleInfo(), second}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := Consume(path); !errors.Is(err, ErrMultipleTargetsNotSupported) {
		t.Fatalf("Consume error = %v, want ErrMultipleTargetsNotSupported", err)
	}

	// ConsumeAll would have returned both.
	if err := Write(path, []Info{sampleInfo(), second}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	records, err := ConsumeAll(path)
	if err != nil || len(records) != 2 {
		t.Fatalf("ConsumeAll = %d records, %v", len(records), err)
	}
}

func TestConsumeRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-4")
	if err := os.WriteFile(path, make([]byte, RecordSize+100), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Consume(path)
	if !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Consume error = %v, want ErrInvalidSize", err)
	}
	if !fault.IsKind(err, fault.Connection) {
		t.Errorf("Consume error kind = %q, want connection", fault.KindOf(err))
	}
}

func TestDirHonorsTMPDIR(t *testing.T) {
	t.Setenv("TMPDIR", "/scratch/tmp")
	if Dir() != "/scratch/tmp" {
		t.Errorf("Dir() = %q with TMPDIR set", Dir())
	}
	t.Setenv("TMPDIR", "")
	if Dir() != "/tmp" {
		t.Errorf("Dir() = %q with TMPDIR empty", Dir())
	}
	if got := Path("/tmp", "abc", 7); got != "/tmp/abc-7" {
		t.Errorf("Path = %q", got)
	}
}
