// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// recorder captures a Fatalf and stops the calling goroutine the way
// testing.T does.
type recorder struct{ message string }

func (*recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
	panic(r)
}

func expectFatal(t *testing.T, want string, body func(r *recorder)) {
	t.Helper()
	r := &recorder{}
	func() {
		defer func() {
			if recovered := recover(); recovered != nil && recovered != r {
				panic(recovered)
			}
		}()
		body(r)
	}()
	if !strings.Contains(r.message, want) {
		t.Errorf("Fatalf message %q does not contain %q", r.message, want)
	}
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "buffered value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	expectFatal(t, "waiting for rank 3", func(r *recorder) {
		RequireReceive(r, make(chan int), time.Millisecond, "waiting for rank %d", 3)
	})
	closed := make(chan int)
	close(closed)
	expectFatal(t, "closed before a value", func(r *recorder) {
		RequireReceive(r, closed, time.Second)
	})
}

func TestRequireSendAndClosed(t *testing.T) {
	ch := make(chan string, 1)
	RequireSend(t, ch, "ping", time.Second, "buffered send")
	if got := <-ch; got != "ping" {
		t.Errorf("received %q", got)
	}
	expectFatal(t, "send not taken", func(r *recorder) {
		RequireSend(r, make(chan string), "ping", time.Millisecond)
	})

	done := make(chan struct{})
	close(done)
	RequireClosed(t, done, time.Second, "closed channel")
	expectFatal(t, "still open", func(r *recorder) {
		RequireClosed(r, make(chan struct{}), time.Millisecond, "never closed")
	})
}

func TestUniqueIDAndWriteFile(t *testing.T) {
	if a, b := UniqueID("session"), UniqueID("session"); a == b || !strings.HasPrefix(a, "session-") {
		t.Errorf("UniqueID gave %q then %q", a, b)
	}

	path := WriteFile(t, filepath.Join(t.TempDir(), "lib", "pack", "PluginFrontEnd.so"), []byte("object"))
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "object" {
		t.Errorf("ReadFile(%s) = %q, %v", path, data, err)
	}
}
