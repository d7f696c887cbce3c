// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"

	"github.com/lanl/gladius-sub000/lib/fault"
)

// Fatal writes "error: err" (and the error's hint, if any) to stderr
// and exits with code 1. Use it in main() for errors from run().
func Fatal(err error) {
	WriteError(os.Stderr, err)
	os.Exit(1)
}

// WriteError writes err the way Fatal does.
func WriteError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s\n", fault.Format(err))
}
