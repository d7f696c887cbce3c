// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package leafinfo reads and writes the connection hand-off file that
// tells an independently launched back end where to attach to the
// overlay.
//
// The file lives at ${TMPDIR:-/tmp}/${sessionKey}-${uid} and is a
// packed array of fixed-size little-endian records:
//
//	offset  size  field
//	0       256   host name, NUL padded
//	256     256   parent host name, NUL padded
//	512     4     rank (int32)
//	516     4     parent port (int32)
//	520     4     parent rank (int32)
//
// Writers replace the file atomically; readers take an exclusive flock,
// read it, and remove it.
package leafinfo
