// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

var _ Clock = wallClock{}

// wallClock reads the system clock.
type wallClock struct{}

// Real returns the Clock production code uses.
func Real() Clock { return wallClock{} }

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
