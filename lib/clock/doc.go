// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the control plane's retry loops.
//
// The front end polls the overlay until every expected back end has
// connected. The poll interval and deadline are caller policy, and
// tests need to drive that loop without sleeping, so the loop takes a
// [Clock] instead of calling the time package directly. [Real] wraps
// the time package; [Fake] returns a [FakeClock] advanced by hand.
package clock
