// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import "fmt"

// State is the agent's position in a session.
type State int

const (
	StateInit State = iota
	StateConnectionInfoResolved
	StateNetworkJoined
	StateHandshaking
	StatePluginLoaded
	StatePluginRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnectionInfoResolved:
		return "connection-info-resolved"
	case StateNetworkJoined:
		return "network-joined"
	case StateHandshaking:
		return "handshaking"
	case StatePluginLoaded:
		return "plugin-loaded"
	case StatePluginRunning:
		return "plugin-running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
