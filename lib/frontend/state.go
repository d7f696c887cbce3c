// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package frontend

import "fmt"

// State is the controller's position in a session. States only move
// forward; every session ends in StateDone, whether or not it failed.
type State int

const (
	StateInit State = iota
	StateTopologyBuilt
	StateNetworkBuilt
	StateWaitingForBackEnds
	StateHandshaking
	StatePluginIdentityBroadcast
	StatePluginRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTopologyBuilt:
		return "topology-built"
	case StateNetworkBuilt:
		return "network-built"
	case StateWaitingForBackEnds:
		return "waiting-for-back-ends"
	case StateHandshaking:
		return "handshaking"
	case StatePluginIdentityBroadcast:
		return "plugin-identity-broadcast"
	case StatePluginRunning:
		return "plugin-running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
