// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration shared by every
// Gladius component.
//
// Everything that crosses an overlay link is CBOR: the link frames
// exchanged between overlay nodes, the core protocol messages
// (handshake values, PluginNameInfo), and plugin payloads. YAML is
// reserved for operator-edited files (configuration, process tables)
// and the connection hand-off file uses a fixed binary record layout
// because its size is load-bearing.
//
// For buffer-oriented operations (packet payloads):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (overlay links):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever travel as CBOR use `cbor` struct tags. Types
// that are also written as YAML or JSON use `json`/`yaml` tags;
// fxamacker/cbor falls back to `json` tags when no `cbor` tag exists.
package codec
