// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a session-fatal failure. Every kind aborts the
// controller or agent; the kind chooses the wording of the operator
// message and lets callers branch with [IsKind].
type Kind string

const (
	// Configuration covers missing environment settings and bad
	// search paths. Always an operator mistake.
	Configuration Kind = "configuration"

	// Topology covers an empty or invalid landscape and overlay tree
	// construction failures.
	Topology Kind = "topology"

	// Connection covers hand-off file integrity, target-count problems,
	// and transport join failures.
	Connection Kind = "connection"

	// Handshake covers an unexpected tag or payload during ping/pong.
	Handshake Kind = "handshake"

	// PluginDiscovery covers packs that cannot be found or are
	// incomplete.
	PluginDiscovery Kind = "plugin-discovery"

	// PluginABI covers version skew between a plugin and the core.
	PluginABI Kind = "plugin-abi"

	// PluginRuntime wraps an error that escaped a loaded plugin. The
	// core does not classify it further.
	PluginRuntime Kind = "plugin-runtime"
)

// Error is a classified failure. Op names the operation that failed
// ("build network", "load pack"); Err carries the underlying error,
// including system error text where there is one; Hint is an optional
// line telling the operator what to change.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	Hint string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As, so
// sentinels such as ErrHandshakeFailed survive classification.
func (e *Error) Unwrap() error { return e.Err }

// WithHint returns e with an operator hint attached.
func (e *Error) WithHint(format string, args ...any) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// New classifies err as a failure of op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf classifies a formatted error as a failure of op. The format may
// use %w.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// the empty Kind when err is unclassified.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// IsKind reports whether err carries a classification of kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HintOf returns the first operator hint found in err's chain.
func HintOf(err error) string {
	for err != nil {
		var classified *Error
		if !errors.As(err, &classified) {
			return ""
		}
		if classified.Hint != "" {
			return classified.Hint
		}
		err = classified.Err
	}
	return ""
}

// Format renders err the way binaries print it before exiting: the
// error line, then the hint on its own indented line when present.
func Format(err error) string {
	message := err.Error()
	if hint := HintOf(err); hint != "" {
		message += "\n  " + hint
	}
	return message
}
