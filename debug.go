// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package profiler

import "sync/atomic"

// debugMode controls whether violated invariants panic (debug builds) or
// are logged and swallowed (release builds), per spec §7's debug-vs-
// release split.
//
// Grounded on the teacher's core/debug.go debugMode atomic.Bool: zero
// overhead when disabled, a single atomic load per check.
var debugMode atomic.Bool

// SetDebugMode enables or disables debug-build invariant handling. When
// enabled, a violated invariant panics with an InvariantError instead of
// being logged and swallowed. Should be called before any engine
// activity begins.
func SetDebugMode(enabled bool) {
	debugMode.Store(enabled)
}

// DebugMode returns whether debug mode is currently enabled.
func DebugMode() bool {
	return debugMode.Load()
}

// reportInvariantViolation handles a violated invariant per the current
// debug mode: panics with an *InvariantError in debug builds, logs a
// warning and returns the error otherwise so the caller can keep going.
func reportInvariantViolation(invariant, message string) error {
	err := &InvariantError{Invariant: invariant, Message: message}
	if debugMode.Load() {
		panic(err)
	}
	Logger().Warn("profiler: invariant violation", "invariant", invariant, "message", message)
	return err
}
