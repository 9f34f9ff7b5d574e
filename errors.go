// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package profiler

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the facade, grounded on the teacher's
// core/error.go base-error set (ErrInvalidID, ErrResourceNotFound, ...),
// adapted from resource-registry failures to profiling-engine failures.
var (
	// ErrUnknownObject is returned when an event callback names an
	// identity the facade never observed a create/register call for.
	ErrUnknownObject = errors.New("profiler: unknown object")

	// ErrNotRecording is returned by a command-recording call made
	// against a command buffer that is not between Begin and End.
	ErrNotRecording = errors.New("profiler: command buffer is not recording")

	// ErrAlreadyRecording is returned by Begin on a command buffer that
	// is already recording.
	ErrAlreadyRecording = errors.New("profiler: command buffer is already recording")

	// ErrInvalidConfig is returned when a configuration setter receives
	// a value the engine cannot act on.
	ErrInvalidConfig = errors.New("profiler: invalid configuration value")
)

// InvariantError represents a violated engine invariant: a call sequence
// the interception layer is contractually supposed to never produce
// (e.g. destroying an object still bound to another). Grounded on the
// teacher's core/error.go ValidationError, generalized from a single
// resource/field/message shape to whatever invariant name the violating
// call site names.
type InvariantError struct {
	Invariant string // short name of the violated invariant
	Message   string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("profiler: invariant %s violated: %s", e.Invariant, e.Message)
}

// IsInvariantError reports whether err is an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
