// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Error taxonomy for the sync node. Only ValidationError and
// ReconciliationError are ever surfaced to an immediate caller; transport
// and delivery failures are logged and drive internal state transitions.
var (
	// ErrInitialization indicates a startup-time dependency is missing,
	// e.g. no secure random source for the id generator.
	ErrInitialization = errors.New("initialization failed")

	// ErrTransport indicates a session, connect or RPC failure. It drives
	// the reconnect state machine and is never surfaced past a log line.
	ErrTransport = errors.New("transport failure")

	// ErrListenerDelivery indicates a notify delivery failed for a single
	// listener. The listener is evicted; the error stops there.
	ErrListenerDelivery = errors.New("listener delivery failed")
)

// ValidationError rejects malformed input synchronously. No state is
// mutated before it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ReconciliationError wraps a failure during the transactional merge phase.
// By the time it is returned the whole batch has been rolled back.
type ReconciliationError struct {
	Cause error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed: %v", e.Cause)
}

func (e *ReconciliationError) Unwrap() error { return e.Cause }

// TransportErrorf wraps err so that errors.Is(err, ErrTransport) holds.
func TransportErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}
