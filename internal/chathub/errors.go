package chathub

import (
	"errors"
	"fmt"
	"log/slog"

	"modchat/backend/internal/metrics"
)

// Protocol violations. The offending connection is closed.
var (
	ErrUnknownRole  = errors.New("unrecognized role")
	ErrRoleChange   = errors.New("role cannot change after handshake")
	ErrWrongRole    = errors.New("identify signal does not match the verified role")
	ErrForeignRoom  = errors.New("room tag does not belong to sender")
	ErrUnknownEvent = errors.New("unknown event")
)

// Invariant violations. Never retried.
var (
	ErrSelfMatch     = errors.New("connection matched with itself")
	ErrAlreadyPaired = errors.New("connection already has a partner")
)

// InvariantError wraps an invariant violation with the handles involved.
type InvariantError struct {
	Op  string
	A   string
	B   string
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s (%s, %s): %v", e.Op, e.A, e.B, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// violate records an invariant violation. In strict mode it panics so the
// defect surfaces in development; otherwise the caller refuses the operation.
func violate(strict bool, err *InvariantError) {
	metrics.InvariantViolations.Inc()
	slog.Error("chathub.invariant_violation", "op", err.Op, "a", err.A, "b", err.B, "error", err.Err)
	if strict {
		panic(err)
	}
}
