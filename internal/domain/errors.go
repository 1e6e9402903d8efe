package domain

import (
	"errors"
	"fmt"
)

// ConnectError is a transport-layer failure: dial, handshake, or channel
// setup. Retryable under fleet policy.
type ConnectError struct {
	Target string
	Op     string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Target, e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TrustMismatchError means the presented host key fingerprint differs
// from the recorded one, or the host is unknown under strict policy.
// Never retried, never auto-overridden.
type TrustMismatchError struct {
	Address   string
	Known     string // empty when the host was unknown under strict policy
	Presented string
}

func (e *TrustMismatchError) Error() string {
	if e.Known == "" {
		return fmt.Sprintf("trust: %s presented unverified key %s (strict policy refuses first use)", e.Address, e.Presented)
	}
	return fmt.Sprintf("trust: %s presented key %s, recorded key is %s", e.Address, e.Presented, e.Known)
}

// IntegrityError means the payload checksum recomputed on the target did
// not match the package checksum. The staged content is discarded and
// never executed.
type IntegrityError struct {
	Target string
	Want   string
	Got    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s payload checksum %s, expected %s", e.Target, e.Got, e.Want)
}

// DenyError means the privilege gate refused the call. Final for the
// call; no execution or remote side effect occurred.
type DenyError struct {
	Identity string
	Routine  string
	Reason   string
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("deny: %s is not authorized for %s: %s", e.Identity, e.Routine, e.Reason)
}

// ExecutionError means the remote routine ran and reported failure.
// Not retried by default: remote side effects may be non-idempotent.
type ExecutionError struct {
	Target     string
	Routine    string
	ExitStatus int
	Stderr     string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s on %s: exit %d: %s", e.Routine, e.Target, e.ExitStatus, e.Stderr)
}

// TimeoutError is a target-scoped timeout on connect or command
// execution. Retryable under fleet policy up to the configured bound.
type TimeoutError struct {
	Target string
	Op     string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s: %s: %v", e.Target, e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Retryable reports whether fleet retry policy may apply to err.
// Only transport-layer failures qualify; trust, integrity, deny, and
// execution outcomes are final.
func Retryable(err error) bool {
	var ce *ConnectError
	var te *TimeoutError
	return errors.As(err, &ce) || errors.As(err, &te)
}
