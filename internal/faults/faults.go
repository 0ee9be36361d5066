// Package faults defines the error taxonomy shared by every command and the
// exit-code contract surfaced to automation.
package faults

import (
	"errors"
	"fmt"

	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

// Exit codes. Automation branches on these, so they are part of the CLI
// contract and never reused for a different failure kind.
const (
	ExitOK          = 0
	ExitGeneral     = 1
	ExitConfig      = 2
	ExitAuth        = 3
	ExitRemote      = 4
	ExitInvalidArgs = 5
	ExitLocalIO     = 6
)

// RemoteKind distinguishes "couldn't reach the service" from "the service
// rejected the request".
type RemoteKind string

const (
	RemoteNetwork  RemoteKind = "network"
	RemoteRejected RemoteKind = "rejected"
)

// LockError means the state-store lock could not be acquired. A stale lock
// from a crashed process is operator-recoverable; it is never auto-removed.
type LockError struct {
	Path string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("cannot acquire state lock %s: %v", e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// CorruptionError reports that the persisted state failed to parse and was
// moved aside. It is recovered automatically and surfaced as a warning.
type CorruptionError struct {
	Path       string
	BackupPath string
	Err        error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state file %s unreadable (moved to %s): %v", e.Path, e.BackupPath, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// ConfigError means settings are missing or invalid. Fatal before any
// remote call is attempted.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError means a credential is missing or a remote service rejected it.
type AuthError struct {
	Source models.Source
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError wraps a failure talking to one of the remote services with
// enough context to act on.
type RemoteError struct {
	Source models.Source
	Kind   RemoteKind
	Status int // HTTP status for rejected requests, 0 otherwise
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Source, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Retryable reports whether a bounded retry is reasonable for this failure.
// Only network-class failures qualify.
func (e *RemoteError) Retryable() bool { return e.Kind == RemoteNetwork }

// ConflictError means the scheduler could not place a Focus Block within
// the bounded lookahead.
type ConflictError struct {
	Days     int
	Duration string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("no free %s slot within %d work days", e.Duration, e.Days)
}

// ValidationError means a lifecycle operation was invoked with malformed
// input or in the wrong state, e.g. switching with no active session.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, a ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, a...)}
}

// IOError wraps a local filesystem failure (state dir, cache db).
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExitCode maps an error to the exit-code contract. nil maps to ExitOK.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		configErr *ConfigError
		authErr   *AuthError
		remoteErr *RemoteError
		validErr  *ValidationError
		ioErr     *IOError
		lockErr   *LockError
	)
	switch {
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &authErr):
		return ExitAuth
	case errors.As(err, &remoteErr):
		return ExitRemote
	case errors.As(err, &validErr):
		return ExitInvalidArgs
	case errors.As(err, &ioErr), errors.As(err, &lockErr):
		return ExitLocalIO
	default:
		return ExitGeneral
	}
}
