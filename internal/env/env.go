// Package env abstracts the execution environment that pipeline steps run
// in. An Environment is typically an SSH connection into a freshly booted
// guest, but a local in-process implementation exists for development and
// tests.
//
// Run returns the instruction's exit status as data: a non-zero exit is a
// normal outcome, not an error. The error return is reserved for the
// environment itself becoming unusable (connection refused, session torn
// down, interpreter failure).
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Privilege is the privilege level an instruction runs with.
type Privilege string

const (
	// Elevated runs the instruction as root.
	Elevated Privilege = "elevated"

	// Unprivileged runs the instruction as the environment's regular user.
	Unprivileged Privilege = "unprivileged"
)

// RunSpec describes one instruction to execute in an environment.
type RunSpec struct {
	// Script is the shell body to execute.
	Script string

	// Args are positional parameters made available to the script
	// ($1, $2, ...).
	Args []string

	// Dir is the working directory. Empty means the environment default.
	Dir string

	// Privilege selects the privilege level. Empty means Unprivileged.
	Privilege Privilege

	// Stdout and Stderr receive the instruction's output streams.
	// Nil discards the stream.
	Stdout io.Writer
	Stderr io.Writer
}

// Environment executes instructions.
//
// Run returns the instruction's exit status. A non-nil error means the
// environment failed before or while delivering the instruction; in that
// case the exit status is meaningless and the caller should treat the
// environment as unavailable.
type Environment interface {
	Run(ctx context.Context, spec RunSpec) (int, error)
}

// UnavailableError indicates the environment could not execute an
// instruction at all, as opposed to the instruction running and failing.
type UnavailableError struct {
	// Endpoint identifies the environment (e.g., "10.250.250.10:22"
	// or "local").
	Endpoint string

	// Err is the underlying failure.
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("environment %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err indicates an unusable environment.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
