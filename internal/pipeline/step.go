// Package pipeline executes an ordered list of named provisioning steps
// against an execution environment. Steps run strictly in order, exactly
// once, and the first failure stops the run.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/jbweber/crucible/internal/env"
)

// Step is one named unit of work in a pipeline.
//
// Run returns nil when the step succeeded. Step implementations decide
// what success means; for shell-backed steps it is exit status zero.
type Step interface {
	Name() string
	Run(ctx context.Context, e env.Environment) error
}

// ScriptStep runs a shell script in the environment. It is the Step
// behind the user-defined entries of a run's step list.
type ScriptStep struct {
	// StepName identifies the step in logs and failure reports.
	StepName string

	// Privilege is the privilege level the script runs with.
	Privilege env.Privilege

	// Script is the shell body.
	Script string

	// Dir is the working directory. Empty means the environment default.
	Dir string

	// Stdout and Stderr receive the script's output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Name returns the step name.
func (s *ScriptStep) Name() string {
	return s.StepName
}

// Run executes the script and converts a non-zero exit status into an
// *ExitError.
func (s *ScriptStep) Run(ctx context.Context, e env.Environment) error {
	exit, err := e.Run(ctx, env.RunSpec{
		Script:    s.Script,
		Dir:       s.Dir,
		Privilege: s.Privilege,
		Stdout:    s.Stdout,
		Stderr:    s.Stderr,
	})
	if err != nil {
		return err
	}
	if exit != 0 {
		return &ExitError{ExitStatus: exit}
	}
	return nil
}

// ExitError reports a step instruction that ran and exited non-zero.
type ExitError struct {
	ExitStatus int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with status %d", e.ExitStatus)
}

// ExitCode returns the shell exit status.
func (e *ExitError) ExitCode() int {
	return e.ExitStatus
}

// exitCoder is implemented by step errors that carry a shell exit status.
type exitCoder interface {
	ExitCode() int
}
