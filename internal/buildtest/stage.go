// Package buildtest runs the final compile-and-verify stage of a run:
// build the main artifact, build the auxiliary example artifacts, then run
// the test suite. The three substeps execute in that fixed order and the
// first failure stops the stage.
package buildtest

import (
	"context"
	"fmt"
	"io"

	"github.com/jbweber/crucible/internal/env"
)

// Default substep commands.
const (
	DefaultBuildCommand    = "cargo build"
	DefaultExamplesCommand = "cargo build --examples"
	DefaultTestCommand     = "cargo test"
)

// DefaultPrelude makes the freshly installed toolchain visible to the
// non-login shell the substeps run in. Harmless when the env file does
// not exist.
const DefaultPrelude = `. "$HOME/.cargo/env" 2>/dev/null || true`

// Substep names, in execution order.
const (
	SubstepBuild    = "build"
	SubstepExamples = "build-examples"
	SubstepTest     = "test"
)

// Stage runs the build, examples, and test substeps in the project
// directory. It satisfies the pipeline's Step interface.
type Stage struct {
	// Dir is the project directory inside the environment.
	Dir string

	// BuildCommand, ExamplesCommand, and TestCommand override the default
	// cargo invocations when non-empty.
	BuildCommand    string
	ExamplesCommand string
	TestCommand     string

	// Prelude is prepended to every substep script. Empty means
	// DefaultPrelude; set it to disable the toolchain env sourcing.
	Prelude string

	// Stdout and Stderr receive compiler and test output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Name returns the step name.
func (s *Stage) Name() string {
	return "build-and-test"
}

// Run executes the substeps in order. A failing substep is reported as an
// *Error naming it; later substeps never run. All substeps run
// unprivileged since the toolchain lives under the build user's home.
func (s *Stage) Run(ctx context.Context, e env.Environment) error {
	prelude := s.Prelude
	if prelude == "" {
		prelude = DefaultPrelude
	}

	substeps := []struct {
		name string
		cmd  string
	}{
		{SubstepBuild, orDefault(s.BuildCommand, DefaultBuildCommand)},
		{SubstepExamples, orDefault(s.ExamplesCommand, DefaultExamplesCommand)},
		{SubstepTest, orDefault(s.TestCommand, DefaultTestCommand)},
	}

	for _, sub := range substeps {
		exit, err := e.Run(ctx, env.RunSpec{
			Script:    prelude + "\n" + sub.cmd,
			Dir:       s.Dir,
			Privilege: env.Unprivileged,
			Stdout:    s.Stdout,
			Stderr:    s.Stderr,
		})
		if err != nil {
			return fmt.Errorf("substep %s: %w", sub.name, err)
		}
		if exit != 0 {
			return &Error{Substep: sub.name, ExitStatus: exit}
		}
	}

	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Error reports which substep failed and with what exit status. A test
// failure is attributed to the "test" substep, not to the stage as an
// undifferentiated whole.
type Error struct {
	Substep    string
	ExitStatus int
}

func (e *Error) Error() string {
	return fmt.Sprintf("substep %s exited with status %d", e.Substep, e.ExitStatus)
}

// ExitCode returns the shell exit status.
func (e *Error) ExitCode() int {
	return e.ExitStatus
}
