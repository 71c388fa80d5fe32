package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Local executes instructions in-process with an embedded POSIX shell
// interpreter. Used for development runs against the build host itself and
// as the environment of choice in tests.
//
// Local cannot escalate privileges: Elevated instructions run as the
// current user. Callers that need real root should use an SSH environment
// into a guest.
type Local struct {
	// Dir is the default working directory for instructions that do not
	// set their own. Empty means the process working directory.
	Dir string

	// Env is the base environment. Nil means the process environment.
	Env []string
}

// NewLocal returns a Local environment rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// Run parses and executes the instruction's script with the embedded
// interpreter. The script's exit status is returned as data; errors are
// reserved for interpreter construction or parse failures.
func (l *Local) Run(ctx context.Context, spec RunSpec) (int, error) {
	parser := syntax.NewParser()
	prog, err := parser.Parse(strings.NewReader(spec.Script), "script")
	if err != nil {
		return 0, &UnavailableError{Endpoint: "local", Err: fmt.Errorf("parse script: %w", err)}
	}

	dir := spec.Dir
	if dir == "" {
		dir = l.Dir
	}

	environ := l.Env
	if environ == nil {
		environ = os.Environ()
	}

	stdout := spec.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := spec.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	opts := []interp.RunnerOption{
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(environ...)),
		interp.StdIO(nil, stdout, stderr),
	}

	// Prepend "--" to signal end of options; without this, args like "-y"
	// are incorrectly interpreted as shell options by interp.Params()
	if len(spec.Args) > 0 {
		params := append([]string{"--"}, spec.Args...)
		opts = append(opts, interp.Params(params...))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return 0, &UnavailableError{Endpoint: "local", Err: fmt.Errorf("create interpreter: %w", err)}
	}

	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return int(exitStatus), nil
		}
		return 0, &UnavailableError{Endpoint: "local", Err: err}
	}

	return 0, nil
}
