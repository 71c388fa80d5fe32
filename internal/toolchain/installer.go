// Package toolchain installs a compiler toolchain into an execution
// environment by fetching a self-executing installer script over HTTP and
// piping it into the environment's shell, the same shape as
// "curl https://sh.rustup.rs -sSf | sh -s -- -y".
package toolchain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jbweber/crucible/internal/env"
)

// maxScriptSize bounds how much installer script we will buffer.
const maxScriptSize = 8 << 20 // 8 MiB

// Installer fetches an installer script and runs it in an environment.
// It satisfies the pipeline's Step interface.
//
// The script is required to be idempotent: running the installer against
// an already-provisioned environment must succeed without changes, which
// is what allows whole runs to be re-executed against a reused guest.
type Installer struct {
	// URL serves the installer script.
	URL string

	// Args are positional arguments for the script. Nil means ["-y"],
	// which makes the usual installers non-interactive.
	Args []string

	// Client is the HTTP client for the fetch. Nil means a client with a
	// 30 second timeout.
	Client *http.Client

	// Stdout and Stderr receive the installer's output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Name returns the step name.
func (i *Installer) Name() string {
	return "install-toolchain"
}

// Run fetches the script and executes it unprivileged, the way toolchain
// installers expect (they install under the invoking user's home).
func (i *Installer) Run(ctx context.Context, e env.Environment) error {
	script, err := i.fetch(ctx)
	if err != nil {
		return err
	}

	args := i.Args
	if args == nil {
		args = []string{"-y"}
	}

	exit, err := e.Run(ctx, env.RunSpec{
		Script:    script,
		Args:      args,
		Privilege: env.Unprivileged,
		Stdout:    i.Stdout,
		Stderr:    i.Stderr,
	})
	if err != nil {
		return err
	}
	if exit != 0 {
		return &ScriptError{ExitStatus: exit}
	}
	return nil
}

func (i *Installer) fetch(ctx context.Context) (string, error) {
	client := i.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.URL, nil)
	if err != nil {
		return "", &FetchError{URL: i.URL, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: i.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: i.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize+1))
	if err != nil {
		return "", &FetchError{URL: i.URL, Err: err}
	}
	if len(body) > maxScriptSize {
		return "", &FetchError{URL: i.URL, Err: fmt.Errorf("installer script exceeds %d bytes", maxScriptSize)}
	}
	if len(body) == 0 {
		return "", &FetchError{URL: i.URL, Err: fmt.Errorf("installer script is empty")}
	}

	return string(body), nil
}

// FetchError reports a failure to retrieve the installer script. The run
// fails before anything executes in the environment.
type FetchError struct {
	// URL is the installer URL.
	URL string

	// StatusCode is set when the server answered with a non-200 status.
	StatusCode int

	// Err is set for transport-level failures.
	Err error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch installer from %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch installer from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ScriptError reports an installer script that ran and exited non-zero.
type ScriptError struct {
	ExitStatus int
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("installer script exited with status %d", e.ExitStatus)
}

// ExitCode returns the shell exit status.
func (e *ScriptError) ExitCode() int {
	return e.ExitStatus
}
