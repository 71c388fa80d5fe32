package toolchain

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jbweber/crucible/internal/env"
)

// fakeEnv implements env.Environment with a configurable function.
type fakeEnv struct {
	runFunc func(ctx context.Context, spec env.RunSpec) (int, error)
	calls   []env.RunSpec
}

func (f *fakeEnv) Run(ctx context.Context, spec env.RunSpec) (int, error) {
	f.calls = append(f.calls, spec)
	if f.runFunc != nil {
		return f.runFunc(ctx, spec)
	}
	return 0, nil
}

func TestInstaller_Name(t *testing.T) {
	i := &Installer{}
	if got := i.Name(); got != "install-toolchain" {
		t.Errorf("Name() = %s, want install-toolchain", got)
	}
}

func TestInstaller_Run_FetchesAndExecutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#!/bin/sh\nrustup-init \"$@\"\n"))
	}))
	defer server.Close()

	e := &fakeEnv{}
	i := &Installer{URL: server.URL}

	if err := i.Run(context.Background(), e); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}

	if len(e.calls) != 1 {
		t.Fatalf("environment called %d times, want 1", len(e.calls))
	}
	call := e.calls[0]
	if !strings.Contains(call.Script, "rustup-init") {
		t.Errorf("Script = %q, want fetched script body", call.Script)
	}
	if len(call.Args) != 1 || call.Args[0] != "-y" {
		t.Errorf("Args = %v, want [-y]", call.Args)
	}
	if call.Privilege != env.Unprivileged {
		t.Errorf("Privilege = %s, want %s", call.Privilege, env.Unprivileged)
	}
}

func TestInstaller_Run_CustomArgs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("true"))
	}))
	defer server.Close()

	e := &fakeEnv{}
	i := &Installer{URL: server.URL, Args: []string{"-y", "--default-toolchain", "nightly"}}

	if err := i.Run(context.Background(), e); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if got := e.calls[0].Args; len(got) != 3 || got[2] != "nightly" {
		t.Errorf("Args = %v, want custom args passed through", got)
	}
}

func TestInstaller_Run_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	e := &fakeEnv{}
	i := &Installer{URL: server.URL}

	err := i.Run(context.Background(), e)
	if err == nil {
		t.Fatal("Run() expected error")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Run() error = %T, want *FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, http.StatusNotFound)
	}

	// Nothing must execute when the fetch fails
	if len(e.calls) != 0 {
		t.Errorf("environment called %d times, want 0", len(e.calls))
	}
}

func TestInstaller_Run_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse immediately

	e := &fakeEnv{}
	i := &Installer{URL: server.URL}

	err := i.Run(context.Background(), e)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Run() error = %T, want *FetchError", err)
	}
	if fetchErr.Err == nil {
		t.Error("FetchError.Err should carry the transport failure")
	}
}

func TestInstaller_Run_EmptyScript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	i := &Installer{URL: server.URL}
	err := i.Run(context.Background(), &fakeEnv{})
	if err == nil {
		t.Fatal("Run() expected error for empty installer script")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Run() error = %T, want *FetchError", err)
	}
}

func TestInstaller_Run_ScriptFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("exit 5"))
	}))
	defer server.Close()

	e := &fakeEnv{
		runFunc: func(ctx context.Context, spec env.RunSpec) (int, error) {
			return 5, nil
		},
	}
	i := &Installer{URL: server.URL}

	err := i.Run(context.Background(), e)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("Run() error = %T, want *ScriptError", err)
	}
	if scriptErr.ExitStatus != 5 {
		t.Errorf("ExitStatus = %d, want 5", scriptErr.ExitStatus)
	}
	if scriptErr.ExitCode() != 5 {
		t.Errorf("ExitCode() = %d, want 5", scriptErr.ExitCode())
	}
}

func TestInstaller_Run_EnvironmentError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("true"))
	}))
	defer server.Close()

	unavailable := &env.UnavailableError{Endpoint: "x", Err: errors.New("gone")}
	e := &fakeEnv{
		runFunc: func(ctx context.Context, spec env.RunSpec) (int, error) {
			return 0, unavailable
		},
	}
	i := &Installer{URL: server.URL}

	err := i.Run(context.Background(), e)
	if !env.IsUnavailable(err) {
		t.Errorf("Run() error = %v, want UnavailableError to pass through", err)
	}
}

// The installer must succeed when run twice against the same environment,
// provided the script itself is idempotent. Exercised end to end against
// the in-process shell.
func TestInstaller_Run_Idempotent(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "toolchain-installed")
	script := `if [ "$1" != "-y" ]; then exit 2; fi
if [ -e "` + marker + `" ]; then
  echo already installed
  exit 0
fi
echo installed > "` + marker + `"
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(script))
	}))
	defer server.Close()

	local := env.NewLocal(t.TempDir())

	var out bytes.Buffer
	i := &Installer{URL: server.URL, Stdout: &out}

	if err := i.Run(context.Background(), local); err != nil {
		t.Fatalf("first Run() unexpected error = %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("marker not written: %v", err)
	}

	if err := i.Run(context.Background(), local); err != nil {
		t.Fatalf("second Run() unexpected error = %v", err)
	}
	if !strings.Contains(out.String(), "already installed") {
		t.Errorf("second run output = %q, want idempotent path", out.String())
	}
}
