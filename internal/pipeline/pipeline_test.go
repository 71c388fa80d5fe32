package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

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

// recordingStep implements Step and records whether it ran.
type recordingStep struct {
	name string
	err  error
	ran  bool
}

func (s *recordingStep) Name() string { return s.name }

func (s *recordingStep) Run(ctx context.Context, e env.Environment) error {
	s.ran = true
	return s.err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestPipeline_Run_AllSucceed(t *testing.T) {
	a := &recordingStep{name: "a"}
	b := &recordingStep{name: "b"}
	c := &recordingStep{name: "c"}

	p := New([]Step{a, b, c})
	p.SetLogger(quietLogger())

	if got := p.State(); got != StateNotStarted {
		t.Errorf("State() before Run = %s, want %s", got, StateNotStarted)
	}

	if err := p.Run(context.Background(), &fakeEnv{}); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}

	if got := p.State(); got != StateSucceeded {
		t.Errorf("State() = %s, want %s", got, StateSucceeded)
	}
	for _, s := range []*recordingStep{a, b, c} {
		if !s.ran {
			t.Errorf("step %s did not run", s.name)
		}
	}

	results := p.Results()
	if len(results) != 3 {
		t.Fatalf("Results() length = %d, want 3", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Name != want {
			t.Errorf("Results()[%d].Name = %s, want %s", i, results[i].Name, want)
		}
		if results[i].Err != nil {
			t.Errorf("Results()[%d].Err = %v, want nil", i, results[i].Err)
		}
	}
}

func TestPipeline_Run_FailFast(t *testing.T) {
	stepErr := errors.New("package install failed")
	a := &recordingStep{name: "a"}
	b := &recordingStep{name: "b", err: stepErr}
	c := &recordingStep{name: "c"}

	p := New([]Step{a, b, c})
	p.SetLogger(quietLogger())

	err := p.Run(context.Background(), &fakeEnv{})
	if err == nil {
		t.Fatal("Run() expected error")
	}

	var pipeErr *Error
	if !errors.As(err, &pipeErr) {
		t.Fatalf("Run() error = %T, want *Error", err)
	}
	if pipeErr.Step != "b" {
		t.Errorf("Error.Step = %s, want b", pipeErr.Step)
	}
	if pipeErr.Index != 1 {
		t.Errorf("Error.Index = %d, want 1", pipeErr.Index)
	}
	if !errors.Is(err, stepErr) {
		t.Error("Error should wrap the step's failure")
	}

	if got := p.State(); got != StateFailed {
		t.Errorf("State() = %s, want %s", got, StateFailed)
	}
	if !a.ran || !b.ran {
		t.Error("steps before and at the failure should have run")
	}
	if c.ran {
		t.Error("step after the failure must not run")
	}

	// Only executed steps appear in results
	results := p.Results()
	if len(results) != 2 {
		t.Fatalf("Results() length = %d, want 2", len(results))
	}
	if results[1].Err == nil {
		t.Error("failed step's result should carry its error")
	}
}

func TestPipeline_Run_SucceedsAfterExactlyTwo(t *testing.T) {
	a := &recordingStep{name: "a"}
	b := &recordingStep{name: "b"}

	p := New([]Step{a, b})
	p.SetLogger(quietLogger())

	if err := p.Run(context.Background(), &fakeEnv{}); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}
	if len(p.Results()) != 2 {
		t.Errorf("Results() length = %d, want 2", len(p.Results()))
	}
	if p.State() != StateSucceeded {
		t.Errorf("State() = %s, want %s", p.State(), StateSucceeded)
	}
}

func TestPipeline_Run_RefusesSecondRun(t *testing.T) {
	p := New([]Step{&recordingStep{name: "a"}})
	p.SetLogger(quietLogger())

	if err := p.Run(context.Background(), &fakeEnv{}); err != nil {
		t.Fatalf("first Run() unexpected error = %v", err)
	}
	if err := p.Run(context.Background(), &fakeEnv{}); err == nil {
		t.Error("second Run() expected error")
	}

	// Same guard after a failed run: no retry transition exists
	failed := New([]Step{&recordingStep{name: "a", err: errors.New("boom")}})
	failed.SetLogger(quietLogger())
	if err := failed.Run(context.Background(), &fakeEnv{}); err == nil {
		t.Fatal("Run() expected step failure")
	}
	if err := failed.Run(context.Background(), &fakeEnv{}); err == nil {
		t.Error("Run() after failure expected state error")
	}
	if failed.State() != StateFailed {
		t.Errorf("State() = %s, want %s", failed.State(), StateFailed)
	}
}

func TestPipeline_Run_EnvironmentUnavailable(t *testing.T) {
	unavailable := &env.UnavailableError{Endpoint: "10.0.0.5:22", Err: errors.New("connection reset")}
	e := &fakeEnv{
		runFunc: func(ctx context.Context, spec env.RunSpec) (int, error) {
			return 0, unavailable
		},
	}

	step := &ScriptStep{StepName: "install-packages", Script: "dnf install -y gcc"}
	p := New([]Step{step})
	p.SetLogger(quietLogger())

	err := p.Run(context.Background(), e)
	if err == nil {
		t.Fatal("Run() expected error")
	}
	if !env.IsUnavailable(err) {
		t.Errorf("Run() error = %v, want to wrap UnavailableError", err)
	}
	if p.State() != StateFailed {
		t.Errorf("State() = %s, want %s", p.State(), StateFailed)
	}
}

func TestPipeline_Steps(t *testing.T) {
	p := New([]Step{
		&recordingStep{name: "install-packages"},
		&recordingStep{name: "install-toolchain"},
	})

	got := p.Steps()
	want := []string{"install-packages", "install-toolchain"}
	if len(got) != len(want) {
		t.Fatalf("Steps() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Steps()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScriptStep_Run(t *testing.T) {
	tests := []struct {
		name       string
		exit       int
		envErr     error
		wantErr    bool
		wantExit   int
		wantStatus bool
	}{
		{
			name: "zero exit is success",
			exit: 0,
		},
		{
			name:       "non-zero exit is an ExitError",
			exit:       2,
			wantErr:    true,
			wantExit:   2,
			wantStatus: true,
		},
		{
			name:    "environment error passes through",
			envErr:  &env.UnavailableError{Endpoint: "x", Err: errors.New("gone")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &fakeEnv{
				runFunc: func(ctx context.Context, spec env.RunSpec) (int, error) {
					return tt.exit, tt.envErr
				},
			}
			step := &ScriptStep{StepName: "s", Script: "true"}

			err := step.Run(context.Background(), e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantStatus {
				var exitErr *ExitError
				if !errors.As(err, &exitErr) {
					t.Fatalf("Run() error = %T, want *ExitError", err)
				}
				if exitErr.ExitStatus != tt.wantExit {
					t.Errorf("ExitStatus = %d, want %d", exitErr.ExitStatus, tt.wantExit)
				}
			}
		})
	}
}

func TestScriptStep_Run_PassesSpec(t *testing.T) {
	e := &fakeEnv{}
	var out bytes.Buffer
	step := &ScriptStep{
		StepName:  "install-packages",
		Privilege: env.Elevated,
		Script:    "dnf install -y gcc",
		Dir:       "/tmp",
		Stdout:    &out,
	}

	if err := step.Run(context.Background(), e); err != nil {
		t.Fatalf("Run() unexpected error = %v", err)
	}

	if len(e.calls) != 1 {
		t.Fatalf("environment called %d times, want 1", len(e.calls))
	}
	call := e.calls[0]
	if call.Script != "dnf install -y gcc" {
		t.Errorf("Script = %q", call.Script)
	}
	if call.Privilege != env.Elevated {
		t.Errorf("Privilege = %s, want %s", call.Privilege, env.Elevated)
	}
	if call.Dir != "/tmp" {
		t.Errorf("Dir = %s, want /tmp", call.Dir)
	}
	if call.Stdout != &out {
		t.Error("Stdout writer not passed through")
	}
}

func TestPipeline_Run_ExitStatusInResults(t *testing.T) {
	e := &fakeEnv{
		runFunc: func(ctx context.Context, spec env.RunSpec) (int, error) {
			return 127, nil
		},
	}
	p := New([]Step{&ScriptStep{StepName: "s", Script: "missing-command"}})
	p.SetLogger(quietLogger())

	if err := p.Run(context.Background(), e); err == nil {
		t.Fatal("Run() expected error")
	}

	results := p.Results()
	if len(results) != 1 {
		t.Fatalf("Results() length = %d, want 1", len(results))
	}
	if results[0].ExitStatus != 127 {
		t.Errorf("ExitStatus = %d, want 127", results[0].ExitStatus)
	}
}
