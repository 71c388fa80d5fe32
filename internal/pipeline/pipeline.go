package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jbweber/crucible/internal/env"
)

// State is the lifecycle state of a pipeline.
type State string

const (
	// StateNotStarted means Run has not been called.
	StateNotStarted State = "NotStarted"

	// StateRunning means steps are executing.
	StateRunning State = "Running"

	// StateSucceeded means every step completed. Terminal.
	StateSucceeded State = "Succeeded"

	// StateFailed means a step failed and execution stopped. Terminal.
	StateFailed State = "Failed"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	// Name is the step name.
	Name string

	// Err is nil when the step succeeded.
	Err error

	// ExitStatus is the shell exit status, when the failure carried one.
	ExitStatus int

	// Duration is how long the step ran.
	Duration time.Duration
}

// Error reports the step a pipeline failed at.
type Error struct {
	// Step is the failed step's name.
	Step string

	// Index is the failed step's zero-based position.
	Index int

	// Err is the step's failure.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline executes an ordered list of steps against an environment.
// A Pipeline runs exactly once; calling Run on a started pipeline is an
// error. There is no retry: the only way out of a failed run is a new
// pipeline.
type Pipeline struct {
	steps   []Step
	state   State
	results []StepResult
	logger  *log.Logger
}

// New builds a pipeline over steps, in order.
func New(steps []Step) *Pipeline {
	return &Pipeline{
		steps: steps,
		state: StateNotStarted,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "pipeline",
		}),
	}
}

// SetLogger replaces the default logger. Must be called before Run.
func (p *Pipeline) SetLogger(logger *log.Logger) {
	p.logger = logger
}

// State returns the pipeline's lifecycle state.
func (p *Pipeline) State() State {
	return p.state
}

// Results returns per-step outcomes for the steps that actually ran, in
// execution order. Steps after a failure never appear.
func (p *Pipeline) Results() []StepResult {
	return p.results
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes the steps in order, stopping at the first failure.
//
// On failure the returned error is an *Error naming the step; steps after
// it are never attempted. Run refuses to execute a pipeline that already
// started, whatever the outcome was.
func (p *Pipeline) Run(ctx context.Context, e env.Environment) error {
	if p.state != StateNotStarted {
		return fmt.Errorf("pipeline already started (state %s)", p.state)
	}
	p.state = StateRunning

	for i, step := range p.steps {
		p.logger.Info("step starting", "step", step.Name(), "position", fmt.Sprintf("%d/%d", i+1, len(p.steps)))

		start := time.Now()
		err := step.Run(ctx, e)
		duration := time.Since(start)

		result := StepResult{
			Name:     step.Name(),
			Err:      err,
			Duration: duration,
		}
		var coder exitCoder
		if errors.As(err, &coder) {
			result.ExitStatus = coder.ExitCode()
		}
		p.results = append(p.results, result)

		if err != nil {
			p.state = StateFailed
			p.logger.Error("step failed", "step", step.Name(), "duration", duration, "error", err)
			return &Error{Step: step.Name(), Index: i, Err: err}
		}

		p.logger.Info("step succeeded", "step", step.Name(), "duration", duration)
	}

	p.state = StateSucceeded
	return nil
}
