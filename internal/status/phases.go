package status

import (
	"fmt"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// TransitionToProvisioning transitions the run phase to Provisioning.
// This should be called when pipeline execution starts.
func TransitionToProvisioning(run *v1alpha1.BuildRun) error {
	// Can only transition from Pending to Provisioning
	if run.GetPhase() != v1alpha1.RunPhasePending {
		return fmt.Errorf("cannot transition to Provisioning from phase %s", run.GetPhase())
	}

	run.SetPhase(v1alpha1.RunPhaseProvisioning)
	return nil
}

// TransitionToSucceeded transitions the run phase to Succeeded.
// This should be called when every pipeline step completed.
func TransitionToSucceeded(run *v1alpha1.BuildRun) error {
	// Can only transition from Provisioning to Succeeded
	if run.GetPhase() != v1alpha1.RunPhaseProvisioning {
		return fmt.Errorf("cannot transition to Succeeded from phase %s", run.GetPhase())
	}

	run.SetPhase(v1alpha1.RunPhaseSucceeded)
	run.Status.CurrentStep = ""
	run.UpdateObservedGeneration()
	return nil
}

// TransitionToFailed transitions the run phase to Failed, recording the
// step the run failed at. failedStep is empty when the failure happened
// before any step ran (environment never became available).
//
// Failed is terminal: there is no retry transition. A new run starts over
// from Pending.
func TransitionToFailed(run *v1alpha1.BuildRun, failedStep string) error {
	phase := run.GetPhase()
	if phase == v1alpha1.RunPhaseSucceeded || phase == v1alpha1.RunPhaseFailed {
		return fmt.Errorf("cannot transition to Failed from terminal phase %s", phase)
	}

	run.SetPhase(v1alpha1.RunPhaseFailed)
	run.Status.CurrentStep = ""
	run.Status.FailedStep = failedStep
	run.UpdateObservedGeneration()
	return nil
}

// IsTerminal returns true if the phase is terminal (Succeeded or Failed).
// Terminal runs never transition again.
func IsTerminal(phase v1alpha1.RunPhase) bool {
	return phase == v1alpha1.RunPhaseSucceeded || phase == v1alpha1.RunPhaseFailed
}

// StepOutcome is the status package's view of one executed step.
type StepOutcome struct {
	Name            string
	Failed          bool
	ExitStatus      int
	DurationSeconds float64
}

// RecordStepResults copies per-step pipeline outcomes into the run status.
func RecordStepResults(run *v1alpha1.BuildRun, results []StepOutcome) {
	run.Status.Steps = run.Status.Steps[:0]
	for _, r := range results {
		st := v1alpha1.StepStatus{
			Name:            r.Name,
			Status:          "Succeeded",
			DurationSeconds: r.DurationSeconds,
		}
		if r.Failed {
			st.Status = "Failed"
			st.ExitStatus = r.ExitStatus
		}
		run.Status.Steps = append(run.Status.Steps, st)
	}
}
