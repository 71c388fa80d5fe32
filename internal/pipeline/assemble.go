package pipeline

import (
	"io"

	"github.com/jbweber/crucible/api/v1alpha1"
	"github.com/jbweber/crucible/internal/buildtest"
	"github.com/jbweber/crucible/internal/env"
	"github.com/jbweber/crucible/internal/toolchain"
)

// FromRun assembles the pipeline for a run: its provisioning steps
// in declared order, then the toolchain install, then the build/test
// stage. Step output goes to stdout/stderr; nil discards.
func FromRun(run *v1alpha1.BuildRun, stdout, stderr io.Writer) *Pipeline {
	steps := make([]Step, 0, len(run.Spec.Steps)+2)

	for _, s := range run.Spec.Steps {
		privilege := env.Unprivileged
		if s.Privilege == v1alpha1.PrivilegeElevated {
			privilege = env.Elevated
		}
		steps = append(steps, &ScriptStep{
			StepName:  s.Name,
			Privilege: privilege,
			Script:    s.Script,
			Stdout:    stdout,
			Stderr:    stderr,
		})
	}

	steps = append(steps, &toolchain.Installer{
		URL:    run.Spec.Toolchain.InstallerURL,
		Args:   run.GetToolchainArgs(),
		Stdout: stdout,
		Stderr: stderr,
	})

	steps = append(steps, &buildtest.Stage{
		Dir:             run.GetGuestPath(),
		BuildCommand:    run.Spec.Build.BuildCommand,
		ExamplesCommand: run.Spec.Build.ExamplesCommand,
		TestCommand:     run.Spec.Build.TestCommand,
		Stdout:          stdout,
		Stderr:          stderr,
	})

	return New(steps)
}
