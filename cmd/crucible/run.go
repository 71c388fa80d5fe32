package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jbweber/crucible/api/v1alpha1"
	"github.com/jbweber/crucible/internal/env"
	"github.com/jbweber/crucible/internal/loader"
	"github.com/jbweber/crucible/internal/output"
	"github.com/jbweber/crucible/internal/pipeline"
	"github.com/jbweber/crucible/internal/status"
	"github.com/jbweber/crucible/internal/vm"
)

// Exit codes for the run command. A pipeline failure at step index N exits
// with exitStepBase+N so CI can tell which step broke without parsing logs.
const (
	exitOK             = 0
	exitRunError       = 1
	exitEnvUnavailable = 2
	exitStepBase       = 10
)

// bootTimeout bounds VM creation plus the wait for sshd to come up.
const bootTimeout = 5 * time.Minute

var runCmd = &cobra.Command{
	Use:   "run <buildrun.yaml>",
	Short: "Execute a build-and-test run",
	Long: `Execute a full build-and-test run from a BuildRun resource file.

The flow:
- Boot a VM from the base image (or reuse a running one with vm.reuse)
- Wait for SSH on the configured address
- Run the provisioning steps, the toolchain install, and the build/test
  stage in order, stopping at the first failure
- Print the run report and tear the VM down (unless vm.keep is set)

Exit codes:
  0     every step succeeded
  1     configuration, connection, or VM lifecycle error
  2     the guest never became reachable
  10+N  the pipeline failed at step index N`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		run, err := loader.LoadFromFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitRunError)
		}

		os.Exit(executeRun(context.Background(), run))
		return nil
	},
}

// executeRun drives one run end to end and returns the process exit code.
func executeRun(ctx context.Context, run *v1alpha1.BuildRun) int {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: run.Name})

	// A fresh UID per invocation keeps cloud-init's instance-id unique, so
	// a reused disk still re-provisions.
	if run.UID == "" {
		run.UID = uuid.New().String()
	}

	bootCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	conn, err := vm.CreateEnvironment(bootCtx, run)
	if err != nil {
		status.MarkEnvironmentFailed(run, err)
		logger.Error("environment setup failed", "error", err)
		if env.IsUnavailable(err) {
			return exitEnvUnavailable
		}
		return exitRunError
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close SSH connection", "error", err)
		}
	}()

	status.MarkEnvironmentReady(run, conn.Endpoint())
	status.MarkProjectMounted(run)

	// The VM goes away when the run finishes, success or failure, unless
	// spec.vm.keep asks for it to stay.
	defer func() {
		if run.Spec.VM.Keep {
			logger.Info("keeping VM", "vm", run.Name)
			if err := vm.UpdateStatus(ctx, run); err != nil {
				logger.Warn("failed to persist run status", "error", err)
			}
			return
		}
		if err := vm.Destroy(ctx, run.Name); err != nil {
			logger.Warn("failed to destroy run VM", "error", err)
		}
	}()

	p := pipeline.FromRun(run, os.Stdout, os.Stderr)
	p.SetLogger(logger)

	if err := status.TransitionToProvisioning(run); err != nil {
		logger.Error("invalid run phase", "error", err)
		return exitRunError
	}

	pipeErr := p.Run(ctx, conn)
	recordResults(run, p.Results())

	if pipeErr != nil {
		var stepErr *pipeline.Error
		if errors.As(pipeErr, &stepErr) {
			_ = status.TransitionToFailed(run, stepErr.Step)
			logger.Error("run failed", "step", stepErr.Step, "error", stepErr.Err)
			printReport(run)
			return exitStepBase + stepErr.Index
		}
		_ = status.TransitionToFailed(run, "")
		logger.Error("run failed", "error", pipeErr)
		printReport(run)
		return exitRunError
	}

	status.MarkToolchainInstalled(run)
	if err := status.TransitionToSucceeded(run); err != nil {
		logger.Error("invalid run phase", "error", err)
		return exitRunError
	}

	logger.Info("run succeeded", "steps", len(p.Results()))
	printReport(run)
	return exitOK
}

// recordResults copies pipeline step outcomes into the run's status.
func recordResults(run *v1alpha1.BuildRun, results []pipeline.StepResult) {
	outcomes := make([]status.StepOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, status.StepOutcome{
			Name:            r.Name,
			Failed:          r.Err != nil,
			ExitStatus:      r.ExitStatus,
			DurationSeconds: r.Duration.Seconds(),
		})
	}
	status.RecordStepResults(run, outcomes)
}

// printReport renders the finished run in the requested output format.
func printReport(run *v1alpha1.BuildRun) {
	formatter, err := output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}

	result, err := formatter.FormatRun(run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to format report: %v\n", err)
		return
	}

	fmt.Print(result)
}
