package v1alpha1

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// GroupName is the API group for Crucible resources.
	GroupName = "crucible.cofront.xyz"

	// Version is the API version.
	Version = "v1alpha1"

	// BuildRunKind is the kind string for BuildRun resources.
	BuildRunKind = "BuildRun"
)

// Default values applied by Normalize and the Get* accessors.
const (
	DefaultImagePool   = "crucible-images"
	DefaultStoragePool = "crucible-vms"
	DefaultSSHUser     = "crucible"
	DefaultGuestPath   = "/project"

	DefaultBuildCommand    = "cargo build"
	DefaultExamplesCommand = "cargo build --examples"
	DefaultTestCommand     = "cargo test"
)

// NewBuildRun creates a new BuildRun with TypeMeta and ObjectMeta defaults.
func NewBuildRun(name string) *BuildRun {
	now := Time{Time: time.Now()}

	return &BuildRun{
		TypeMeta: TypeMeta{
			APIVersion: GroupName + "/" + Version,
			Kind:       BuildRunKind,
		},
		ObjectMeta: ObjectMeta{
			Name:              name,
			UID:               uuid.New().String(),
			CreationTimestamp: now,
			Generation:        1,
		},
		Spec: BuildRunSpec{
			VM: VMSpec{
				ImagePool:   DefaultImagePool,
				StoragePool: DefaultStoragePool,
			},
			SSH: SSHSpec{
				User: DefaultSSHUser,
			},
			Project: ProjectSpec{
				GuestPath: DefaultGuestPath,
			},
			Toolchain: ToolchainSpec{
				Args: []string{"-y"},
			},
		},
		Status: BuildRunStatus{
			Phase: RunPhasePending,
		},
	}
}

// SetDefaultAPIVersion ensures the run has the correct apiVersion and kind.
// Useful when loading from files that might be missing these fields.
func SetDefaultAPIVersion(run *BuildRun) {
	if run.APIVersion == "" {
		run.APIVersion = GroupName + "/" + Version
	}
	if run.Kind == "" {
		run.Kind = BuildRunKind
	}
}

// GetName returns the run name from metadata.
func (run *BuildRun) GetName() string {
	return run.Name
}

// GetImagePool returns the image pool with default fallback.
func (run *BuildRun) GetImagePool() string {
	if run.Spec.VM.ImagePool == "" {
		return DefaultImagePool
	}
	return run.Spec.VM.ImagePool
}

// GetStoragePool returns the storage pool with default fallback.
func (run *BuildRun) GetStoragePool() string {
	if run.Spec.VM.StoragePool == "" {
		return DefaultStoragePool
	}
	return run.Spec.VM.StoragePool
}

// GetSSHUser returns the SSH user with default fallback.
func (run *BuildRun) GetSSHUser() string {
	if run.Spec.SSH.User == "" {
		return DefaultSSHUser
	}
	return run.Spec.SSH.User
}

// GetGuestPath returns the guest project path with default fallback.
func (run *BuildRun) GetGuestPath() string {
	if run.Spec.Project.GuestPath == "" {
		return DefaultGuestPath
	}
	return run.Spec.Project.GuestPath
}

// GetToolchainArgs returns the installer arguments with default fallback.
func (run *BuildRun) GetToolchainArgs() []string {
	if len(run.Spec.Toolchain.Args) == 0 {
		return []string{"-y"}
	}
	return run.Spec.Toolchain.Args
}

// GetBuildCommand returns the build command with default fallback.
func (run *BuildRun) GetBuildCommand() string {
	if run.Spec.Build.BuildCommand == "" {
		return DefaultBuildCommand
	}
	return run.Spec.Build.BuildCommand
}

// GetExamplesCommand returns the examples build command with default fallback.
func (run *BuildRun) GetExamplesCommand() string {
	if run.Spec.Build.ExamplesCommand == "" {
		return DefaultExamplesCommand
	}
	return run.Spec.Build.ExamplesCommand
}

// GetTestCommand returns the test command with default fallback.
func (run *BuildRun) GetTestCommand() string {
	if run.Spec.Build.TestCommand == "" {
		return DefaultTestCommand
	}
	return run.Spec.Build.TestCommand
}

// SetPhase sets the run phase in status.
func (run *BuildRun) SetPhase(phase RunPhase) {
	run.Status.Phase = phase
}

// GetPhase returns the current run phase.
func (run *BuildRun) GetPhase() RunPhase {
	return run.Status.Phase
}

// SetDomainUUID sets the libvirt domain UUID in status.
func (run *BuildRun) SetDomainUUID(uuid string) {
	run.Status.DomainUUID = uuid
}

// GetDomainUUID returns the libvirt domain UUID.
func (run *BuildRun) GetDomainUUID() string {
	return run.Status.DomainUUID
}

// UpdateObservedGeneration updates status.observedGeneration to match metadata.generation.
func (run *BuildRun) UpdateObservedGeneration() {
	run.Status.ObservedGeneration = run.Generation
}

// GetBootVolumeName returns the volume name for the boot disk.
// Format: <run-name>_boot.qcow2 (includes extension to indicate format)
func (run *BuildRun) GetBootVolumeName() string {
	return fmt.Sprintf("%s_boot.qcow2", run.Name)
}

// GetCloudInitVolumeName returns the volume name for the cloud-init ISO.
// Format: <run-name>_cloudinit.iso (includes extension to indicate format)
func (run *BuildRun) GetCloudInitVolumeName() string {
	return fmt.Sprintf("%s_cloudinit.iso", run.Name)
}

// StepNames returns the pipeline step names in execution order, including
// the implicit toolchain and build stage steps appended after the
// spec-defined steps.
func (run *BuildRun) StepNames() []string {
	names := make([]string, 0, len(run.Spec.Steps)+2)
	for _, s := range run.Spec.Steps {
		names = append(names, s.Name)
	}
	names = append(names, "install-toolchain", "build-and-test")
	return names
}

// Normalize sanitizes user input to consistent formats.
// This is called automatically before validation.
func (run *BuildRun) Normalize() {
	// Normalize run name to lowercase
	run.Name = strings.ToLower(strings.TrimSpace(run.Name))

	// Note: Bridge names are NOT normalized - they must match hypervisor config exactly

	if run.Spec.VM.ImagePool == "" {
		run.Spec.VM.ImagePool = DefaultImagePool
	}
	if run.Spec.VM.StoragePool == "" {
		run.Spec.VM.StoragePool = DefaultStoragePool
	}
	if run.Spec.SSH.User == "" {
		run.Spec.SSH.User = DefaultSSHUser
	}
	if run.Spec.Project.GuestPath == "" {
		run.Spec.Project.GuestPath = DefaultGuestPath
	}
	if len(run.Spec.Toolchain.Args) == 0 {
		run.Spec.Toolchain.Args = []string{"-y"}
	}

	for i := range run.Spec.Steps {
		run.Spec.Steps[i].Name = strings.ToLower(strings.TrimSpace(run.Spec.Steps[i].Name))
		if run.Spec.Steps[i].Privilege == "" {
			run.Spec.Steps[i].Privilege = PrivilegeUnprivileged
		}
	}
}
