package v1alpha1

// BuildRun represents one ephemeral build-and-test run managed by Crucible.
//
// A BuildRun describes a VM to boot, a project checkout to mirror into it,
// and the ordered provisioning pipeline to execute inside it: system setup
// steps, a toolchain install, and a final build/test stage. The resource
// separates desired state (Spec) from observed state (Status), following
// Kubernetes API conventions.
type BuildRun struct {
	// TypeMeta contains the API version and kind.
	TypeMeta `json:",inline" yaml:",inline"`

	// ObjectMeta contains metadata like name, labels, annotations.
	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Spec defines the desired run.
	Spec BuildRunSpec `json:"spec" yaml:"spec"`

	// Status defines the observed state of the run.
	// Populated by Crucible while the pipeline executes.
	// +optional
	Status BuildRunStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// BuildRunSpec defines the desired state of a BuildRun.
type BuildRunSpec struct {
	// VM describes the virtual machine to create (or reuse) for this run.
	VM VMSpec `json:"vm" yaml:"vm"`

	// SSH describes how Crucible reaches the guest to run pipeline steps.
	SSH SSHSpec `json:"ssh" yaml:"ssh"`

	// Project describes the checkout mirrored into the guest.
	Project ProjectSpec `json:"project" yaml:"project"`

	// Toolchain describes the compiler toolchain installer.
	Toolchain ToolchainSpec `json:"toolchain" yaml:"toolchain"`

	// Steps is the static list of provisioning steps executed, in order,
	// before the toolchain install. Typically system package installation.
	// +optional
	Steps []StepSpec `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Build configures the final build/test stage.
	// +optional
	Build BuildSpec `json:"build,omitempty" yaml:"build,omitempty"`
}

// VMSpec defines the virtual machine for a run.
type VMSpec struct {
	// BaseImage is the boot image for the VM.
	// Can be a volume name (e.g., "ubuntu-24.04.qcow2"),
	// a pool:volume reference (e.g., "crucible-images:ubuntu-24.04.qcow2"),
	// or a file path.
	BaseImage string `json:"baseImage" yaml:"baseImage"`

	// ImagePool is the storage pool containing the base image.
	// Defaults to "crucible-images".
	// +optional
	ImagePool string `json:"imagePool,omitempty" yaml:"imagePool,omitempty"`

	// StoragePool is the pool for the run's volumes.
	// Defaults to "crucible-vms".
	// +optional
	StoragePool string `json:"storagePool,omitempty" yaml:"storagePool,omitempty"`

	// VCPUs is the number of virtual CPUs to allocate.
	VCPUs int `json:"vcpus" yaml:"vcpus"`

	// MemoryGiB is the amount of memory to allocate in gibibytes.
	MemoryGiB int `json:"memoryGiB" yaml:"memoryGiB"`

	// DiskSizeGB is the size of the boot disk in gigabytes.
	DiskSizeGB int `json:"diskSizeGB" yaml:"diskSizeGB"`

	// NetworkInterface is the network configuration for the guest.
	// The IP doubles as the SSH endpoint for step execution.
	NetworkInterface NetworkInterfaceSpec `json:"networkInterface" yaml:"networkInterface"`

	// Reuse makes Crucible attach to an already-running VM of the same name
	// instead of creating a fresh one. The pipeline still re-runs every step;
	// steps are expected to be idempotent.
	// +optional
	Reuse bool `json:"reuse,omitempty" yaml:"reuse,omitempty"`

	// Keep leaves the VM running after the pipeline finishes.
	// By default the VM is destroyed, success or failure.
	// +optional
	Keep bool `json:"keep,omitempty" yaml:"keep,omitempty"`
}

// NetworkInterfaceSpec defines the guest network interface.
type NetworkInterfaceSpec struct {
	// IP is the address with CIDR notation (e.g., "10.250.250.10/24").
	// Used to derive the MAC address and tap interface name, and as the
	// SSH endpoint for the pipeline.
	IP string `json:"ip" yaml:"ip"`

	// Gateway is the default gateway IP address.
	Gateway string `json:"gateway" yaml:"gateway"`

	// Bridge is the host bridge to attach the interface to.
	Bridge string `json:"bridge" yaml:"bridge"`

	// DNSServers is the list of DNS server IP addresses.
	// +optional
	DNSServers []string `json:"dnsServers,omitempty" yaml:"dnsServers,omitempty"`
}

// SSHSpec defines how Crucible reaches the guest.
type SSHSpec struct {
	// User is the guest account steps run as. Created by cloud-init with
	// passwordless sudo so elevated steps can escalate.
	// Defaults to "crucible".
	// +optional
	User string `json:"user,omitempty" yaml:"user,omitempty"`

	// PrivateKeyPath is the path to the SSH private key on the host.
	// The matching public key is derived and injected via cloud-init.
	PrivateKeyPath string `json:"privateKeyPath" yaml:"privateKeyPath"`
}

// ProjectSpec defines the project checkout mirrored into the guest.
type ProjectSpec struct {
	// HostPath is the project directory on the host.
	HostPath string `json:"hostPath" yaml:"hostPath"`

	// GuestPath is where the checkout appears inside the guest.
	// The build/test stage runs with this as its working directory.
	// Defaults to "/project".
	// +optional
	GuestPath string `json:"guestPath,omitempty" yaml:"guestPath,omitempty"`
}

// ToolchainSpec defines the toolchain installer.
type ToolchainSpec struct {
	// InstallerURL serves a self-executing installer script.
	// The script must be idempotent: re-running against a provisioned
	// guest must not fail.
	InstallerURL string `json:"installerURL" yaml:"installerURL"`

	// Args are positional arguments passed to the installer script.
	// Defaults to ["-y"] so the install runs without prompting.
	// +optional
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// StepPrivilege is the privilege level a step runs with.
type StepPrivilege string

const (
	// PrivilegeElevated runs the step as root (sudo in the guest).
	PrivilegeElevated StepPrivilege = "elevated"

	// PrivilegeUnprivileged runs the step as the SSH user.
	PrivilegeUnprivileged StepPrivilege = "unprivileged"
)

// StepSpec defines one named provisioning step.
type StepSpec struct {
	// Name identifies the step in logs and failure reports.
	// Must be unique within the run.
	Name string `json:"name" yaml:"name"`

	// Privilege is the privilege level for the step.
	// Defaults to "unprivileged".
	// +optional
	Privilege StepPrivilege `json:"privilege,omitempty" yaml:"privilege,omitempty"`

	// Script is the shell body executed for this step.
	Script string `json:"script" yaml:"script"`
}

// BuildSpec configures the build/test stage commands.
type BuildSpec struct {
	// BuildCommand builds the main artifact. Defaults to "cargo build".
	// +optional
	BuildCommand string `json:"buildCommand,omitempty" yaml:"buildCommand,omitempty"`

	// ExamplesCommand builds auxiliary/example artifacts.
	// Defaults to "cargo build --examples".
	// +optional
	ExamplesCommand string `json:"examplesCommand,omitempty" yaml:"examplesCommand,omitempty"`

	// TestCommand runs the automated test suite. Defaults to "cargo test".
	// +optional
	TestCommand string `json:"testCommand,omitempty" yaml:"testCommand,omitempty"`
}

// BuildRunStatus defines the observed state of a BuildRun.
type BuildRunStatus struct {
	// Phase is the current lifecycle phase of the run.
	// +optional
	Phase RunPhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// CurrentStep is the name of the step currently executing.
	// Only meaningful while Phase is Provisioning.
	// +optional
	CurrentStep string `json:"currentStep,omitempty" yaml:"currentStep,omitempty"`

	// FailedStep is the name of the step the run failed at.
	// Only set when Phase is Failed and the failure occurred inside a step.
	// +optional
	FailedStep string `json:"failedStep,omitempty" yaml:"failedStep,omitempty"`

	// Conditions are the latest available observations of the run's state.
	// +optional
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Steps holds per-step execution results, in pipeline order.
	// +optional
	Steps []StepStatus `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Address is the guest address the pipeline connected to.
	// +optional
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// DomainUUID is the libvirt domain UUID backing this run.
	// +optional
	DomainUUID string `json:"domainUUID,omitempty" yaml:"domainUUID,omitempty"`

	// ObservedGeneration reflects the generation most recently observed.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty" yaml:"observedGeneration,omitempty"`
}

// StepStatus records the outcome of one executed step.
type StepStatus struct {
	// Name is the step name.
	Name string `json:"name" yaml:"name"`

	// Status is "Succeeded" or "Failed".
	Status string `json:"status" yaml:"status"`

	// ExitStatus is the exit status of the step's instruction.
	// +optional
	ExitStatus int `json:"exitStatus,omitempty" yaml:"exitStatus,omitempty"`

	// DurationSeconds is how long the step ran.
	// +optional
	DurationSeconds float64 `json:"durationSeconds,omitempty" yaml:"durationSeconds,omitempty"`
}

// RunPhase is the lifecycle phase of a BuildRun.
type RunPhase string

const (
	// RunPhasePending means the run has been accepted but no step has run.
	RunPhasePending RunPhase = "Pending"

	// RunPhaseProvisioning means pipeline steps are executing.
	RunPhaseProvisioning RunPhase = "Provisioning"

	// RunPhaseSucceeded means every pipeline step completed successfully.
	// Terminal: there is no transition out of this phase.
	RunPhaseSucceeded RunPhase = "Succeeded"

	// RunPhaseFailed means a step failed or the environment was unavailable.
	// Terminal: there is no retry transition out of this phase.
	RunPhaseFailed RunPhase = "Failed"
)

// Standard condition types for BuildRun resources.
const (
	// ConditionEnvironmentReady indicates the VM booted and SSH answered.
	ConditionEnvironmentReady = "EnvironmentReady"

	// ConditionProjectMounted indicates the checkout is visible in the guest.
	ConditionProjectMounted = "ProjectMounted"

	// ConditionToolchainInstalled indicates the toolchain install step passed.
	ConditionToolchainInstalled = "ToolchainInstalled"
)

// DeepCopy creates a deep copy of BuildRun.
func (in *BuildRun) DeepCopy() *BuildRun {
	if in == nil {
		return nil
	}
	out := new(BuildRun)
	out.TypeMeta = *in.TypeMeta.DeepCopy()
	out.ObjectMeta = *in.ObjectMeta.DeepCopy()
	out.Spec = *in.Spec.DeepCopy()
	out.Status = *in.Status.DeepCopy()
	return out
}

// DeepCopy creates a deep copy of BuildRunSpec.
func (in *BuildRunSpec) DeepCopy() *BuildRunSpec {
	if in == nil {
		return nil
	}
	out := new(BuildRunSpec)
	*out = *in

	out.VM = *in.VM.DeepCopy()

	if in.Toolchain.Args != nil {
		out.Toolchain.Args = make([]string, len(in.Toolchain.Args))
		copy(out.Toolchain.Args, in.Toolchain.Args)
	}

	if in.Steps != nil {
		out.Steps = make([]StepSpec, len(in.Steps))
		copy(out.Steps, in.Steps)
	}

	return out
}

// DeepCopy creates a deep copy of VMSpec.
func (in *VMSpec) DeepCopy() *VMSpec {
	if in == nil {
		return nil
	}
	out := new(VMSpec)
	*out = *in

	if in.NetworkInterface.DNSServers != nil {
		out.NetworkInterface.DNSServers = make([]string, len(in.NetworkInterface.DNSServers))
		copy(out.NetworkInterface.DNSServers, in.NetworkInterface.DNSServers)
	}

	return out
}

// DeepCopy creates a deep copy of BuildRunStatus.
func (in *BuildRunStatus) DeepCopy() *BuildRunStatus {
	if in == nil {
		return nil
	}
	out := new(BuildRunStatus)
	*out = *in

	if in.Conditions != nil {
		out.Conditions = make([]Condition, len(in.Conditions))
		for i := range in.Conditions {
			out.Conditions[i] = *in.Conditions[i].DeepCopy()
		}
	}

	if in.Steps != nil {
		out.Steps = make([]StepStatus, len(in.Steps))
		copy(out.Steps, in.Steps)
	}

	return out
}
