package v1alpha1

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Validate checks the run for errors.
// Does not validate hypervisor resources (images, bridges, etc.) or host
// paths - only structure. Call Normalize first.
func (run *BuildRun) Validate() error {
	if run.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}

	// Validate name format (after normalization to lowercase)
	// Must start and end with alphanumeric, can contain alphanumeric, hyphens, underscores
	// Pattern matches libvirt domain name requirements
	namePattern := `^[a-z0-9][a-z0-9_-]*[a-z0-9]$`
	if len(run.Name) == 1 {
		// Single character names just need to be alphanumeric
		namePattern = `^[a-z0-9]$`
	}
	matched, err := regexp.MatchString(namePattern, run.Name)
	if err != nil {
		return fmt.Errorf("name validation error: %w", err)
	}
	if !matched {
		return fmt.Errorf("name must start and end with alphanumeric characters and contain only alphanumeric, hyphens, or underscores, got %q", run.Name)
	}

	if err := run.Spec.VM.Validate(); err != nil {
		return fmt.Errorf("spec.vm: %w", err)
	}
	if err := run.Spec.SSH.Validate(); err != nil {
		return fmt.Errorf("spec.ssh: %w", err)
	}
	if err := run.Spec.Project.Validate(); err != nil {
		return fmt.Errorf("spec.project: %w", err)
	}
	if err := run.Spec.Toolchain.Validate(); err != nil {
		return fmt.Errorf("spec.toolchain: %w", err)
	}

	// Validate steps and check for duplicate names
	namesSeen := make(map[string]bool)
	for i, step := range run.Spec.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("spec.steps[%d]: %w", i, err)
		}
		if namesSeen[step.Name] {
			return fmt.Errorf("spec.steps[%d]: duplicate step name %q", i, step.Name)
		}
		namesSeen[step.Name] = true
	}

	return nil
}

// Validate checks the VM configuration.
func (v *VMSpec) Validate() error {
	if v.BaseImage == "" {
		return fmt.Errorf("baseImage is required")
	}
	if v.VCPUs <= 0 {
		return fmt.Errorf("vcpus must be > 0, got %d", v.VCPUs)
	}
	if v.MemoryGiB <= 0 {
		return fmt.Errorf("memoryGiB must be > 0, got %d", v.MemoryGiB)
	}
	if v.DiskSizeGB <= 0 {
		return fmt.Errorf("diskSizeGB must be > 0, got %d", v.DiskSizeGB)
	}
	if err := v.NetworkInterface.Validate(); err != nil {
		return fmt.Errorf("networkInterface: %w", err)
	}
	return nil
}

// Validate checks the network interface configuration.
func (n *NetworkInterfaceSpec) Validate() error {
	if n.IP == "" {
		return fmt.Errorf("ip is required")
	}
	if n.Gateway == "" {
		return fmt.Errorf("gateway is required")
	}
	if n.Bridge == "" {
		return fmt.Errorf("bridge is required")
	}

	// Validate IP/CIDR format
	ip, ipnet, err := net.ParseCIDR(n.IP)
	if err != nil {
		return fmt.Errorf("invalid ip/cidr format %q: %w", n.IP, err)
	}
	if ip == nil || ipnet == nil {
		return fmt.Errorf("invalid ip/cidr format %q", n.IP)
	}

	if net.ParseIP(n.Gateway) == nil {
		return fmt.Errorf("invalid gateway IP address %q", n.Gateway)
	}

	for i, dns := range n.DNSServers {
		if net.ParseIP(dns) == nil {
			return fmt.Errorf("dnsServers[%d] is not a valid IP address: %q", i, dns)
		}
	}

	return nil
}

// Validate checks the SSH configuration.
func (s *SSHSpec) Validate() error {
	if s.PrivateKeyPath == "" {
		return fmt.Errorf("privateKeyPath is required")
	}
	return nil
}

// Validate checks the project configuration.
func (p *ProjectSpec) Validate() error {
	if p.HostPath == "" {
		return fmt.Errorf("hostPath is required")
	}
	if p.GuestPath != "" && !strings.HasPrefix(p.GuestPath, "/") {
		return fmt.Errorf("guestPath must be absolute, got %q", p.GuestPath)
	}
	return nil
}

// Validate checks the toolchain configuration.
func (t *ToolchainSpec) Validate() error {
	if t.InstallerURL == "" {
		return fmt.Errorf("installerURL is required")
	}
	u, err := url.Parse(t.InstallerURL)
	if err != nil {
		return fmt.Errorf("invalid installerURL %q: %w", t.InstallerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("installerURL must use http or https, got %q", t.InstallerURL)
	}
	return nil
}

// Validate checks a single step definition.
func (s *StepSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Privilege {
	case PrivilegeElevated, PrivilegeUnprivileged:
	case "":
		// Normalize fills this in; accept empty as unprivileged
	default:
		return fmt.Errorf("privilege must be %q or %q, got %q", PrivilegeElevated, PrivilegeUnprivileged, s.Privilege)
	}
	if strings.TrimSpace(s.Script) == "" {
		return fmt.Errorf("script is required")
	}

	// Catch shell syntax errors at load time rather than mid-pipeline
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(s.Script), s.Name); err != nil {
		return fmt.Errorf("script has invalid shell syntax: %w", err)
	}

	return nil
}
