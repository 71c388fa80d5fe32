// Package cloudinit provides cloud-init configuration generation for the
// guests that back build runs.
//
// This package generates cloud-init configuration files (user-data, meta-data,
// network-config) following the official cloud-init NoCloud datasource
// specification.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/crucible/api/v1alpha1"
	"github.com/jbweber/crucible/internal/naming"
)

// Input bundles a run with the host-derived values cloud-init needs.
type Input struct {
	// Run is the BuildRun being provisioned.
	Run *v1alpha1.BuildRun

	// SSHPublicKey is the authorized_keys line injected for the build user.
	SSHPublicKey string

	// MACAddress matches the guest NIC so the static network config binds
	// to the right interface.
	MACAddress string
}

// UserData represents the cloud-config user-data structure.
// This is marshaled to YAML and prefixed with "#cloud-config" header.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname        string     `yaml:"hostname"`
	Users           []User     `yaml:"users"`
	Mounts          [][]string `yaml:"mounts,omitempty"`
	SSHPasswordAuth bool       `yaml:"ssh_pwauth"`
	Output          *Output    `yaml:"output,omitempty"`
}

// User is a cloud-init users entry. The build user gets passwordless sudo
// so elevated pipeline steps can escalate without a TTY.
type User struct {
	Name              string   `yaml:"name"`
	Sudo              string   `yaml:"sudo"`
	Shell             string   `yaml:"shell"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData represents the cloud-init meta-data structure.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig represents the netplan v2 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig represents a single ethernet interface configuration.
type EthernetConfig struct {
	Match       MatchConfig   `yaml:"match"`
	Addresses   []string      `yaml:"addresses"`
	Routes      []RouteConfig `yaml:"routes,omitempty"`
	Nameservers *Nameservers  `yaml:"nameservers,omitempty"`
}

// MatchConfig matches an interface by MAC address.
type MatchConfig struct {
	MACAddress string `yaml:"macaddress"`
}

// RouteConfig represents a static route.
type RouteConfig struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers represents DNS server configuration.
type Nameservers struct {
	Addresses []string `yaml:"addresses"`
}

// GenerateUserData generates the user-data YAML content for a run.
//
// The generated config creates the build user with passwordless sudo and
// the injected SSH key, and mounts the virtiofs project share at the run's
// guest path.
//
// Returns the complete user-data file content including the "#cloud-config" header.
func GenerateUserData(in Input) (string, error) {
	if in.Run == nil {
		return "", fmt.Errorf("run cannot be nil")
	}
	if in.SSHPublicKey == "" {
		return "", fmt.Errorf("SSH public key is required")
	}

	run := in.Run

	userData := UserData{
		Hostname: run.Name,
		Users: []User{
			{
				Name:              run.GetSSHUser(),
				Sudo:              "ALL=(ALL) NOPASSWD:ALL",
				Shell:             "/bin/bash",
				SSHAuthorizedKeys: []string{in.SSHPublicKey},
			},
		},
		Mounts: [][]string{
			{naming.ProjectShareTag(run.Name), run.GetGuestPath(), "virtiofs", "defaults", "0", "0"},
		},
		SSHPasswordAuth: false,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	// Prepend #cloud-config header (required by cloud-init spec)
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData generates the meta-data YAML content for a run.
//
// The instance-id is set to the run's UID. Cloud-init uses instance-id to
// determine if this is a first boot, so a fresh run against a reused disk
// still re-provisions.
func GenerateMetaData(in Input) (string, error) {
	if in.Run == nil {
		return "", fmt.Errorf("run cannot be nil")
	}

	instanceID := in.Run.UID
	if instanceID == "" {
		instanceID = in.Run.Name
	}

	metaData := MetaData{
		InstanceID:    instanceID,
		LocalHostname: in.Run.Name,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateNetworkConfig generates the network-config YAML content for a run.
//
// Uses netplan version 2 format with the ethernet interface matched by MAC
// address. The static address is what the host later dials for SSH.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
func GenerateNetworkConfig(in Input) (string, error) {
	if in.Run == nil {
		return "", fmt.Errorf("run cannot be nil")
	}
	if in.MACAddress == "" {
		return "", fmt.Errorf("MAC address is required")
	}

	iface := in.Run.Spec.VM.NetworkInterface

	ethConfig := EthernetConfig{
		Match: MatchConfig{
			MACAddress: in.MACAddress,
		},
		Addresses: []string{iface.IP},
		Routes: []RouteConfig{
			{
				To:  "0.0.0.0/0",
				Via: iface.Gateway,
			},
		},
	}

	if len(iface.DNSServers) > 0 {
		ethConfig.Nameservers = &Nameservers{
			Addresses: iface.DNSServers,
		}
	}

	networkConfig := NetworkConfig{
		Version: 2,
		Ethernets: map[string]EthernetConfig{
			"eth0": ethConfig,
		},
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
