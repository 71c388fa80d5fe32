// Package naming provides infrastructure-level naming conventions for
// libvirt resources backing build runs. This includes MAC address
// calculation from IP, interface naming, volume naming, and the virtiofs
// share tag for the project mount.
//
// These naming rules are version-independent and shared across all
// API versions.
package naming

import (
	"fmt"
	"net"
	"strings"
)

// MACFromIP calculates a deterministic MAC address from an IP address.
// Uses the RFC 2731 local assignment prefix be:ef:.
//
// Example: IP 10.55.22.22 → MAC be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}

	// Format: be:ef:XX:XX:XX:XX where XX are IP octets in hex
	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// InterfaceNameFromIP calculates a deterministic tap interface name from an IP address.
// Format: vm{hex_octets} (10 chars total, well within Linux 15-char limit)
//
// Example: IP 10.55.22.22 → vm0a371616
func InterfaceNameFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}

	// Format: vm{8 hex digits}
	return fmt.Sprintf("vm%02x%02x%02x%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// parseIPv4 accepts both "10.1.2.3" and "10.1.2.3/24" forms.
func parseIPv4(ip string) (net.IP, error) {
	ipStr := ip
	if strings.Contains(ip, "/") {
		ipAddr, _, err := net.ParseCIDR(ip)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		ipStr = ipAddr.String()
	}

	parsedIP := net.ParseIP(ipStr)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	ipv4 := parsedIP.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", ipStr)
	}

	return ipv4, nil
}

// DefaultSSHPort is the port guests answer SSH on. Cloud images ship
// sshd on 22 and nothing in the domain XML moves it.
const DefaultSSHPort = "22"

// AddressFromIP derives the guest's SSH endpoint from its configured
// IP: the CIDR suffix is dropped and the SSH port appended
// (e.g., "10.1.2.3/24" → "10.1.2.3:22"). The result goes straight into
// ssh.Dial, so it is always host:port.
func AddressFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ipv4.String(), DefaultSSHPort), nil
}

// VolumeNameBoot returns the volume name for a run's boot disk.
// Format: {runName}_boot.qcow2
func VolumeNameBoot(runName string) string {
	return fmt.Sprintf("%s_boot.qcow2", runName)
}

// VolumeNameCloudInit returns the volume name for a run's cloud-init ISO.
// Format: {runName}_cloudinit.iso
func VolumeNameCloudInit(runName string) string {
	return fmt.Sprintf("%s_cloudinit.iso", runName)
}

// ProjectShareTag returns the virtiofs mount tag for a run's project share.
// The tag appears in the domain XML and in the guest's fstab entry.
// Format: {runName}-project
func ProjectShareTag(runName string) string {
	return fmt.Sprintf("%s-project", runName)
}
