package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/crucible/api/v1alpha1"
	"github.com/jbweber/crucible/internal/naming"
)

const (
	// BaseStoragePath is the default base path for run storage
	BaseStoragePath = "/var/lib/libvirt/images"
)

// GenerateDomainXML generates libvirt domain XML for a run's guest.
//
// The guest carries a qcow2 boot disk cloned from the base image, a
// cloud-init NoCloud cdrom, a virtiofs share exposing the project
// directory, and a single bridged NIC with a MAC derived from the
// configured IP. Shared memory backing is required for virtiofs.
func GenerateDomainXML(run *v1alpha1.BuildRun) (string, error) {
	macAddr, err := naming.MACFromIP(run.Spec.VM.NetworkInterface.IP)
	if err != nil {
		return "", fmt.Errorf("failed to calculate MAC address for %s: %w", run.Spec.VM.NetworkInterface.IP, err)
	}

	ifaceName, err := naming.InterfaceNameFromIP(run.Spec.VM.NetworkInterface.IP)
	if err != nil {
		return "", fmt.Errorf("failed to calculate interface name for %s: %w", run.Spec.VM.NetworkInterface.IP, err)
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: run.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(run.Spec.VM.MemoryGiB),
			Unit:  "GiB",
		},
		// virtiofs requires shared memory between the guest and the
		// host-side virtiofsd daemon
		MemoryBacking: &libvirtxml.DomainMemoryBacking{
			MemorySource: &libvirtxml.DomainMemorySource{
				Type: "memfd",
			},
			MemoryAccess: &libvirtxml.DomainMemoryAccess{
				Mode: "shared",
			},
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(run.Spec.VM.VCPUs),
		},
		OS: &libvirtxml.DomainOS{
			Firmware: "efi",
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
			BIOS: &libvirtxml.DomainBIOS{
				UseSerial: "yes",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
			PAE:  &libvirtxml.DomainFeature{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
			Model: &libvirtxml.DomainCPUModel{
				Fallback: "allow",
			},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			Controllers: []libvirtxml.DomainController{
				{
					Type:  "pci",
					Index: func() *uint { i := uint(0); return &i }(),
					Model: "pci-root",
				},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	// Boot disk (volume-based)
	bootDisk := libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  "qcow2",
			Cache: "none",
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   run.GetStoragePool(),
				Volume: run.GetBootVolumeName(),
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 1,
		},
	}
	domain.Devices.Disks = append(domain.Devices.Disks, bootDisk)

	// Cloud-init NoCloud ISO (volume-based)
	cdrom := libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   run.GetStoragePool(),
				Volume: run.GetCloudInitVolumeName(),
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "sda",
			Bus: "sata",
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
	}
	domain.Devices.Disks = append(domain.Devices.Disks, cdrom)

	// Project share over virtiofs; the guest mounts this by tag
	domain.Devices.Filesystems = []libvirtxml.DomainFilesystem{
		{
			Driver: &libvirtxml.DomainFilesystemDriver{
				Type: "virtiofs",
			},
			Source: &libvirtxml.DomainFilesystemSource{
				Mount: &libvirtxml.DomainFilesystemSourceMount{
					Dir: run.Spec.Project.HostPath,
				},
			},
			Target: &libvirtxml.DomainFilesystemTarget{
				Dir: naming.ProjectShareTag(run.Name),
			},
		},
	}

	// Bridged NIC with deterministic MAC and host-side interface name
	domain.Devices.Interfaces = []libvirtxml.DomainInterface{
		{
			MAC: &libvirtxml.DomainInterfaceMAC{
				Address: macAddr,
			},
			Source: &libvirtxml.DomainInterfaceSource{
				Bridge: &libvirtxml.DomainInterfaceSourceBridge{
					Bridge: run.Spec.VM.NetworkInterface.Bridge,
				},
			},
			Model: &libvirtxml.DomainInterfaceModel{
				Type: "virtio",
			},
			Target: &libvirtxml.DomainInterfaceTarget{
				Dev: ifaceName,
			},
		},
	}

	// Serial console
	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainSerialTarget{
				Port: func() *uint { p := uint(0); return &p }(),
			},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainConsoleTarget{
				Type: "serial",
				Port: func() *uint { p := uint(0); return &p }(),
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}
