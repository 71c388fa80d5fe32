package storage

import "fmt"

// Pools and paths used when nothing else is configured. Base images are
// imported once and shared; every run gets its own linked-clone boot
// disk in the vms pool.
const (
	DefaultImagesPool = "crucible-images"
	DefaultVMsPool    = "crucible-vms"

	DefaultImagesPath = "/var/lib/libvirt/images/crucible/images"
	DefaultVMsPath    = "/var/lib/libvirt/images/crucible/vms"
)

// PoolType identifies a storage pool backend.
type PoolType string

const (
	PoolTypeDir PoolType = "dir"
	PoolTypeLVM PoolType = "lvm"
)

// VolumeType says what a volume is for. The type picks naming and
// defaults; libvirt itself does not care.
type VolumeType string

const (
	VolumeTypeBoot      VolumeType = "boot"
	VolumeTypeData      VolumeType = "data"
	VolumeTypeCloudInit VolumeType = "cloudinit"
	VolumeTypeBaseImage VolumeType = "base-image"
)

// VolumeFormat is the on-disk format of a volume.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// VolumeSpec describes a volume to create.
type VolumeSpec struct {
	Name          string
	Type          VolumeType
	Format        VolumeFormat
	CapacityGB    uint64
	BackingVolume string // backing volume name for qcow2 linked clones
	BackingPool   string // pool holding the backing volume; defaults to the volume's own pool
}

// Validate rejects specs libvirt would either refuse or silently
// mis-create. Cloud-init ISOs are sized by their content, so they are
// the one type allowed a zero capacity.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Type == "" {
		return fmt.Errorf("volume type is required")
	}
	if v.Format == "" {
		return fmt.Errorf("volume format is required")
	}
	if v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw {
		return fmt.Errorf("invalid volume format: %s (must be qcow2 or raw)", v.Format)
	}
	if v.CapacityGB == 0 && v.Type != VolumeTypeCloudInit {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	if v.BackingVolume != "" && v.Format != VolumeFormatQCOW2 {
		return fmt.Errorf("backing volumes are only supported for qcow2 format")
	}
	return nil
}

// PoolInfo is a point-in-time view of a storage pool.
type PoolInfo struct {
	Name       string
	Type       PoolType
	Path       string
	UUID       string
	State      string
	Autostart  bool
	Persistent bool
	Capacity   uint64 // bytes
	Allocation uint64 // bytes
	Available  uint64 // bytes
}

func (p *PoolInfo) CapacityGB() float64 {
	return float64(p.Capacity) / (1024 * 1024 * 1024)
}

func (p *PoolInfo) AllocationGB() float64 {
	return float64(p.Allocation) / (1024 * 1024 * 1024)
}

func (p *PoolInfo) AvailableGB() float64 {
	return float64(p.Available) / (1024 * 1024 * 1024)
}

// VolumeInfo is a point-in-time view of a storage volume.
type VolumeInfo struct {
	Name       string
	Type       VolumeType
	Format     VolumeFormat
	Path       string
	Pool       string
	Capacity   uint64 // bytes
	Allocation uint64 // bytes
}

func (v *VolumeInfo) CapacityGB() float64 {
	return float64(v.Capacity) / (1024 * 1024 * 1024)
}

func (v *VolumeInfo) AllocationGB() float64 {
	return float64(v.Allocation) / (1024 * 1024 * 1024)
}
