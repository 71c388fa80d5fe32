package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/crucible/internal/storage"
)

// libvirtClient lists the domain operations run management performs.
// *libvirt.Libvirt satisfies it; tests substitute a mock.
type libvirtClient interface {
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainDefineXML(xml string) (libvirt.Domain, error)
	DomainCreate(dom libvirt.Domain) error
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)
	DomainGetInfo(dom libvirt.Domain) (state uint8, maxMem uint64, memory uint64, nrVirtCPU uint16, cpuTime uint64, err error)
	DomainShutdown(dom libvirt.Domain) error
	DomainDestroy(dom libvirt.Domain) error
	DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// storageManager lists the storage operations run management performs:
// default pool setup, the linked-clone boot disk, and the cloud-init
// seed volume. *storage.Manager satisfies it.
type storageManager interface {
	EnsureDefaultPools(ctx context.Context) error
	VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error)
	CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	CloneBootVolume(ctx context.Context, imagesPool, imageName, vmsPool, volumeName string, capacityGB uint64) error
	DeleteVolume(ctx context.Context, poolName, volumeName string) error
	WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error
	ListVolumes(ctx context.Context, poolName string) ([]storage.VolumeInfo, error)
}
