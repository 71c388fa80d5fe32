package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the slice of the libvirt API the manager needs.
// *libvirt.Libvirt satisfies it; tests substitute a mock.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolDestroy(Pool libvirt.StoragePool) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolGetXMLDesc(Vol libvirt.StorageVol, Flags uint32) (string, error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
	ConnectListAllStoragePools(NeedResults int32, Flags libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error)
}

// Manager coordinates pool, volume, and image operations.
type Manager struct {
	client LibvirtClient
}

// NewManager returns a Manager over the given client.
func NewManager(client LibvirtClient) *Manager {
	return &Manager{client: client}
}

// EnsureDefaultPools creates the crucible-images and crucible-vms pools
// if the host does not have them yet. Every run calls this before
// touching storage.
func (m *Manager) EnsureDefaultPools(ctx context.Context) error {
	if err := m.EnsurePool(ctx, DefaultImagesPool, PoolTypeDir, DefaultImagesPath); err != nil {
		return fmt.Errorf("failed to ensure images pool: %w", err)
	}
	if err := m.EnsurePool(ctx, DefaultVMsPool, PoolTypeDir, DefaultVMsPath); err != nil {
		return fmt.Errorf("failed to ensure VMs pool: %w", err)
	}
	return nil
}
