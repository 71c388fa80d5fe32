package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/crucible/internal/storage"
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface for testing.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Configurable behavior
	domainLookupByNameFunc    func(name string) (libvirt.Domain, error)
	domainDefineXMLFunc       func(xml string) (libvirt.Domain, error)
	domainCreateFunc          func(dom libvirt.Domain) error
	domainGetStateFunc        func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainGetInfoFunc         func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	domainShutdownFunc        func(dom libvirt.Domain) error
	domainDestroyFunc         func(dom libvirt.Domain) error
	domainUndefineFlagsFunc   func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	connectListAllDomainsFunc func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	domainSetMetadataFunc     func(dom libvirt.Domain, typ int32, md libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	domainGetMetadataFunc     func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)

	// Call tracking
	domainLookupByNameCalls    []string
	domainDefineXMLCalls       []string
	domainCreateCalls          []libvirt.Domain
	domainGetStateCalls        []libvirt.Domain
	domainShutdownCalls        []libvirt.Domain
	domainDestroyCalls         []libvirt.Domain
	domainUndefineFlagsCalls   []libvirt.Domain
	connectListAllDomainsCalls int
	domainSetMetadataCalls     []string // metadata XML passed to each call
	domainGetMetadataCalls     []libvirt.Domain
}

// newMockLibvirtClient creates a new mock libvirt client with default behavior.
func newMockLibvirtClient() *mockLibvirtClient {
	m := &mockLibvirtClient{}

	// Default: VM does not exist until define is called.
	// This simulates the real behavior where lookup fails initially, then succeeds after define.
	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		if len(m.domainDefineXMLCalls) > 0 {
			return libvirt.Domain{Name: name}, nil
		}
		return libvirt.Domain{}, fmt.Errorf("domain not found: %s", name)
	}

	m.domainDefineXMLFunc = func(xml string) (libvirt.Domain, error) {
		return libvirt.Domain{Name: "test-run"}, nil
	}

	m.domainCreateFunc = func(dom libvirt.Domain) error {
		return nil
	}

	// Default: domain state is running
	m.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return domainStateRunning, 0, nil
	}

	// Default: running, 2 GiB, 2 vCPUs
	m.domainGetInfoFunc = func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
		return 1, 2097152, 2097152, 2, 0, nil
	}

	m.domainShutdownFunc = func(dom libvirt.Domain) error {
		return nil
	}

	m.domainDestroyFunc = func(dom libvirt.Domain) error {
		return nil
	}

	m.domainUndefineFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
		return nil
	}

	// Default: no domains
	m.connectListAllDomainsFunc = func(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
		return []libvirt.Domain{}, 0, nil
	}

	m.domainSetMetadataFunc = func(dom libvirt.Domain, typ int32, md libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
		return nil
	}

	// Default: no metadata stored
	m.domainGetMetadataFunc = func(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
		return "", fmt.Errorf("metadata not found")
	}

	return m
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainLookupByNameCalls = append(m.domainLookupByNameCalls, name)
	return m.domainLookupByNameFunc(name)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	return m.domainDefineXMLFunc(xml)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	return m.domainCreateFunc(dom)
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetStateCalls = append(m.domainGetStateCalls, dom)
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockLibvirtClient) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetInfoFunc(dom)
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom)
	return m.domainShutdownFunc(dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom)
	return m.domainDestroyFunc(dom)
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, dom)
	return m.domainUndefineFlagsFunc(dom, flags)
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectListAllDomainsCalls++
	return m.connectListAllDomainsFunc(needResults, flags)
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, typ int32, md libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value := ""
	if len(md) > 0 {
		value = md[0]
	}
	m.domainSetMetadataCalls = append(m.domainSetMetadataCalls, value)
	return m.domainSetMetadataFunc(dom, typ, md, key, uri, flags)
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainGetMetadataCalls = append(m.domainGetMetadataCalls, dom)
	return m.domainGetMetadataFunc(dom, typ, uri, flags)
}

// mockStorageManager is a mock implementation of the storageManager interface for testing.
type mockStorageManager struct {
	mu sync.Mutex

	// Configurable behavior
	ensureDefaultPoolsFunc func(ctx context.Context) error
	volumeExistsFunc       func(ctx context.Context, poolName, volumeName string) (bool, error)
	createVolumeFunc       func(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	cloneBootVolumeFunc    func(ctx context.Context, imagesPool, imageName, vmsPool, volumeName string, capacityGB uint64) error
	deleteVolumeFunc       func(ctx context.Context, poolName, volumeName string) error
	writeVolumeDataFunc    func(ctx context.Context, poolName, volumeName string, data []byte) error
	listVolumesFunc        func(ctx context.Context, poolName string) ([]storage.VolumeInfo, error)

	// Call tracking
	ensureDefaultPoolsCalls int
	volumeExistsCalls       []string // format: "pool/volume"
	createVolumeCalls       []storage.VolumeSpec
	cloneBootVolumeCalls    []string // format: "imagesPool/image -> vmsPool/volume"
	deleteVolumeCalls       []string // format: "pool/volume"
	writeVolumeDataCalls    []string // format: "pool/volume"
	listVolumesCalls        []string // pool names
}

// newMockStorageManager creates a new mock storage manager with default behavior.
func newMockStorageManager() *mockStorageManager {
	return &mockStorageManager{
		// Default: pools exist
		ensureDefaultPoolsFunc: func(ctx context.Context) error {
			return nil
		},
		// Default: volumes exist (so cleanup paths exercise deletion)
		volumeExistsFunc: func(ctx context.Context, poolName, volumeName string) (bool, error) {
			return true, nil
		},
		// Default: create succeeds
		createVolumeFunc: func(ctx context.Context, poolName string, spec storage.VolumeSpec) error {
			return nil
		},
		// Default: clone succeeds
		cloneBootVolumeFunc: func(ctx context.Context, imagesPool, imageName, vmsPool, volumeName string, capacityGB uint64) error {
			return nil
		},
		// Default: delete succeeds
		deleteVolumeFunc: func(ctx context.Context, poolName, volumeName string) error {
			return nil
		},
		// Default: write succeeds
		writeVolumeDataFunc: func(ctx context.Context, poolName, volumeName string, data []byte) error {
			return nil
		},
		// Default: no volumes
		listVolumesFunc: func(ctx context.Context, poolName string) ([]storage.VolumeInfo, error) {
			return []storage.VolumeInfo{}, nil
		},
	}
}

func (m *mockStorageManager) EnsureDefaultPools(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDefaultPoolsCalls++
	return m.ensureDefaultPoolsFunc(ctx)
}

func (m *mockStorageManager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumeExistsCalls = append(m.volumeExistsCalls, poolName+"/"+volumeName)
	return m.volumeExistsFunc(ctx, poolName, volumeName)
}

func (m *mockStorageManager) CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createVolumeCalls = append(m.createVolumeCalls, spec)
	return m.createVolumeFunc(ctx, poolName, spec)
}

func (m *mockStorageManager) CloneBootVolume(ctx context.Context, imagesPool, imageName, vmsPool, volumeName string, capacityGB uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cloneBootVolumeCalls = append(m.cloneBootVolumeCalls,
		imagesPool+"/"+imageName+" -> "+vmsPool+"/"+volumeName)
	return m.cloneBootVolumeFunc(ctx, imagesPool, imageName, vmsPool, volumeName, capacityGB)
}

func (m *mockStorageManager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVolumeCalls = append(m.deleteVolumeCalls, poolName+"/"+volumeName)
	return m.deleteVolumeFunc(ctx, poolName, volumeName)
}

func (m *mockStorageManager) WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeVolumeDataCalls = append(m.writeVolumeDataCalls, poolName+"/"+volumeName)
	return m.writeVolumeDataFunc(ctx, poolName, volumeName, data)
}

func (m *mockStorageManager) ListVolumes(ctx context.Context, poolName string) ([]storage.VolumeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listVolumesCalls = append(m.listVolumesCalls, poolName)
	return m.listVolumesFunc(ctx, poolName)
}
