package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a stateful in-memory stand-in for the libvirt
// storage API: defined pools hold volumes, volumes remember the XML
// they were created from and the bytes uploaded into them.
type mockLibvirtClient struct {
	pools map[string]*fakePool
}

type fakePool struct {
	name    string
	state   libvirt.StoragePoolState
	xmlDesc string
	volumes map[string]*fakeVolume
}

type fakeVolume struct {
	name    string
	path    string
	xmlDesc string
	size    uint64
	data    []byte
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{pools: make(map[string]*fakePool)}
}

const fakePoolCapacity = 1 << 40 // 1 TiB

func (m *mockLibvirtClient) pool(name string) (*fakePool, error) {
	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("storage pool not found: %s", name)
	}
	return p, nil
}

func (m *mockLibvirtClient) volume(poolName, volName string) (*fakeVolume, error) {
	p, err := m.pool(poolName)
	if err != nil {
		return nil, err
	}
	v, ok := p.volumes[volName]
	if !ok {
		return nil, fmt.Errorf("storage volume not found: %s", volName)
	}
	return v, nil
}

func poolHandle(p *fakePool) libvirt.StoragePool {
	var uuid libvirt.UUID
	copy(uuid[:], p.name)
	return libvirt.StoragePool{Name: p.name, UUID: uuid}
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	p, err := m.pool(name)
	if err != nil {
		return libvirt.StoragePool{}, err
	}
	return poolHandle(p), nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error) {
	name := xmlTagValue(xml, "name")
	if name == "" {
		return libvirt.StoragePool{}, fmt.Errorf("invalid pool XML: missing name")
	}
	if _, ok := m.pools[name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", name)
	}

	p := &fakePool{
		name:    name,
		state:   libvirt.StoragePoolInactive,
		xmlDesc: xml,
		volumes: make(map[string]*fakeVolume),
	}
	m.pools[name] = p
	return poolHandle(p), nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error {
	p, err := m.pool(pool.Name)
	if err != nil {
		return err
	}
	p.state = libvirt.StoragePoolRunning
	return nil
}

func (m *mockLibvirtClient) StoragePoolBuild(pool libvirt.StoragePool, flags libvirt.StoragePoolBuildFlags) error {
	_, err := m.pool(pool.Name)
	return err
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	_, err := m.pool(pool.Name)
	return err
}

func (m *mockLibvirtClient) StoragePoolDestroy(pool libvirt.StoragePool) error {
	p, err := m.pool(pool.Name)
	if err != nil {
		return err
	}
	p.state = libvirt.StoragePoolInactive
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	if _, err := m.pool(pool.Name); err != nil {
		return err
	}
	delete(m.pools, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	p, err := m.pool(pool.Name)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	var allocated uint64
	for _, v := range p.volumes {
		allocated += uint64(len(v.data))
	}
	return uint8(p.state), fakePoolCapacity, allocated, fakePoolCapacity - allocated, nil
}

func (m *mockLibvirtClient) StoragePoolGetXMLDesc(pool libvirt.StoragePool, flags libvirt.StorageXMLFlags) (string, error) {
	p, err := m.pool(pool.Name)
	if err != nil {
		return "", err
	}
	return p.xmlDesc, nil
}

func (m *mockLibvirtClient) StoragePoolListAllVolumes(pool libvirt.StoragePool, needResults int32, flags uint32) ([]libvirt.StorageVol, uint32, error) {
	p, err := m.pool(pool.Name)
	if err != nil {
		return nil, 0, err
	}

	vols := make([]libvirt.StorageVol, 0, len(p.volumes))
	for name := range p.volumes {
		vols = append(vols, libvirt.StorageVol{Pool: pool.Name, Name: name})
	}
	return vols, uint32(len(vols)), nil
}

func (m *mockLibvirtClient) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	_, err := m.pool(pool.Name)
	return err
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	if _, err := m.volume(pool.Name, name); err != nil {
		return libvirt.StorageVol{}, err
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	p, err := m.pool(pool.Name)
	if err != nil {
		return libvirt.StorageVol{}, err
	}

	name := xmlTagValue(xml, "name")
	if name == "" {
		return libvirt.StorageVol{}, fmt.Errorf("invalid volume XML: missing name")
	}
	if _, ok := p.volumes[name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", name)
	}

	p.volumes[name] = &fakeVolume{
		name:    name,
		path:    "/var/lib/libvirt/images/" + pool.Name + "/" + name,
		xmlDesc: xml,
		size:    100 << 30,
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	p, err := m.pool(vol.Pool)
	if err != nil {
		return err
	}
	if _, ok := p.volumes[vol.Name]; !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	delete(p.volumes, vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	v, err := m.volume(vol.Pool, vol.Name)
	if err != nil {
		return "", err
	}
	return v.path, nil
}

func (m *mockLibvirtClient) StorageVolGetInfo(vol libvirt.StorageVol) (int8, uint64, uint64, error) {
	v, err := m.volume(vol.Pool, vol.Name)
	if err != nil {
		return 0, 0, 0, err
	}
	return 0, v.size, uint64(len(v.data)), nil
}

func (m *mockLibvirtClient) StorageVolGetXMLDesc(vol libvirt.StorageVol, flags uint32) (string, error) {
	v, err := m.volume(vol.Pool, vol.Name)
	if err != nil {
		return "", err
	}
	return v.xmlDesc, nil
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, reader io.Reader, offset uint64, length uint64, flags libvirt.StorageVolUploadFlags) error {
	v, err := m.volume(vol.Pool, vol.Name)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	v.data = data
	return nil
}

func (m *mockLibvirtClient) ConnectListAllStoragePools(needResults int32, flags libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error) {
	pools := make([]libvirt.StoragePool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, poolHandle(p))
	}
	return pools, uint32(len(pools)), nil
}

// xmlTagValue extracts the text of the first <tag> element. Enough XML
// parsing for the definitions the manager generates.
func xmlTagValue(xml, tag string) string {
	_, rest, ok := strings.Cut(xml, "<"+tag+">")
	if !ok {
		return ""
	}
	value, _, ok := strings.Cut(rest, "</"+tag+">")
	if !ok {
		return ""
	}
	return value
}
