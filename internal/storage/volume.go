package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// lookupVolume resolves a pool/volume pair to the libvirt volume handle.
func (m *Manager) lookupVolume(poolName, volumeName string) (libvirt.StorageVol, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("pool not found: %w", err)
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("volume not found: %w", err)
	}
	return vol, nil
}

// CreateVolume creates a volume in the named pool from a validated spec.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	volumeXML, err := m.volumeXML(poolName, spec)
	if err != nil {
		return fmt.Errorf("failed to generate volume XML: %w", err)
	}

	if _, err := m.client.StorageVolCreateXML(pool, volumeXML, 0); err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}

	return nil
}

// DeleteVolume removes a volume from the named pool.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	vol, err := m.lookupVolume(poolName, volumeName)
	if err != nil {
		return err
	}

	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}

	return nil
}

// ListVolumes returns name, path, and size for every volume in a pool.
// Volumes whose details cannot be read are skipped.
func (m *Manager) ListVolumes(ctx context.Context, poolName string) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	infos := make([]VolumeInfo, 0, len(volumes))
	for _, vol := range volumes {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			continue
		}
		_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
		if err != nil {
			continue
		}

		infos = append(infos, VolumeInfo{
			Name:       vol.Name,
			Path:       path,
			Pool:       poolName,
			Capacity:   capacity,
			Allocation: allocation,
		})
	}

	return infos, nil
}

// GetVolumePath returns the host filesystem path backing a volume.
func (m *Manager) GetVolumePath(ctx context.Context, poolName, volumeName string) (string, error) {
	vol, err := m.lookupVolume(poolName, volumeName)
	if err != nil {
		return "", err
	}

	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}

	return path, nil
}

// WriteVolumeData uploads raw bytes into an existing volume. Used for
// cloud-init seed ISOs and imported images.
func (m *Manager) WriteVolumeData(ctx context.Context, poolName, volumeName string, data []byte) error {
	vol, err := m.lookupVolume(poolName, volumeName)
	if err != nil {
		return err
	}

	if err := m.client.StorageVolUpload(vol, bytes.NewReader(data), 0, uint64(len(data)), 0); err != nil {
		return fmt.Errorf("failed to upload data to volume: %w", err)
	}

	return nil
}

// CloneBootVolume creates a boot volume in vmsPool as a qcow2 linked
// clone of a base image in imagesPool. The base image is never written
// to; all guest writes land in the new volume.
func (m *Manager) CloneBootVolume(ctx context.Context, imagesPool, imageName, vmsPool, volumeName string, capacityGB uint64) error {
	exists, err := m.VolumeExists(ctx, imagesPool, imageName)
	if err != nil {
		return fmt.Errorf("failed to check base image: %w", err)
	}
	if !exists {
		return fmt.Errorf("base image %q not found in pool %q", imageName, imagesPool)
	}

	spec := VolumeSpec{
		Name:          volumeName,
		Type:          VolumeTypeBoot,
		Format:        VolumeFormatQCOW2,
		CapacityGB:    capacityGB,
		BackingVolume: imageName,
		BackingPool:   imagesPool,
	}

	if err := m.CreateVolume(ctx, vmsPool, spec); err != nil {
		return fmt.Errorf("failed to clone boot volume: %w", err)
	}

	return nil
}

// VolumeExists reports whether the named volume exists. The pool itself
// must exist; a missing pool is an error, a missing volume is not.
func (m *Manager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return false, fmt.Errorf("pool not found: %w", err)
	}

	if _, err := m.client.StorageVolLookupByName(pool, volumeName); err != nil {
		return false, nil
	}
	return true, nil
}

// volumeXML builds the volume definition. Backing volumes are resolved
// to their host path here because libvirt wants an absolute path in the
// backingStore element.
func (m *Manager) volumeXML(poolName string, spec VolumeSpec) (string, error) {
	owner, group, _ := GetQEMUUserGroup()

	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.CapacityGB * 1024 * 1024 * 1024,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: owner,
				Group: group,
				Mode:  "0644",
			},
		},
	}

	if spec.BackingVolume != "" {
		backingPool := spec.BackingPool
		if backingPool == "" {
			backingPool = poolName
		}
		backingPath, err := m.GetVolumePath(context.Background(), backingPool, spec.BackingVolume)
		if err != nil {
			return "", fmt.Errorf("failed to get backing volume path: %w", err)
		}

		vol.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path: backingPath,
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(formatForVolumeName(spec.BackingVolume)),
			},
		}
	}

	xmlBytes, err := vol.Marshal()
	if err != nil {
		return "", err
	}

	xml := strings.TrimPrefix(string(xmlBytes), `<?xml version="1.0" encoding="UTF-8"?>`)
	return strings.TrimSpace(xml), nil
}

// formatForVolumeName infers a volume's disk format from its name
// suffix. Image volumes carry the extension matching their format by
// construction (see ImportImage).
func formatForVolumeName(name string) VolumeFormat {
	if strings.HasSuffix(name, ".raw") || strings.HasSuffix(name, ".img") {
		return VolumeFormatRaw
	}
	return VolumeFormatQCOW2
}
