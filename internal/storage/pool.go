package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool creates a storage pool unless one with the name already
// exists.
func (m *Manager) EnsurePool(ctx context.Context, name string, poolType PoolType, path string) error {
	if _, err := m.client.StoragePoolLookupByName(name); err == nil {
		return nil
	}
	return m.CreatePool(ctx, name, poolType, path)
}

// CreatePool defines, builds, starts, and autostarts a new storage pool.
// A pool left half-created by a build or start failure is undefined
// again before returning.
func (m *Manager) CreatePool(ctx context.Context, name string, poolType PoolType, path string) error {
	if poolType != PoolTypeDir {
		return fmt.Errorf("unsupported pool type: %s", poolType)
	}

	poolXML, err := dirPoolXML(name, path)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	pool, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool: %w", err)
	}

	if err := m.client.StoragePoolBuild(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to build pool: %w", err)
	}

	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to start pool: %w", err)
	}

	// The pool is usable at this point; a failed autostart only matters
	// on the next host boot, so it is reported without rollback.
	if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
		return fmt.Errorf("pool created but failed to set autostart: %w", err)
	}

	return nil
}

// DeletePool stops and undefines a storage pool. With force, its volumes
// are deleted first; without, deletion of a non-empty pool fails at the
// libvirt level. The default pools are never deletable.
func (m *Manager) DeletePool(ctx context.Context, name string, force bool) error {
	if name == DefaultImagesPool || name == DefaultVMsPool {
		return fmt.Errorf("cannot delete default pool: %s", name)
	}

	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	if force {
		volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
		if err != nil {
			return fmt.Errorf("failed to list volumes: %w", err)
		}
		for _, vol := range volumes {
			// Keep going; the undefine below surfaces a non-empty pool.
			_ = m.client.StorageVolDelete(vol, 0)
		}
	}

	state, _, _, _, err := m.client.StoragePoolGetInfo(pool)
	if err != nil {
		return fmt.Errorf("failed to get pool info: %w", err)
	}
	if libvirt.StoragePoolState(state) == libvirt.StoragePoolRunning {
		if err := m.client.StoragePoolDestroy(pool); err != nil {
			return fmt.Errorf("failed to stop pool: %w", err)
		}
	}

	if err := m.client.StoragePoolUndefine(pool); err != nil {
		return fmt.Errorf("failed to undefine pool: %w", err)
	}

	return nil
}

// ListPools returns information for every storage pool on the host.
// Pools whose details cannot be read are skipped.
func (m *Manager) ListPools(ctx context.Context) ([]PoolInfo, error) {
	pools, _, err := m.client.ConnectListAllStoragePools(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	infos := make([]PoolInfo, 0, len(pools))
	for _, pool := range pools {
		info, err := m.GetPoolInfo(ctx, pool.Name)
		if err != nil {
			continue
		}
		infos = append(infos, *info)
	}

	return infos, nil
}

// GetPoolInfo returns state, capacity, and target details for one pool.
func (m *Manager) GetPoolInfo(ctx context.Context, name string) (*PoolInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	state, capacity, allocation, available, err := m.client.StoragePoolGetInfo(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool info: %w", err)
	}

	xmlDesc, err := m.client.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool XML: %w", err)
	}

	var poolDef libvirtxml.StoragePool
	if err := poolDef.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse pool XML: %w", err)
	}

	path := ""
	if poolDef.Type == "dir" && poolDef.Target != nil {
		path = poolDef.Target.Path
	}

	return &PoolInfo{
		Name:       pool.Name,
		Type:       PoolTypeDir,
		Path:       path,
		UUID:       uuid.UUID(pool.UUID).String(),
		State:      poolStateString(libvirt.StoragePoolState(state)),
		Capacity:   capacity,
		Allocation: allocation,
		Available:  available,
	}, nil
}

// RefreshPool rescans a pool's backend so externally added or removed
// files show up in volume listings.
func (m *Manager) RefreshPool(ctx context.Context, name string) error {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	if err := m.client.StoragePoolRefresh(pool, 0); err != nil {
		return fmt.Errorf("failed to refresh pool: %w", err)
	}

	return nil
}

func poolStateString(state libvirt.StoragePoolState) string {
	switch state {
	case libvirt.StoragePoolInactive:
		return "inactive"
	case libvirt.StoragePoolBuilding:
		return "building"
	case libvirt.StoragePoolRunning:
		return "running"
	case libvirt.StoragePoolDegraded:
		return "degraded"
	case libvirt.StoragePoolInaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}

// dirPoolXML builds the definition for a directory-backed pool owned by
// the qemu user, so guests can open the volumes inside it.
func dirPoolXML(name, path string) (string, error) {
	owner, group, _ := GetQEMUUserGroup()

	pool := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Owner: owner,
				Group: group,
				Mode:  "0755",
			},
		},
	}

	xmlBytes, err := pool.Marshal()
	if err != nil {
		return "", err
	}

	xml := strings.TrimPrefix(string(xmlBytes), `<?xml version="1.0" encoding="UTF-8"?>`)
	return strings.TrimSpace(xml), nil
}
