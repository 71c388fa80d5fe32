// Package storage manages libvirt pools, volumes, and base images.
//
// Two default pools back every run: crucible-images holds base OS
// images imported once and shared, crucible-vms holds the per-run
// disks (a qcow2 boot volume cloned from a base image, plus the
// cloud-init seed ISO). Volume names come from internal/naming, so a
// run's disks are always {run-name}_boot.qcow2 and
// {run-name}_cloudinit.iso.
//
// Image files are validated by content, not extension: qcow2 by the
// "QFI\xfb" magic at offset 0, raw by the 0x55aa MBR signature at
// offset 510. A mismatched file is rejected at import time, before it
// reaches a pool.
//
// Typical flow:
//
//	mgr := storage.NewManager(client.Libvirt())
//	if err := mgr.EnsureDefaultPools(ctx); err != nil {
//	    return err
//	}
//	if err := mgr.ImportImage(ctx, "/tmp/fedora-43.qcow2", "fedora-43"); err != nil {
//	    return err
//	}
//	err := mgr.CloneBootVolume(ctx,
//	    storage.DefaultImagesPool, "fedora-43.qcow2",
//	    storage.DefaultVMsPool, "libnss-main_boot.qcow2", 20)
//
// The LibvirtClient interface in manager.go names the exact libvirt
// calls this package makes; *libvirt.Libvirt satisfies it and tests
// substitute an in-memory fake.
package storage
