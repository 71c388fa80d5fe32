package storage

import (
	"context"
	"strings"
	"testing"
)

// withPool creates a dir pool for a test and fails fast if that breaks.
func withPool(t *testing.T, mgr *Manager, name string) {
	t.Helper()
	if err := mgr.CreatePool(context.Background(), name, PoolTypeDir, "/var/lib/libvirt/images/"+name); err != nil {
		t.Fatalf("CreatePool(%s) error = %v", name, err)
	}
}

func TestManager_CreateVolume(t *testing.T) {
	tests := []struct {
		name    string
		pool    string
		spec    VolumeSpec
		wantErr bool
	}{
		{
			name: "boot disk",
			pool: "scratch",
			spec: VolumeSpec{
				Name:       "run_boot.qcow2",
				Type:       VolumeTypeBoot,
				Format:     VolumeFormatQCOW2,
				CapacityGB: 20,
			},
		},
		{
			name: "data disk",
			pool: "scratch",
			spec: VolumeSpec{
				Name:       "run_data.qcow2",
				Type:       VolumeTypeData,
				Format:     VolumeFormatQCOW2,
				CapacityGB: 100,
			},
		},
		{
			name: "cloud-init ISO without capacity",
			pool: "scratch",
			spec: VolumeSpec{
				Name:   "run_cloudinit.iso",
				Type:   VolumeTypeCloudInit,
				Format: VolumeFormatRaw,
			},
		},
		{
			name: "empty volume name is rejected",
			pool: "scratch",
			spec: VolumeSpec{
				Type:       VolumeTypeBoot,
				Format:     VolumeFormatQCOW2,
				CapacityGB: 20,
			},
			wantErr: true,
		},
		{
			name: "missing pool",
			pool: "nonexistent",
			spec: VolumeSpec{
				Name:       "run_boot.qcow2",
				Type:       VolumeTypeBoot,
				Format:     VolumeFormatQCOW2,
				CapacityGB: 20,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, _ := newTestManager()
			withPool(t, mgr, "scratch")

			err := mgr.CreateVolume(context.Background(), tt.pool, tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateVolume() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_CreateVolume_BackingStore(t *testing.T) {
	mgr, client := newTestManager()
	ctx := context.Background()
	withPool(t, mgr, "scratch")

	if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
		Name:       "debian-12.qcow2",
		Type:       VolumeTypeBaseImage,
		Format:     VolumeFormatQCOW2,
		CapacityGB: 10,
	}); err != nil {
		t.Fatalf("CreateVolume(base) error = %v", err)
	}

	if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
		Name:          "run_boot.qcow2",
		Type:          VolumeTypeBoot,
		Format:        VolumeFormatQCOW2,
		CapacityGB:    20,
		BackingVolume: "debian-12.qcow2",
	}); err != nil {
		t.Fatalf("CreateVolume(clone) error = %v", err)
	}

	xml := client.pools["scratch"].volumes["run_boot.qcow2"].xmlDesc
	if !strings.Contains(xml, "<backingStore>") {
		t.Errorf("clone XML missing backingStore:\n%s", xml)
	}
	if !strings.Contains(xml, "/var/lib/libvirt/images/scratch/debian-12.qcow2") {
		t.Errorf("clone XML missing backing path:\n%s", xml)
	}
}

func TestManager_DeleteVolume(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	withPool(t, mgr, "scratch")

	if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
		Name: "run_boot.qcow2", Type: VolumeTypeBoot, Format: VolumeFormatQCOW2, CapacityGB: 20,
	}); err != nil {
		t.Fatalf("CreateVolume() error = %v", err)
	}

	if err := mgr.DeleteVolume(ctx, "scratch", "run_boot.qcow2"); err != nil {
		t.Errorf("DeleteVolume() error = %v", err)
	}
	if err := mgr.DeleteVolume(ctx, "scratch", "run_boot.qcow2"); err == nil {
		t.Error("expected error deleting volume twice")
	}
	if err := mgr.DeleteVolume(ctx, "nonexistent", "run_boot.qcow2"); err == nil {
		t.Error("expected error for missing pool")
	}
}

func TestManager_ListVolumes(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	withPool(t, mgr, "scratch")

	for _, name := range []string{"vol1.qcow2", "vol2.qcow2"} {
		if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
			Name: name, Type: VolumeTypeData, Format: VolumeFormatQCOW2, CapacityGB: 10,
		}); err != nil {
			t.Fatalf("CreateVolume(%s) error = %v", name, err)
		}
	}

	volumes, err := mgr.ListVolumes(ctx, "scratch")
	if err != nil {
		t.Fatalf("ListVolumes() error = %v", err)
	}
	if len(volumes) != 2 {
		t.Errorf("ListVolumes() returned %d volumes, want 2", len(volumes))
	}
	for _, v := range volumes {
		if v.Pool != "scratch" {
			t.Errorf("volume %s has pool %q, want scratch", v.Name, v.Pool)
		}
		if v.Path == "" {
			t.Errorf("volume %s has empty path", v.Name)
		}
	}
}

func TestManager_GetVolumePath(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	withPool(t, mgr, "scratch")

	if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
		Name: "run_boot.qcow2", Type: VolumeTypeBoot, Format: VolumeFormatQCOW2, CapacityGB: 20,
	}); err != nil {
		t.Fatalf("CreateVolume() error = %v", err)
	}

	path, err := mgr.GetVolumePath(ctx, "scratch", "run_boot.qcow2")
	if err != nil {
		t.Fatalf("GetVolumePath() error = %v", err)
	}
	if path == "" {
		t.Error("GetVolumePath() returned empty path")
	}

	if _, err := mgr.GetVolumePath(ctx, "scratch", "nonexistent"); err == nil {
		t.Error("expected error for missing volume")
	}
	if _, err := mgr.GetVolumePath(ctx, "nonexistent", "run_boot.qcow2"); err == nil {
		t.Error("expected error for missing pool")
	}
}

func TestManager_WriteVolumeData(t *testing.T) {
	mgr, client := newTestManager()
	ctx := context.Background()
	withPool(t, mgr, "scratch")

	if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
		Name: "seed.iso", Type: VolumeTypeCloudInit, Format: VolumeFormatRaw,
	}); err != nil {
		t.Fatalf("CreateVolume() error = %v", err)
	}

	payload := []byte("iso bytes")
	if err := mgr.WriteVolumeData(ctx, "scratch", "seed.iso", payload); err != nil {
		t.Fatalf("WriteVolumeData() error = %v", err)
	}

	got := client.pools["scratch"].volumes["seed.iso"].data
	if string(got) != string(payload) {
		t.Errorf("uploaded data = %q, want %q", got, payload)
	}

	if err := mgr.WriteVolumeData(ctx, "scratch", "nonexistent", payload); err == nil {
		t.Error("expected error for missing volume")
	}
}

func TestManager_CloneBootVolume(t *testing.T) {
	setupBase := func(mgr *Manager) {
		ctx := context.Background()
		_ = mgr.CreatePool(ctx, DefaultImagesPool, PoolTypeDir, DefaultImagesPath)
		_ = mgr.CreatePool(ctx, DefaultVMsPool, PoolTypeDir, DefaultVMsPath)
		_ = mgr.CreateVolume(ctx, DefaultImagesPool, VolumeSpec{
			Name: "debian-12.qcow2", Type: VolumeTypeBaseImage, Format: VolumeFormatQCOW2, CapacityGB: 10,
		})
	}

	t.Run("clone from existing image", func(t *testing.T) {
		mgr, _ := newTestManager()
		setupBase(mgr)
		ctx := context.Background()

		if err := mgr.CloneBootVolume(ctx, DefaultImagesPool, "debian-12.qcow2", DefaultVMsPool, "libnss-main_boot.qcow2", 20); err != nil {
			t.Fatalf("CloneBootVolume() error = %v", err)
		}

		exists, err := mgr.VolumeExists(ctx, DefaultVMsPool, "libnss-main_boot.qcow2")
		if err != nil {
			t.Fatalf("VolumeExists() error = %v", err)
		}
		if !exists {
			t.Error("cloned boot volume not found")
		}
	})

	t.Run("missing base image", func(t *testing.T) {
		mgr, _ := newTestManager()
		setupBase(mgr)

		err := mgr.CloneBootVolume(context.Background(), DefaultImagesPool, "missing.qcow2", DefaultVMsPool, "run_boot.qcow2", 20)
		if err == nil {
			t.Fatal("expected error for missing base image")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("error = %v, want not found", err)
		}
	})

	t.Run("missing images pool", func(t *testing.T) {
		mgr, _ := newTestManager()
		withPool(t, mgr, DefaultVMsPool)

		if err := mgr.CloneBootVolume(context.Background(), DefaultImagesPool, "debian-12.qcow2", DefaultVMsPool, "run_boot.qcow2", 20); err == nil {
			t.Fatal("expected error for missing images pool")
		}
	})
}

func TestManager_VolumeExists(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	withPool(t, mgr, "scratch")

	if err := mgr.CreateVolume(ctx, "scratch", VolumeSpec{
		Name: "run_boot.qcow2", Type: VolumeTypeBoot, Format: VolumeFormatQCOW2, CapacityGB: 20,
	}); err != nil {
		t.Fatalf("CreateVolume() error = %v", err)
	}

	exists, err := mgr.VolumeExists(ctx, "scratch", "run_boot.qcow2")
	if err != nil {
		t.Fatalf("VolumeExists() error = %v", err)
	}
	if !exists {
		t.Error("VolumeExists() = false for existing volume")
	}

	exists, err = mgr.VolumeExists(ctx, "scratch", "nonexistent")
	if err != nil {
		t.Fatalf("VolumeExists() error = %v", err)
	}
	if exists {
		t.Error("VolumeExists() = true for missing volume")
	}

	if _, err := mgr.VolumeExists(ctx, "nonexistent", "run_boot.qcow2"); err == nil {
		t.Error("expected error for missing pool")
	}
}

func TestFormatForVolumeName(t *testing.T) {
	tests := []struct {
		name string
		want VolumeFormat
	}{
		{"debian-12.qcow2", VolumeFormatQCOW2},
		{"alpine.raw", VolumeFormatRaw},
		{"ubuntu.img", VolumeFormatRaw},
		{"no-extension", VolumeFormatQCOW2},
	}
	for _, tt := range tests {
		if got := formatForVolumeName(tt.name); got != tt.want {
			t.Errorf("formatForVolumeName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
