package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// imageHTTPClient fetches images for PullImage. Downloads are large, so
// the timeout is generous.
var imageHTTPClient = &http.Client{Timeout: 30 * time.Minute}

// ImportImage copies a local image file into the crucible-images pool.
//
// The file's format is detected from its content, not its name, and the
// stored volume is named with the extension matching the detected format
// so later consumers can tell the two apart without reopening the file.
func (m *Manager) ImportImage(ctx context.Context, filePath, imageName string) error {
	format, err := DetectImageFormat(filePath)
	if err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat image file: %w", err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	imageName = withFormatExt(imageName, format)

	// Capacity is the file size rounded up to a whole GB; for qcow2 the
	// virtual size lives in the image itself, this only sizes the volume.
	const gb = 1024 * 1024 * 1024
	spec := VolumeSpec{
		Name:       imageName,
		Type:       VolumeTypeBaseImage,
		Format:     format,
		CapacityGB: uint64(info.Size()+gb-1) / gb,
	}

	if err := m.CreateVolume(ctx, DefaultImagesPool, spec); err != nil {
		return fmt.Errorf("failed to create image volume: %w", err)
	}

	if err := m.WriteVolumeData(ctx, DefaultImagesPool, imageName, data); err != nil {
		_ = m.DeleteVolume(ctx, DefaultImagesPool, imageName)
		return fmt.Errorf("failed to upload image data: %w", err)
	}

	return nil
}

// PullImage downloads an image from a URL into a temp file, optionally
// verifies its SHA-256 checksum, and imports it.
func (m *Manager) PullImage(ctx context.Context, url, imageName, checksum string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := imageHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download image: server returned %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "crucible-image-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush image: %w", err)
	}

	if checksum != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, checksum) {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, checksum)
		}
	}

	return m.ImportImage(ctx, tmp.Name(), imageName)
}

// ListImages lists the base images in the crucible-images pool.
func (m *Manager) ListImages(ctx context.Context) ([]VolumeInfo, error) {
	return m.ListVolumes(ctx, DefaultImagesPool)
}

// DeleteImage removes a base image from the crucible-images pool.
//
// Without force, deletion is refused while any volume in the default VMs
// pool is backed by the image, since removing the backing file corrupts
// every linked clone on top of it.
func (m *Manager) DeleteImage(ctx context.Context, imageName string, force bool) error {
	if !force {
		dependents, err := m.imageDependents(ctx, imageName)
		if err != nil {
			return err
		}
		if len(dependents) > 0 {
			return fmt.Errorf("image %q backs volume(s) %s; use force to delete anyway",
				imageName, strings.Join(dependents, ", "))
		}
	}

	return m.DeleteVolume(ctx, DefaultImagesPool, imageName)
}

// imageDependents returns the names of volumes in the default VMs pool
// whose backing chain starts at the named image.
func (m *Manager) imageDependents(ctx context.Context, imageName string) ([]string, error) {
	imagePath, err := m.GetVolumePath(ctx, DefaultImagesPool, imageName)
	if err != nil {
		return nil, fmt.Errorf("image not found: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(DefaultVMsPool)
	if err != nil {
		// No VMs pool means nothing can depend on the image.
		return nil, nil
	}
	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var dependents []string
	for _, vol := range volumes {
		xmlDesc, err := m.client.StorageVolGetXMLDesc(vol, 0)
		if err != nil {
			continue
		}
		var def libvirtxml.StorageVolume
		if err := def.Unmarshal(xmlDesc); err != nil {
			continue
		}
		if def.BackingStore != nil && def.BackingStore.Path == imagePath {
			dependents = append(dependents, vol.Name)
		}
	}

	return dependents, nil
}

// GetImagePath returns the host filesystem path of a base image.
func (m *Manager) GetImagePath(ctx context.Context, imageName string) (string, error) {
	return m.GetVolumePath(ctx, DefaultImagesPool, imageName)
}

// ImageExists reports whether a base image exists.
func (m *Manager) ImageExists(ctx context.Context, imageName string) (bool, error) {
	return m.VolumeExists(ctx, DefaultImagesPool, imageName)
}

// withFormatExt normalizes an image name to carry the extension for its
// detected format.
func withFormatExt(name string, format VolumeFormat) string {
	ext := ".qcow2"
	if format == VolumeFormatRaw {
		ext = ".raw"
	}
	if strings.HasSuffix(name, ext) {
		return name
	}
	if cur := filepath.Ext(name); cur == ".qcow2" || cur == ".raw" || cur == ".img" {
		name = strings.TrimSuffix(name, cur)
	}
	return name + ext
}
