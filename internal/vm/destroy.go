package vm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/digitalocean/go-libvirt"

	cruciblelibvirt "github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/metadata"
	"github.com/jbweber/crucible/internal/storage"
)

const (
	// shutdownTimeout is how long to wait for graceful shutdown before forcing.
	shutdownTimeout = 5 * time.Second

	// Domain states (from libvirt VIR_DOMAIN_* constants)
	domainStateRunning = 1
	domainStateShutoff = 5
)

// Destroy tears down a run's VM by name.
//
// This orchestrates the whole teardown:
//  1. Look up the domain
//  2. Graceful shutdown if running (5s timeout), force destroy otherwise
//  3. Undefine the domain (with NVRAM cleanup)
//  4. Delete the run's volumes from the storage pool
//
// Volume cleanup is best-effort: failures are logged and teardown continues.
// The base image in the images pool is never touched; boot volumes are
// linked clones, so deleting them leaves the image intact.
//
// Returns an error if the VM doesn't exist or critical libvirt operations fail.
func Destroy(ctx context.Context, name string) error {
	log.Info("connecting to libvirt")
	client, err := cruciblelibvirt.ConnectWithContext(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close libvirt connection", "error", err)
		}
	}()

	sm := storage.NewManager(client.Libvirt())

	return destroyWithDeps(ctx, name, client.Libvirt(), sm)
}

// destroyWithDeps destroys a run VM with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func destroyWithDeps(ctx context.Context, name string, lv libvirtClient, sm storageManager) error {
	domain, err := lv.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("VM %q not found: %w", name, err)
	}

	// Read the run record before the domain (and its metadata) goes away,
	// so teardown targets the pool the run actually used.
	storagePool := storage.DefaultVMsPool
	if run, err := metadata.Load(lv, domain); err == nil {
		storagePool = run.GetStoragePool()
	}

	state, _, err := lv.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get VM state: %w", err)
	}

	needsForceDestroy := false
	if state == domainStateRunning {
		log.Info("attempting graceful shutdown", "vm", name)
		if err := lv.DomainShutdown(domain); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
			needsForceDestroy = true
		} else {
			needsForceDestroy = !waitForShutoff(ctx, lv, domain)
		}
	}

	if needsForceDestroy {
		currentState, _, err := lv.DomainGetState(domain, 0)
		if err != nil {
			log.Warn("failed to check state before destroy", "error", err)
		}
		if err == nil && currentState == domainStateRunning {
			log.Info("force destroying VM", "vm", name)
			if err := lv.DomainDestroy(domain); err != nil {
				log.Warn("force destroy failed", "error", err)
			}
		}
	}

	log.Info("undefining domain", "vm", name)
	if err := lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine domain: %w", err)
	}

	// Delete the run's volumes by prefix match ("{name}_") so the boot
	// volume and cloud-init ISO both go, whatever their exact suffixes.
	deletedCount := 0
	volumes, err := sm.ListVolumes(ctx, storagePool)
	if err != nil {
		log.Warn("failed to list volumes", "pool", storagePool, "error", err)
	} else {
		prefix := name + "_"
		for _, vol := range volumes {
			if !strings.HasPrefix(vol.Name, prefix) {
				continue
			}
			if err := sm.DeleteVolume(ctx, storagePool, vol.Name); err != nil {
				log.Warn("failed to delete volume", "volume", vol.Name, "error", err)
			} else {
				deletedCount++
			}
		}
	}

	log.Info("VM destroyed", "vm", name, "volumes_deleted", deletedCount)
	return nil
}

// waitForShutoff polls the domain state until it reaches shutoff or the
// shutdown timeout expires. Reports whether the domain shut down cleanly.
func waitForShutoff(ctx context.Context, lv libvirtClient, domain libvirt.Domain) bool {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownCtx.Done():
			log.Info("graceful shutdown timed out")
			return false
		case <-ticker.C:
			state, _, err := lv.DomainGetState(domain, 0)
			if err != nil {
				log.Warn("failed to check shutdown state", "error", err)
				return false
			}
			if state == domainStateShutoff {
				return true
			}
		}
	}
}
