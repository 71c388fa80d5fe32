// Package vm provides high-level lifecycle operations for run VMs.
package vm

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/jbweber/crucible/api/v1alpha1"
	"github.com/jbweber/crucible/internal/cloudinit"
	"github.com/jbweber/crucible/internal/env"
	cruciblelibvirt "github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/metadata"
	"github.com/jbweber/crucible/internal/naming"
	"github.com/jbweber/crucible/internal/storage"
)

// Create provisions the VM for a run and starts it.
//
// This orchestrates the whole creation process:
//  1. Connect to libvirt
//  2. Ensure the default storage pools exist
//  3. Clone the base image into a linked boot volume
//  4. Generate and upload the cloud-init seed ISO
//  5. Define the domain, persist the run in its metadata, and start it
//
// When the run sets vm.reuse and a domain of the same name is already
// running, creation is skipped and the existing VM is used as-is.
//
// On any failure, partially created resources are cleaned up. Returns the
// guest SSH address (host:port) on success.
func Create(ctx context.Context, run *v1alpha1.BuildRun) (string, error) {
	log.Info("connecting to libvirt")
	client, err := cruciblelibvirt.ConnectWithContext(ctx, "", 0)
	if err != nil {
		return "", fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close libvirt connection", "error", err)
		}
	}()

	sm := storage.NewManager(client.Libvirt())

	return createWithDeps(ctx, run, client.Libvirt(), sm)
}

// createWithDeps creates the run VM with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func createWithDeps(ctx context.Context, run *v1alpha1.BuildRun, lv libvirtClient, sm storageManager) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run cannot be nil")
	}

	address, err := naming.AddressFromIP(run.Spec.VM.NetworkInterface.IP)
	if err != nil {
		return "", fmt.Errorf("failed to derive guest address: %w", err)
	}

	// Existing domain of the same name: attach when reuse is requested,
	// refuse otherwise.
	existing, err := lv.DomainLookupByName(run.Name)
	if err == nil {
		if !run.Spec.VM.Reuse {
			return "", fmt.Errorf("VM %q already exists (destroy it or set vm.reuse)", run.Name)
		}
		log.Info("reusing existing VM", "vm", run.Name)
		if err := ensureRunning(lv, existing); err != nil {
			return "", err
		}
		run.SetDomainUUID(uuid.UUID(existing.UUID).String())
		run.Status.Address = address
		return address, nil
	}
	if run.Spec.VM.Reuse {
		log.Info("reuse requested but no VM found, creating fresh", "vm", run.Name)
	}

	// State tracking for cleanup
	var (
		domainDefined  bool
		storageCreated bool
	)

	var createErr error
	defer func() {
		if createErr != nil {
			cleanupWithDeps(ctx, run, sm, lv, domainDefined, storageCreated)
		}
	}()

	log.Info("ensuring storage pools", "images", run.GetImagePool(), "vms", run.GetStoragePool())
	if createErr = sm.EnsureDefaultPools(ctx); createErr != nil {
		return "", fmt.Errorf("failed to ensure storage pools: %w", createErr)
	}

	log.Info("cloning boot volume", "image", run.Spec.VM.BaseImage, "volume", run.GetBootVolumeName())
	createErr = sm.CloneBootVolume(ctx,
		run.GetImagePool(), run.Spec.VM.BaseImage,
		run.GetStoragePool(), run.GetBootVolumeName(),
		uint64(run.Spec.VM.DiskSizeGB))
	if createErr != nil {
		return "", fmt.Errorf("failed to create boot volume: %w", createErr)
	}
	storageCreated = true

	var pubKey string
	pubKey, createErr = publicKeyFromPrivate(run.Spec.SSH.PrivateKeyPath)
	if createErr != nil {
		return "", fmt.Errorf("failed to derive SSH public key: %w", createErr)
	}

	var mac string
	mac, createErr = naming.MACFromIP(run.Spec.VM.NetworkInterface.IP)
	if createErr != nil {
		return "", fmt.Errorf("failed to derive MAC address: %w", createErr)
	}

	log.Info("generating cloud-init seed", "vm", run.Name)
	var isoData []byte
	isoData, createErr = cloudinit.GenerateISO(cloudinit.Input{
		Run:          run,
		SSHPublicKey: pubKey,
		MACAddress:   mac,
	})
	if createErr != nil {
		return "", fmt.Errorf("failed to generate cloud-init ISO: %w", createErr)
	}

	createErr = sm.CreateVolume(ctx, run.GetStoragePool(), storage.VolumeSpec{
		Name:   run.GetCloudInitVolumeName(),
		Type:   storage.VolumeTypeCloudInit,
		Format: storage.VolumeFormatRaw,
	})
	if createErr != nil {
		return "", fmt.Errorf("failed to create cloud-init volume: %w", createErr)
	}
	if createErr = sm.WriteVolumeData(ctx, run.GetStoragePool(), run.GetCloudInitVolumeName(), isoData); createErr != nil {
		return "", fmt.Errorf("failed to write cloud-init ISO: %w", createErr)
	}

	var domainXML string
	domainXML, createErr = cruciblelibvirt.GenerateDomainXML(run)
	if createErr != nil {
		return "", fmt.Errorf("failed to generate domain XML: %w", createErr)
	}

	log.Info("defining domain", "vm", run.Name)
	var domain libvirt.Domain
	domain, createErr = lv.DomainDefineXML(domainXML)
	if createErr != nil {
		return "", fmt.Errorf("failed to define domain: %w", createErr)
	}
	domainDefined = true

	run.SetDomainUUID(uuid.UUID(domain.UUID).String())
	run.Status.Address = address

	if createErr = metadata.Store(lv, domain, run); createErr != nil {
		return "", fmt.Errorf("failed to store run metadata: %w", createErr)
	}

	log.Info("starting VM", "vm", run.Name)
	if createErr = lv.DomainCreate(domain); createErr != nil {
		return "", fmt.Errorf("failed to start domain: %w", createErr)
	}

	log.Info("VM started", "vm", run.Name, "address", address)
	return address, nil
}

// CreateEnvironment provisions the run VM and waits until its SSH endpoint
// answers, returning a connected execution environment. The caller bounds
// the boot wait through ctx and owns closing the returned connection.
func CreateEnvironment(ctx context.Context, run *v1alpha1.BuildRun) (*env.SSH, error) {
	address, err := Create(ctx, run)
	if err != nil {
		return nil, err
	}

	log.Info("waiting for SSH", "address", address, "user", run.GetSSHUser())
	conn, err := env.WaitForSSH(ctx, env.SSHConfig{
		Address:        address,
		User:           run.GetSSHUser(),
		PrivateKeyPath: run.Spec.SSH.PrivateKeyPath,
	}, 0)
	if err != nil {
		return nil, err
	}

	log.Info("guest is reachable", "address", address)
	return conn, nil
}

// ensureRunning verifies a reused domain is actually running.
func ensureRunning(lv libvirtClient, dom libvirt.Domain) error {
	state, _, err := lv.DomainGetState(dom, 0)
	if err != nil {
		return fmt.Errorf("failed to get domain state: %w", err)
	}
	if state != domainStateRunning {
		return fmt.Errorf("VM %q exists but is not running (state %s)", dom.Name, stateToString(state))
	}
	return nil
}

// publicKeyFromPrivate reads an SSH private key from disk and returns the
// matching public key in authorized_keys format. The same key pair is used
// to dial the guest, so cloud-init gets exactly the key the runner holds.
func publicKeyFromPrivate(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("SSH private key path is required")
	}

	keyData, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	return string(ssh.MarshalAuthorizedKey(signer.PublicKey())), nil
}

// cleanupWithDeps attempts to remove everything a failed creation left
// behind. Best-effort: errors are logged and cleanup continues.
func cleanupWithDeps(ctx context.Context, run *v1alpha1.BuildRun, sm storageManager, lv libvirtClient, domainDefined, storageCreated bool) {
	log.Warn("cleaning up after failed VM creation", "vm", run.Name)

	if domainDefined && lv != nil {
		domain, err := lv.DomainLookupByName(run.Name)
		if err != nil {
			log.Warn("failed to lookup domain for cleanup", "error", err)
		} else {
			// Destroy fails when the domain never started; that is fine.
			if err := lv.DomainDestroy(domain); err != nil {
				log.Debug("domain was not running", "error", err)
			}
			if err := lv.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
				log.Warn("failed to undefine domain", "error", err)
			}
		}
	}

	if storageCreated && sm != nil {
		for _, vol := range []string{run.GetBootVolumeName(), run.GetCloudInitVolumeName()} {
			exists, err := sm.VolumeExists(ctx, run.GetStoragePool(), vol)
			if err != nil || !exists {
				continue
			}
			if err := sm.DeleteVolume(ctx, run.GetStoragePool(), vol); err != nil {
				log.Warn("failed to delete volume", "volume", vol, "error", err)
			}
		}
	}
}
