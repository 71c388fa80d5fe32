// Package vm provides high-level lifecycle operations for run VMs.
//
// This package orchestrates the low-level components (storage, cloud-init,
// libvirt, metadata) into the operations the CLI exposes:
//   - Create: provision and start the VM for a run
//   - Destroy: shut down a run's VM and remove its volumes
//   - List: enumerate VMs carrying a run record
//   - UpdateStatus: persist a run's final state into domain metadata
//
// Error Handling:
//
// Create uses best-effort cleanup on failure: partially-created resources
// (volumes, defined domains) are removed, and cleanup errors are logged
// but never mask the original failure.
//
// Context Support:
//
// All operations accept a context.Context for cancellation support. If the
// context is cancelled during an operation, cleanup is still attempted.
package vm
