package vm

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/jbweber/crucible/api/v1alpha1"
	cruciblelibvirt "github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/metadata"
)

// UpdateStatus persists the run's current record into its domain metadata.
// Called after pipeline execution so a later `crucible list` or `crucible
// get` shows the final phase and per-step results, with no state file on
// the host.
func UpdateStatus(ctx context.Context, run *v1alpha1.BuildRun) error {
	client, err := cruciblelibvirt.ConnectWithContext(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close libvirt connection", "error", err)
		}
	}()

	return updateStatusWithDeps(ctx, run, client.Libvirt())
}

// updateStatusWithDeps updates run metadata with injected dependencies.
func updateStatusWithDeps(_ context.Context, run *v1alpha1.BuildRun, lv libvirtClient) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	domain, err := lv.DomainLookupByName(run.Name)
	if err != nil {
		return fmt.Errorf("VM %q not found: %w", run.Name, err)
	}

	if err := metadata.Update(lv, domain, run); err != nil {
		return fmt.Errorf("failed to update run metadata: %w", err)
	}

	return nil
}
