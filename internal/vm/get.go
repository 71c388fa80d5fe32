package vm

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	cruciblelibvirt "github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/metadata"
)

// Get returns the run record for a single named VM.
func Get(ctx context.Context, name string) (*RunInfo, error) {
	client, err := cruciblelibvirt.ConnectWithContext(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close libvirt connection", "error", err)
		}
	}()

	return getWithDeps(ctx, name, client.Libvirt())
}

// getWithDeps gets a run with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func getWithDeps(_ context.Context, name string, lv libvirtClient) (*RunInfo, error) {
	domain, err := lv.DomainLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("run %q not found: %w", name, err)
	}

	run, err := metadata.Load(lv, domain)
	if err != nil {
		return nil, fmt.Errorf("domain %q carries no run record: %w", name, err)
	}

	info, err := getRunInfo(lv, domain, run)
	if err != nil {
		return nil, err
	}

	return &info, nil
}
