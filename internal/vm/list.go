package vm

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/crucible/api/v1alpha1"
	cruciblelibvirt "github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/metadata"
)

// RunInfo summarizes one run's VM and its recorded pipeline state.
type RunInfo struct {
	Name     string
	State    string
	Phase    v1alpha1.RunPhase
	Address  string
	CPUs     uint16
	MemoryMB uint64

	// Run is the full record loaded from domain metadata.
	Run *v1alpha1.BuildRun
}

// List lists all VMs carrying a run record, running or stopped.
//
// Domains without crucible metadata (other VMs on the same host) are
// skipped silently.
func List(ctx context.Context) ([]RunInfo, error) {
	log.Info("connecting to libvirt")
	client, err := cruciblelibvirt.ConnectWithContext(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close libvirt connection", "error", err)
		}
	}()

	return listWithDeps(ctx, client.Libvirt())
}

// listWithDeps lists runs with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func listWithDeps(_ context.Context, lv libvirtClient) ([]RunInfo, error) {
	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	domains, _, err := lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	runs := make([]RunInfo, 0, len(domains))
	for _, domain := range domains {
		run, err := metadata.Load(lv, domain)
		if err != nil {
			// Not one of ours.
			continue
		}

		info, err := getRunInfo(lv, domain, run)
		if err != nil {
			log.Warn("failed to get info for domain", "domain", domain.Name, "error", err)
			continue
		}
		runs = append(runs, info)
	}

	return runs, nil
}

// getRunInfo combines libvirt domain state with the stored run record.
func getRunInfo(lv libvirtClient, domain libvirt.Domain, run *v1alpha1.BuildRun) (RunInfo, error) {
	state, _, err := lv.DomainGetState(domain, 0)
	if err != nil {
		return RunInfo{}, fmt.Errorf("failed to get domain state: %w", err)
	}

	_, _, memory, nrVirtCPU, _, err := lv.DomainGetInfo(domain)
	if err != nil {
		return RunInfo{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	return RunInfo{
		Name:     domain.Name,
		State:    stateToString(state),
		Phase:    run.GetPhase(),
		Address:  run.Status.Address,
		CPUs:     nrVirtCPU,
		MemoryMB: memory / 1024,
		Run:      run,
	}, nil
}

// stateToString converts libvirt domain state to human-readable string.
func stateToString(state int32) string {
	switch state {
	case 0:
		return "no state"
	case 1:
		return "running"
	case 2:
		return "blocked"
	case 3:
		return "paused"
	case 4:
		return "shutdown"
	case 5:
		return "shutoff"
	case 6:
		return "crashed"
	case 7:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// PrintRuns prints a formatted table of runs to stdout.
func PrintRuns(runs []RunInfo) {
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATE\tPHASE\tADDRESS\tCPUs\tMEMORY")

	for _, r := range runs {
		phase := string(r.Phase)
		if phase == "" {
			phase = "-"
		}
		address := r.Address
		if address == "" {
			address = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d MiB\n",
			r.Name, r.State, phase, address, r.CPUs, r.MemoryMB)
	}

	_ = w.Flush()
}
