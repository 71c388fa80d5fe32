package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatRun formats a single BuildRun as a table row.
func (f *TableFormatter) FormatRun(run *v1alpha1.BuildRun) (string, error) {
	return f.FormatRunList([]*v1alpha1.BuildRun{run})
}

// FormatRunList formats a list of BuildRuns as a table.
func (f *TableFormatter) FormatRunList(runs []*v1alpha1.BuildRun) (string, error) {
	if len(runs) == 0 {
		return "No runs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	// Write header unless NoHeaders is set
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tPHASE\tSTEP\tADDRESS\tVCPUs\tMEMORY\tAGE")
	}

	for _, run := range runs {
		name := run.Name
		phase := string(run.Status.Phase)
		if phase == "" {
			phase = "-"
		}

		// Show the failed step for failed runs, the current step otherwise.
		step := "-"
		switch {
		case run.Status.FailedStep != "":
			step = run.Status.FailedStep
		case run.Status.CurrentStep != "":
			step = run.Status.CurrentStep
		}

		address := run.Status.Address
		if address == "" {
			address = "-"
		}

		vcpus := fmt.Sprintf("%d", run.Spec.VM.VCPUs)
		memory := fmt.Sprintf("%d GiB", run.Spec.VM.MemoryGiB)

		// Calculate age from creation timestamp
		age := "-"
		if !run.CreationTimestamp.IsZero() {
			age = formatAge(time.Since(run.CreationTimestamp.Time))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			name, phase, step, address, vcpus, memory, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatAge renders a duration in kubectl style: the largest unit that
// fits, no fractions ("5s", "2m", "3h", "4d", "2w", "1y").
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	switch s := int(d.Seconds()); {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 60*60:
		return fmt.Sprintf("%dm", s/60)
	case s < 24*60*60:
		return fmt.Sprintf("%dh", s/(60*60))
	case s < 7*24*60*60:
		return fmt.Sprintf("%dd", s/(24*60*60))
	case s < 365*24*60*60:
		return fmt.Sprintf("%dw", s/(7*24*60*60))
	default:
		return fmt.Sprintf("%dy", s/(365*24*60*60))
	}
}
