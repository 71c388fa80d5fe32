package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatRun formats a single BuildRun as JSON.
func (f *JSONFormatter) FormatRun(run *v1alpha1.BuildRun) (string, error) {
	// Ensure TypeMeta is set
	v1alpha1.SetDefaultAPIVersion(run)

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatRunList formats a list of BuildRuns as JSON.
// Outputs as a JSON array.
func (f *JSONFormatter) FormatRunList(runs []*v1alpha1.BuildRun) (string, error) {
	if len(runs) == 0 {
		return "[]\n", nil
	}

	for _, run := range runs {
		v1alpha1.SetDefaultAPIVersion(run)
	}

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal runs to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatRunListAsItems formats a list of BuildRuns as a JSON object with an
// items array. This mimics Kubernetes List format:
//
//	{
//	  "apiVersion": "crucible.cofront.xyz/v1alpha1",
//	  "kind": "BuildRunList",
//	  "items": [...]
//	}
func (f *JSONFormatter) FormatRunListAsItems(runs []*v1alpha1.BuildRun) (string, error) {
	for _, run := range runs {
		v1alpha1.SetDefaultAPIVersion(run)
	}

	wrapper := map[string]interface{}{
		"apiVersion": v1alpha1.GroupName + "/" + v1alpha1.Version,
		"kind":       "BuildRunList",
		"items":      runs,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(wrapper); err != nil {
		return "", fmt.Errorf("failed to marshal run list to JSON: %w", err)
	}

	return buf.String(), nil
}
