// Package loader provides functions for loading BuildRun resources
// from YAML files.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// LoadFromFile loads a BuildRun resource from a YAML file.
// The file must be in the crucible.cofront.xyz/v1alpha1 format.
func LoadFromFile(path string) (*v1alpha1.BuildRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML loads a BuildRun resource from YAML bytes.
// The YAML must be in the crucible.cofront.xyz/v1alpha1 format.
func LoadFromYAML(data []byte) (*v1alpha1.BuildRun, error) {
	var run v1alpha1.BuildRun
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	// Validate that apiVersion and kind are present
	if run.APIVersion == "" {
		return nil, fmt.Errorf("missing required field: apiVersion")
	}
	if run.Kind == "" {
		return nil, fmt.Errorf("missing required field: kind")
	}

	// Validate apiVersion matches expected
	expectedAPIVersion := v1alpha1.GroupName + "/" + v1alpha1.Version
	if run.APIVersion != expectedAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion: %s (expected: %s)", run.APIVersion, expectedAPIVersion)
	}

	// Validate kind
	if run.Kind != v1alpha1.BuildRunKind {
		return nil, fmt.Errorf("unsupported kind: %s (expected: %s)", run.Kind, v1alpha1.BuildRunKind)
	}

	// Normalize fills defaults and canonicalizes user input
	run.Normalize()

	if run.Status.Phase == "" {
		run.Status.Phase = v1alpha1.RunPhasePending
	}

	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &run, nil
}

// SaveToFile saves a BuildRun resource to a YAML file.
func SaveToFile(run *v1alpha1.BuildRun, path string) error {
	// Ensure TypeMeta is set
	v1alpha1.SetDefaultAPIVersion(run)

	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
