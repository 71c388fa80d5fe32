package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// YAMLFormatter renders BuildRuns as YAML. Output from FormatRun feeds
// straight back into the loader, so TypeMeta is always filled in.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatRun(run *v1alpha1.BuildRun) (string, error) {
	v1alpha1.SetDefaultAPIVersion(run)

	data, err := yaml.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run to YAML: %w", err)
	}

	return string(data), nil
}

// FormatRunList writes runs as a YAML stream, one document per run.
func (f *YAMLFormatter) FormatRunList(runs []*v1alpha1.BuildRun) (string, error) {
	if len(runs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, run := range runs {
		v1alpha1.SetDefaultAPIVersion(run)

		data, err := yaml.Marshal(run)
		if err != nil {
			return "", fmt.Errorf("failed to marshal run %s to YAML: %w", run.Name, err)
		}

		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}
