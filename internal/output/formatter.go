// Package output renders BuildRun resources as tables for humans and
// YAML or JSON for machines.
package output

import (
	"fmt"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

func (f Format) valid() bool {
	return f == FormatTable || f == FormatYAML || f == FormatJSON
}

// Formatter renders BuildRun resources.
type Formatter interface {
	FormatRun(run *v1alpha1.BuildRun) (string, error)
	FormatRunList(runs []*v1alpha1.BuildRun) (string, error)
}

// Options configures formatter construction.
type Options struct {
	Format Format
	// NoHeaders omits the header row in table format.
	NoHeaders bool
}

// NewFormatter returns the Formatter for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat rejects format strings NewFormatter would not accept.
// Commands call it before doing any work so a typo fails fast.
func ValidateFormat(format string) error {
	if !Format(format).valid() {
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
	return nil
}
