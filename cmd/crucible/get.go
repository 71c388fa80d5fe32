package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/crucible/internal/output"
	"github.com/jbweber/crucible/internal/vm"
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Get the run record for a single VM",
	Long: `Get the run record stored in a VM's domain metadata.

The record includes the full spec plus the recorded status: phase,
per-step results, and the SSH address.

Examples:
  crucible get libnss-main
  crucible get libnss-main -o yaml
  crucible get libnss-main -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		info, err := vm.Get(context.Background(), args[0])
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatRun(info.Run)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Fprint(os.Stdout, result)
		return nil
	},
}
