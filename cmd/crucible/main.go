package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/crucible/api/v1alpha1"
	"github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/output"
	"github.com/jbweber/crucible/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	outputFormat string
	noHeaders    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Crucible - ephemeral VM build-and-test runner",
	Long: `Crucible boots a throwaway libvirt VM, mirrors a project checkout into
it, provisions a compiler toolchain, runs the project's build and test
suite, and tears the VM down again.

A single YAML BuildRun resource describes the whole run.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"Output format: table, yaml, or json")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"Omit headers in table output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(poolCmd)
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <run-name>",
	Short: "Tear down a run's VM",
	Long: `Tear down the VM backing a run by name.

This will:
- Stop the VM if running (graceful shutdown, then force)
- Undefine the domain
- Delete the run's boot and cloud-init volumes

Useful for runs left behind with vm.keep, or after a crash.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		ctx := context.Background()
		if err := vm.Destroy(ctx, name); err != nil {
			return fmt.Errorf("failed to destroy run VM: %w", err)
		}

		fmt.Printf("✓ Run %s destroyed\n", name)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List run VMs",
	Long: `List all VMs carrying a BuildRun record.

Shows run name, domain state, pipeline phase, and guest address. Other
libvirt domains on the host are ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		ctx := context.Background()
		runs, err := vm.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if output.Format(outputFormat) == output.FormatTable {
			vm.PrintRuns(runs)
			return nil
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		records := make([]*v1alpha1.BuildRun, 0, len(runs))
		for _, r := range runs {
			records = append(records, r.Run)
		}

		result, err := formatter.FormatRunList(records)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Testing libvirt connection...")

		client, err := libvirt.Connect("", 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		version, err := client.Version()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Libvirt version: %s\n", version)

		hostname, err := client.Hostname()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		uri, err := client.URI()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Connection URI: %s\n", uri)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
