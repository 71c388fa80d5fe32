package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	cruciblelibvirt "github.com/jbweber/crucible/internal/libvirt"
	"github.com/jbweber/crucible/internal/storage"
)

// withStorageManager connects to libvirt, ensures the default pools exist,
// and hands a storage manager to fn, closing the connection afterwards.
func withStorageManager(ctx context.Context, fn func(ctx context.Context, mgr *storage.Manager) error) error {
	client, err := cruciblelibvirt.Connect("", 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() { _ = client.Close() }()

	mgr := storage.NewManager(client.Libvirt())
	if err := mgr.EnsureDefaultPools(ctx); err != nil {
		return fmt.Errorf("failed to ensure storage pools: %w", err)
	}

	return fn(ctx, mgr)
}

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage base images",
	Long:  `Manage the base images runs boot from, stored in the crucible-images pool.`,
}

var imageImportCmd = &cobra.Command{
	Use:   "import <file> <name>",
	Short: "Import a base image from a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, imageName := args[0], args[1]

		return withStorageManager(context.Background(), func(ctx context.Context, mgr *storage.Manager) error {
			exists, err := mgr.ImageExists(ctx, imageName)
			if err != nil {
				return fmt.Errorf("failed to check image: %w", err)
			}
			if exists {
				return fmt.Errorf("image %q already exists", imageName)
			}

			fmt.Printf("Importing %s as %s...\n", filePath, imageName)
			if err := mgr.ImportImage(ctx, filePath, imageName); err != nil {
				return fmt.Errorf("failed to import image: %w", err)
			}

			fmt.Printf("✓ Image %s imported successfully\n", imageName)
			return nil
		})
	},
}

var imagePullCmd = &cobra.Command{
	Use:   "pull <url> <name>",
	Short: "Download a base image from a URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, imageName := args[0], args[1]
		checksum, _ := cmd.Flags().GetString("checksum")

		return withStorageManager(context.Background(), func(ctx context.Context, mgr *storage.Manager) error {
			exists, err := mgr.ImageExists(ctx, imageName)
			if err != nil {
				return fmt.Errorf("failed to check image: %w", err)
			}
			if exists {
				return fmt.Errorf("image %q already exists", imageName)
			}

			fmt.Printf("Pulling %s as %s...\n", url, imageName)
			if err := mgr.PullImage(ctx, url, imageName, checksum); err != nil {
				return fmt.Errorf("failed to pull image: %w", err)
			}

			fmt.Printf("✓ Image %s pulled successfully\n", imageName)
			return nil
		})
	},
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available base images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorageManager(context.Background(), func(ctx context.Context, mgr *storage.Manager) error {
			images, err := mgr.ListImages(ctx)
			if err != nil {
				return fmt.Errorf("failed to list images: %w", err)
			}

			if len(images) == 0 {
				fmt.Println("No images found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tCAPACITY\tALLOCATED")
			for _, img := range images {
				_, _ = fmt.Fprintf(w, "%s\t%.1f GiB\t%.1f GiB\n",
					img.Name, img.CapacityGB(), img.AllocationGB())
			}
			return w.Flush()
		})
	},
}

var imageDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a base image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageName := args[0]
		force, _ := cmd.Flags().GetBool("force")

		return withStorageManager(context.Background(), func(ctx context.Context, mgr *storage.Manager) error {
			if err := mgr.DeleteImage(ctx, imageName, force); err != nil {
				return fmt.Errorf("failed to delete image: %w", err)
			}

			fmt.Printf("✓ Image %s deleted\n", imageName)
			return nil
		})
	},
}

var imageInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show details for a base image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageName := args[0]

		return withStorageManager(context.Background(), func(ctx context.Context, mgr *storage.Manager) error {
			exists, err := mgr.ImageExists(ctx, imageName)
			if err != nil {
				return fmt.Errorf("failed to check image: %w", err)
			}
			if !exists {
				return fmt.Errorf("image %q not found", imageName)
			}

			path, err := mgr.GetImagePath(ctx, imageName)
			if err != nil {
				return fmt.Errorf("failed to get image path: %w", err)
			}

			fmt.Printf("Name: %s\n", imageName)
			fmt.Printf("Pool: %s\n", storage.DefaultImagesPool)
			fmt.Printf("Path: %s\n", path)
			return nil
		})
	},
}

func init() {
	imagePullCmd.Flags().String("checksum", "", "expected SHA-256 checksum of the downloaded image")
	imageDeleteCmd.Flags().Bool("force", false, "delete even if runs reference this image")

	imageCmd.AddCommand(imageImportCmd)
	imageCmd.AddCommand(imagePullCmd)
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageDeleteCmd)
	imageCmd.AddCommand(imageInfoCmd)
}
