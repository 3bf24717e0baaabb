package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/polyglotvid/lingoctl/internal/api"
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Work with the backend's produced artifacts",
}

var outputsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List produced artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := newClient().ListOutputs(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No outputs yet.")
			return nil
		}
		for _, it := range items {
			marker := " "
			if it.IsDir {
				marker = "d"
			}
			fmt.Printf("  %s  %s\n", marker, it.Name)
		}
		return nil
	},
}

var flagOutputDest string

var outputsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Download one artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := flagOutputDest
		if dir == "" {
			dir = cfg.OutputDir
		}
		return fetchOutput(cmd.Context(), newClient(), args[0], dir)
	},
}

var outputsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every produced artifact on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().ClearOutput(cmd.Context())
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("clear outputs: %s", res.Error)
		}
		fmt.Println("Outputs cleared.")
		return nil
	},
}

func init() {
	outputsGetCmd.Flags().StringVarP(&flagOutputDest, "dest", "d", "", "Directory to download into (default: configured output dir)")
	outputsCmd.AddCommand(outputsListCmd)
	outputsCmd.AddCommand(outputsGetCmd)
	outputsCmd.AddCommand(outputsClearCmd)
}

func fetchOutput(ctx context.Context, client *api.Client, name, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	if err := client.FetchOutput(ctx, name, f); err != nil {
		os.Remove(dest)
		return err
	}
	fmt.Printf("  Saved %s\n", dest)
	return nil
}
