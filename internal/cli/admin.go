package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the backend's synthesis caches",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the TTS, image, and video caches",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().ClearCache(cmd.Context())
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("clear cache: %s", res.Error)
		}
		fmt.Println("Caches cleared.")
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <code>",
	Short: "Unlock premium features with an activation code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().Activate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("activation failed: %s", res.Error)
		}
		fmt.Println("Premium unlocked. The backend resets to Free on restart.")
		return nil
	},
}

var editionCmd = &cobra.Command{
	Use:   "edition",
	Short: "Show whether the backend has premium unlocked",
	RunE: func(cmd *cobra.Command, args []string) error {
		premium, err := newClient().Edition(cmd.Context())
		if err != nil {
			return err
		}
		if premium {
			fmt.Println("Edition: premium")
		} else {
			fmt.Println("Edition: free")
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
