package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/polyglotvid/lingoctl/internal/api"
	"github.com/polyglotvid/lingoctl/internal/config"
	"github.com/polyglotvid/lingoctl/internal/observability"
)

var Version = "dev"

var (
	flagConfig  string
	flagBackend string
	flagVerbose bool

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "lingoctl",
	Short:         "Control panel for the language-learning video pipeline",
	Long:          "lingoctl drives a video-generation backend (bilingual TTS, subtitles, compositing) over its control API: configure a run, start it, and follow its progress live.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagBackend != "" {
			c.BackendURL = flagBackend
			if err := c.Validate(); err != nil {
				return err
			}
		}
		cfg = c
		logger = observability.InitLogger(flagVerbose)
		slog.SetDefault(logger)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lingoctl %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: user config dir)")
	rootCmd.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(outputsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(editionCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func newClient() *api.Client {
	return api.NewClient(cfg.BackendURL, cfg.Timeout())
}

// printWarnings renders non-fatal problems the way the web panel showed
// warning toasts.
func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  Warning: %s\n", w)
	}
}
