package main

import (
	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "snapgloss",
	Short: "Pinyin and translation annotations for photographed Chinese text",
	Long: `Snapgloss turns screenshots and PDFs of Chinese text into annotated
documents: each recognized line gets pinyin and an English translation.

The pipeline includes:
  - PaddleOCR recognition with positioned text regions
  - Streaming LLM annotation with a blocking batch fallback
  - DefraDB persistence behind a paginated, cached library API`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.snapgloss/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "snapgloss home directory (default: ~/.snapgloss)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
