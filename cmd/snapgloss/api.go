package main

import (
	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running snapgloss server via HTTP.

These commands require a running server (snapgloss serve).
Use --server to specify a custom server URL.

Examples:
  snapgloss api health                        # Check server health
  snapgloss api documents list                # List documents
  snapgloss api documents get <id>            # Get a specific document
  snapgloss api settings set page_size --value 30`,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Document management commands",
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Library window commands",
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Usage metrics commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Runtime settings commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Resource groups
	for _, ep := range endpoints.DocumentCommands() {
		documentsCmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.LibraryCommands() {
		libraryCmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.MetricsCommands() {
		metricsCmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.SettingsCommands() {
		settingsCmd.AddCommand(ep.Command(getServerURL))
	}

	// OpenAPI spec export at top level
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(documentsCmd)
	apiCmd.AddCommand(libraryCmd)
	apiCmd.AddCommand(metricsCmd)
	apiCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(apiCmd)
}
