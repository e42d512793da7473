package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	_ "github.com/snapgloss/snapgloss/docs/swagger" // registers the OpenAPI spec
	"github.com/snapgloss/snapgloss/internal/config"
	"github.com/snapgloss/snapgloss/internal/defra"
	"github.com/snapgloss/snapgloss/internal/home"
	"github.com/snapgloss/snapgloss/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the snapgloss server",
	Long: `Start the snapgloss HTTP server.

This starts both the HTTP API server and the DefraDB container.
When the server shuts down (via Ctrl+C or SIGTERM), DefraDB is also stopped.

The server provides:
  - /health       - Basic server health check
  - /ready        - Readiness check (includes DefraDB status)
  - /api/...      - Document, library, settings and metrics endpoints

Examples:
  snapgloss serve                    # Start on default port 8080
  snapgloss serve --port 3000        # Start on custom port
  snapgloss serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Load startup configuration and watch the file for changes
		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()
		fileCfg := cfgMgr.Get()

		// Flags override the config file's server section
		host := fileCfg.Server.Host
		port := fileCfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		// Ensure defradb data directory exists
		defraDataPath := filepath.Join(h.Path(), "defradb")
		if err := os.MkdirAll(defraDataPath, 0755); err != nil {
			return err
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			DefraDataPath: defraDataPath,
			DefraConfig: defra.DockerConfig{
				ContainerName: fileCfg.Defra.ContainerName,
				Image:         fileCfg.Defra.Image,
				HostPort:      fileCfg.Defra.Port,
			},
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		if err := h.WritePid(); err != nil {
			return fmt.Errorf("failed to write pid file: %w", err)
		}
		defer h.RemovePid()

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
