package main

import (
	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/server/endpoints"
)

var ingestServerURL string

// ingestCmd is a top-level shortcut for the common case; the full document
// tree lives under 'snapgloss api documents'.
var ingestCmd = newIngestCmd()

func newIngestCmd() *cobra.Command {
	cmd := (&endpoints.UploadEndpoint{}).Command(func() string { return ingestServerURL })
	cmd.Use = "ingest <file>"
	cmd.Short = "Upload a screenshot or PDF to the running server"
	cmd.Long = `Upload a PNG, JPEG or PDF to the running snapgloss server.

The file is sent as multipart form data, so this works against a remote
server. Recognition and annotation run in the background; pass --wait to
block until the document is fully annotated.

Examples:
  snapgloss ingest page.png
  snapgloss ingest scan.pdf --script traditional --wait`
	cmd.Flags().StringVar(&ingestServerURL, "server", "http://localhost:8080", "Server URL")
	return cmd
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
