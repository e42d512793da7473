package endpoints

import (
	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager    *defra.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Document endpoints
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&DeleteDocumentEndpoint{},
		&UpdateFlagsEndpoint{},
		&IngestEndpoint{},
		&UploadEndpoint{},
		&ReannotateEndpoint{},

		// Media endpoints
		&DocumentImageEndpoint{},
		&PageImageEndpoint{},
		&ThumbnailEndpoint{},

		// Library endpoints
		&LibraryEndpoint{},
		&LibraryLoadEndpoint{},
		&LibraryMoreEndpoint{},
		&LibraryRetryEndpoint{},
		&LibrarySeenEndpoint{},

		// Metrics endpoints
		&MetricsSummaryEndpoint{},
		&ListMetricsEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}

// DocumentCommands returns endpoints for document operations.
// This groups document-related commands under "documents" subcommand.
func DocumentCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListDocumentsEndpoint{},
		&GetDocumentEndpoint{},
		&DeleteDocumentEndpoint{},
		&UpdateFlagsEndpoint{},
		&IngestEndpoint{},
		&UploadEndpoint{},
		&ReannotateEndpoint{},
	}
}

// LibraryCommands returns endpoints for library window operations.
// This groups library-related commands under "library" subcommand.
func LibraryCommands() []api.Endpoint {
	return []api.Endpoint{
		&LibraryEndpoint{},
		&LibraryLoadEndpoint{},
		&LibraryMoreEndpoint{},
		&LibraryRetryEndpoint{},
	}
}

// MetricsCommands returns endpoints for metrics operations.
// This groups metrics-related commands under "metrics" subcommand.
func MetricsCommands() []api.Endpoint {
	return []api.Endpoint{
		&MetricsSummaryEndpoint{},
		&ListMetricsEndpoint{},
	}
}

// SettingsCommands returns endpoints for settings operations.
// This groups settings-related commands under "settings" subcommand.
func SettingsCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
	}
}
