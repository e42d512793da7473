// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/cache"
	"github.com/snapgloss/snapgloss/internal/config"
	"github.com/snapgloss/snapgloss/internal/defra"
	"github.com/snapgloss/snapgloss/internal/home"
	"github.com/snapgloss/snapgloss/internal/ingest"
	"github.com/snapgloss/snapgloss/internal/library"
	"github.com/snapgloss/snapgloss/internal/media"
	"github.com/snapgloss/snapgloss/internal/metrics"
	"github.com/snapgloss/snapgloss/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DefraClient  *defra.Client
	DefraSink    *defra.Sink
	Store        store.Store
	ConfigStore  config.Store
	Caches       *cache.Manager
	Images       *media.Images
	Intake       *media.Intake
	Library      *library.Loader
	Ingest       *ingest.Orchestrator
	Coordinator  *async.Coordinator
	Logger       *slog.Logger
	Home         *home.Dir
	MetricsQuery *metrics.Query
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DefraClientFrom extracts the DefraDB client from context.
func DefraClientFrom(ctx context.Context) *defra.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraClient
	}
	return nil
}

// DefraSinkFrom extracts the DefraDB write sink from context.
func DefraSinkFrom(ctx context.Context) *defra.Sink {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraSink
	}
	return nil
}

// StoreFrom extracts the document store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ConfigStoreFrom extracts the config store from context.
func ConfigStoreFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigStore
	}
	return nil
}

// CachesFrom extracts the cache manager from context.
func CachesFrom(ctx context.Context) *cache.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Caches
	}
	return nil
}

// ImagesFrom extracts the media image reader from context.
func ImagesFrom(ctx context.Context) *media.Images {
	if s := ServicesFrom(ctx); s != nil {
		return s.Images
	}
	return nil
}

// IntakeFrom extracts the media intake from context.
func IntakeFrom(ctx context.Context) *media.Intake {
	if s := ServicesFrom(ctx); s != nil {
		return s.Intake
	}
	return nil
}

// LibraryFrom extracts the library loader from context.
func LibraryFrom(ctx context.Context) *library.Loader {
	if s := ServicesFrom(ctx); s != nil {
		return s.Library
	}
	return nil
}

// IngestFrom extracts the ingest orchestrator from context.
func IngestFrom(ctx context.Context) *ingest.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ingest
	}
	return nil
}

// CoordinatorFrom extracts the work coordinator from context.
func CoordinatorFrom(ctx context.Context) *async.Coordinator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Coordinator
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// MetricsQueryFrom extracts the metrics query helper from context.
func MetricsQueryFrom(ctx context.Context) *metrics.Query {
	if s := ServicesFrom(ctx); s != nil {
		return s.MetricsQuery
	}
	return nil
}
