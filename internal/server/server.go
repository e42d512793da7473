package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/snapgloss/snapgloss/internal/annotate"
	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/cache"
	"github.com/snapgloss/snapgloss/internal/config"
	"github.com/snapgloss/snapgloss/internal/defra"
	"github.com/snapgloss/snapgloss/internal/home"
	"github.com/snapgloss/snapgloss/internal/ingest"
	"github.com/snapgloss/snapgloss/internal/library"
	"github.com/snapgloss/snapgloss/internal/media"
	"github.com/snapgloss/snapgloss/internal/metrics"
	"github.com/snapgloss/snapgloss/internal/ocr"
	"github.com/snapgloss/snapgloss/internal/schema"
	"github.com/snapgloss/snapgloss/internal/server/endpoints"
	"github.com/snapgloss/snapgloss/internal/store"
	"github.com/snapgloss/snapgloss/internal/svcctx"
)

// Server is the main snapgloss HTTP server.
// It manages the DefraDB container lifecycle - starting it on server start
// and stopping it on server shutdown - and owns the ingest pipeline,
// library loader and write sink built on top of it.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	sink         *defra.Sink
	coordinator  *async.Coordinator
	library      *library.Loader
	memWatcher   *cache.MemoryWatcher
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the snapgloss home directory holding media and pid files
	Home *home.Dir
	// DefraDataPath is the path to persist DefraDB data
	// (default: <home>/defradb)
	DefraDataPath string
	// DefraConfig holds DefraDB container settings
	DefraConfig defra.DockerConfig
	// ConfigManager provides startup configuration with file-watch support
	ConfigManager *config.Manager
	// SwaggerSpecPath overrides the compiled-in OpenAPI spec with a file on disk
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}

	// Set up DefraDB data path
	if cfg.DefraDataPath == "" {
		cfg.DefraDataPath = filepath.Join(cfg.Home.Path(), "defradb")
	}
	cfg.DefraConfig.DataPath = cfg.DefraDataPath

	defraManager, err := defra.NewDockerManager(cfg.DefraConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create defra manager: %w", err)
	}

	// Provider endpoints and pipeline timeouts are read once at startup;
	// runtime tuning lives in the Config collection instead.
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(*config.Config) {
			cfg.Logger.Info("configuration file changed; provider settings apply on next restart")
		})
	}

	s := &Server{
		defraManager: defraManager,
		configMgr:    cfg.ConfigManager,
		home:         cfg.Home,
		logger:       cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		DefraManager:    defraManager,
		SwaggerSpecPath: cfg.SwaggerSpecPath,
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and DefraDB.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Validate any existing container matches our config
	if err := s.defraManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing DefraDB container incompatible: %w", err)
	}

	// Start DefraDB
	s.logger.Info("starting DefraDB")
	if err := s.defraManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}

	// Create client after DefraDB is up
	s.defraClient = defra.NewClient(s.defraManager.URL())

	// Verify DefraDB is healthy
	if err := s.defraClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown() // Clean up DefraDB on failure
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())

	// Initialize schemas
	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.defraClient, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// Build the service graph on top of the live client
	if err := s.buildServices(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	// Prime the library window so the first GET /api/library has content
	go func() {
		if err := s.library.LoadInitial(ctx); err != nil {
			s.logger.Warn("initial library load failed", "error", err)
		}
	}()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown() // Clean up DefraDB on HTTP error
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildServices constructs the stores, caches, providers and pipeline that
// handlers reach through the request context. Runtime settings come from the
// Config collection; provider endpoints and timeouts from the config file.
func (s *Server) buildServices(ctx context.Context) error {
	fileCfg := config.DefaultConfig()
	if s.configMgr != nil {
		fileCfg = s.configMgr.Get()
	}

	if p := fileCfg.OCR.Provider; p != "" && p != ocr.PaddleName {
		return fmt.Errorf("unknown OCR provider %q", p)
	}
	if p := fileCfg.Annotator.Provider; p != "" && p != annotate.OpenAIName {
		return fmt.Errorf("unknown annotator provider %q", p)
	}

	sink := defra.NewSink(defra.SinkConfig{
		Client: s.defraClient,
		Logger: s.logger,
	})
	sink.Start(ctx)
	s.sink = sink

	configStore := config.NewStore(s.defraClient)
	if err := config.SeedDefaults(ctx, configStore, s.logger); err != nil {
		return fmt.Errorf("failed to seed default settings: %w", err)
	}

	settings, err := config.StoreToSettings(ctx, configStore)
	if err != nil {
		s.logger.Warn("loading runtime settings failed, using defaults", "error", err)
		settings = config.DefaultSettings()
	}

	budgets := settings.CacheBudgets()
	budgets.Logger = s.logger
	caches := cache.NewManager(budgets)

	s.memWatcher = cache.NewMemoryWatcher(caches, cache.MemoryWatcherConfig{Logger: s.logger})
	s.memWatcher.Start(ctx)

	docStore := store.NewStore(s.defraClient, sink, s.logger)
	intake := media.NewIntake(s.home, s.logger)
	images := media.NewImages(s.home, caches, s.logger)

	recorder := metrics.NewSinkRecorder(sink, s.logger)

	recognizer := ocr.NewPaddleClient(ocr.PaddleConfig{
		BaseURL:           fileCfg.OCR.BaseURL,
		Timeout:           time.Duration(fileCfg.OCR.TimeoutSeconds) * time.Second,
		RequestsPerMinute: fileCfg.OCR.RequestsPerMinute,
		MaxRetries:        fileCfg.OCR.MaxRetries,
		Metrics:           recorder,
		Logger:            s.logger,
	})

	annotator := annotate.NewOpenAIClient(annotate.OpenAIConfig{
		APIKey:      fileCfg.Annotator.ResolveAPIKey(),
		Model:       fileCfg.Annotator.Model,
		BaseURL:     fileCfg.Annotator.BaseURL,
		ChunkSize:   settings.BatchSize,
		Concurrency: settings.Concurrency,
		Metrics:     recorder,
		Logger:      s.logger,
	})

	orchestrator := ingest.NewOrchestrator(ingest.Config{
		Recognizer:       recognizer,
		Streamer:         annotator,
		Batcher:          annotator,
		Store:            docStore,
		Logger:           s.logger,
		RecognizeTimeout: fileCfg.Pipeline.RecognizeTimeout(),
		AnnotateTimeout:  fileCfg.Pipeline.AnnotateTimeout(),
		Concurrency:      settings.Concurrency,
	})

	s.coordinator = async.NewCoordinator(async.CoordinatorConfig{
		Limit:  settings.Concurrency,
		Logger: s.logger,
	})

	s.library = library.NewLoader(library.Config{
		Store:            docStore,
		Caches:           caches,
		Images:           images,
		Logger:           s.logger,
		PageSize:         settings.PageSize,
		PreloadThreshold: settings.PreloadThreshold,
		ThrottleInterval: settings.Throttle(),
	})

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		DefraClient:  s.defraClient,
		DefraSink:    sink,
		Store:        docStore,
		ConfigStore:  configStore,
		Caches:       caches,
		Images:       images,
		Intake:       intake,
		Library:      s.library,
		Ingest:       orchestrator,
		Coordinator:  s.coordinator,
		Home:         s.home,
		MetricsQuery: metrics.NewQuery(s.defraClient),
		Logger:       s.logger,
	}

	return nil
}

// shutdown performs graceful shutdown of the HTTP server, the pipeline and
// DefraDB, in that order, so queued writes flush before the database stops.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Cancel in-flight ingest runs and wait for them to unwind
	if s.coordinator != nil {
		s.coordinator.CancelAll()
		if err := s.coordinator.AwaitIdle(shutdownCtx); err != nil {
			s.logger.Error("ingest drain error", "error", err)
		}
	}

	if s.library != nil {
		s.library.Close()
	}

	if s.memWatcher != nil {
		s.memWatcher.Stop()
	}

	// Flush queued writes before the database goes away
	if s.sink != nil {
		s.sink.Stop()
	}

	// Stop DefraDB
	s.logger.Info("stopping DefraDB")
	if err := s.defraManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}

	// Close Docker client
	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("DefraDB manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// DefraClient returns the DefraDB client.
// Returns nil if the server hasn't started yet.
func (s *Server) DefraClient() *defra.Client {
	return s.defraClient
}

// Coordinator returns the ingest coordinator.
// Returns nil if the server hasn't started yet.
func (s *Server) Coordinator() *async.Coordinator {
	return s.coordinator
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if DefraDB or the service graph isn't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.defraClient == nil || s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
