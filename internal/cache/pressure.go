package cache

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemoryWatcherConfig configures heap sampling and the pressure thresholds.
type MemoryWatcherConfig struct {
	// Interval between heap samples (default: 30s).
	Interval time.Duration

	// SoftLimit is the heap allocation that triggers image eviction
	// (default: 256 MiB).
	SoftLimit uint64

	// HardLimit is the heap allocation that also clears thumbnails
	// (default: 512 MiB).
	HardLimit uint64

	Logger *slog.Logger
}

// MemoryWatcher samples the Go heap on an interval and asks the Manager to
// shed caches in tiers when allocation crosses the configured limits.
type MemoryWatcher struct {
	manager   *Manager
	interval  time.Duration
	softLimit uint64
	hardLimit uint64
	logger    *slog.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMemoryWatcher creates a watcher for the given manager.
func NewMemoryWatcher(manager *Manager, cfg MemoryWatcherConfig) *MemoryWatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.SoftLimit == 0 {
		cfg.SoftLimit = 256 << 20
	}
	if cfg.HardLimit == 0 {
		cfg.HardLimit = 512 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &MemoryWatcher{
		manager:   manager,
		interval:  cfg.Interval,
		softLimit: cfg.SoftLimit,
		hardLimit: cfg.HardLimit,
		logger:    cfg.Logger.With("component", "memwatch"),
	}
}

// Start begins sampling until Stop is called or ctx is cancelled.
func (w *MemoryWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.sample()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts sampling and waits for the sampler to exit.
func (w *MemoryWatcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
	})
}

// sample reads the heap once and applies the tiered policy.
func (w *MemoryWatcher) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	switch {
	case ms.HeapAlloc >= w.hardLimit:
		w.logger.Warn("heap above hard limit",
			"heap_bytes", ms.HeapAlloc,
			"hard_limit", w.hardLimit)
		w.manager.HandleMemoryPressure(true)
	case ms.HeapAlloc >= w.softLimit:
		w.logger.Info("heap above soft limit",
			"heap_bytes", ms.HeapAlloc,
			"soft_limit", w.softLimit)
		w.manager.HandleMemoryPressure(false)
	}
}
