// Package library implements the paginated document listing: a stateful
// window over the store that grows page by page, prefetches ahead of the
// reader's position and hydrates full documents through the cache layer.
package library

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/cache"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/media"
	"github.com/snapgloss/snapgloss/internal/store"
)

// State is the pagination lifecycle.
//
//	idle | has_more → loading → has_more (full page)
//	                          → completed (short page)
//	                          → error     (recoverable via Retry)
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateHasMore   State = "has_more"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Defaults applied when Config leaves the corresponding field zero.
const (
	DefaultPageSize         = 20
	DefaultPreloadThreshold = 5
	DefaultThrottleInterval = 200 * time.Millisecond

	// prefetchConcurrency bounds background thumbnail rendering.
	prefetchConcurrency = 4
)

// Config wires the loader. Store is required; Caches enables document
// hydration and Images enables thumbnail prefetch (either may be nil).
type Config struct {
	Store  store.Store
	Caches *cache.Manager
	Images *media.Images
	Logger *slog.Logger

	// PageSize is how many metadata entries one load fetches.
	PageSize int

	// PreloadThreshold is how close to the window's tail a displayed item
	// must be before the next page is prefetched.
	PreloadThreshold int

	// ThrottleInterval bounds how often display events may trigger a
	// prefetch.
	ThrottleInterval time.Duration
}

// Loader pages document metadata out of the store. All methods are safe for
// concurrent use; the window only ever grows until the next LoadInitial.
type Loader struct {
	store    store.Store
	caches   *cache.Manager
	images   *media.Images
	logger   *slog.Logger
	throttle *async.Throttler

	pageSize         int
	preloadThreshold int

	mu      sync.Mutex
	state   State
	items   []document.Metadata
	lastErr error
}

// NewLoader creates a loader in the idle state.
func NewLoader(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PreloadThreshold <= 0 {
		cfg.PreloadThreshold = DefaultPreloadThreshold
	}
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultThrottleInterval
	}
	return &Loader{
		store:            cfg.Store,
		caches:           cfg.Caches,
		images:           cfg.Images,
		logger:           logger.With("component", "library"),
		throttle:         async.NewThrottler(cfg.ThrottleInterval),
		pageSize:         cfg.PageSize,
		preloadThreshold: cfg.PreloadThreshold,
		state:            StateIdle,
	}
}

// Close releases the prefetch throttler.
func (l *Loader) Close() {
	l.throttle.Stop()
}

// LoadInitial discards the current window and loads the first page. A load
// already in flight makes this a no-op.
func (l *Loader) LoadInitial(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateLoading {
		l.mu.Unlock()
		return nil
	}
	l.state = StateLoading
	l.items = nil
	l.lastErr = nil
	l.mu.Unlock()

	return l.load(ctx, 0)
}

// LoadMore extends the window by one page. Only the idle and has_more states
// accept the request; anything else is a no-op.
func (l *Loader) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle && l.state != StateHasMore {
		l.mu.Unlock()
		return nil
	}
	l.state = StateLoading
	offset := len(l.items)
	l.mu.Unlock()

	return l.load(ctx, offset)
}

// Retry re-attempts the failed load, keeping everything already in the
// window. A no-op outside the error state.
func (l *Loader) Retry(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateError {
		l.mu.Unlock()
		return nil
	}
	l.state = StateLoading
	offset := len(l.items)
	l.mu.Unlock()

	return l.load(ctx, offset)
}

// load fetches one page at offset and applies the state transition. The
// loading guard set by the caller means at most one load runs at a time.
func (l *Loader) load(ctx context.Context, offset int) error {
	page, err := l.store.FetchPage(ctx, offset, l.pageSize)

	l.mu.Lock()
	if err != nil {
		l.state = StateError
		l.lastErr = err
		l.mu.Unlock()
		l.logger.Warn("page load failed", "offset", offset, "error", err)
		return err
	}
	l.items = append(l.items, page...)
	l.lastErr = nil
	if len(page) < l.pageSize {
		l.state = StateCompleted
	} else {
		l.state = StateHasMore
	}
	total := len(l.items)
	state := l.state
	l.mu.Unlock()

	l.logger.Debug("page loaded",
		"offset", offset,
		"fetched", len(page),
		"total", total,
		"state", state)

	l.prefetchThumbnails(page)
	return nil
}

// NoteDisplayed records that the item at index is on screen. Once the index
// reaches the preload threshold from the tail while more pages exist, the
// next page loads in the background; a scroll storm collapses into one load
// per throttle interval.
func (l *Loader) NoteDisplayed(index int) {
	l.mu.Lock()
	near := l.state == StateHasMore && index >= len(l.items)-l.preloadThreshold
	l.mu.Unlock()
	if !near {
		return
	}

	l.throttle.Call(func() {
		go func() {
			if err := l.LoadMore(context.Background()); err != nil {
				l.logger.Warn("prefetch failed", "error", err)
			}
		}()
	})
}

// Document returns the full document for id, read-through the document
// cache.
func (l *Loader) Document(ctx context.Context, id string) (*document.Document, error) {
	if l.caches != nil {
		if doc, ok := l.caches.Document(id); ok {
			return doc, nil
		}
	}
	doc, err := l.store.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.caches != nil {
		l.caches.StoreDocument(doc)
	}
	return doc, nil
}

// Items returns a snapshot of the current window.
func (l *Loader) Items() []document.Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]document.Metadata, len(l.items))
	copy(out, l.items)
	return out
}

// State returns the current pagination state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the error that put the loader into the error state, if any.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Snapshot is a consistent view of the loader for API responses.
type Snapshot struct {
	State State               `json:"state"`
	Items []document.Metadata `json:"items"`
	Error string              `json:"error,omitempty"`
}

// Snapshot returns the state, window and error under one lock acquisition.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		State: l.state,
		Items: make([]document.Metadata, len(l.items)),
	}
	copy(snap.Items, l.items)
	if l.lastErr != nil {
		snap.Error = l.lastErr.Error()
	}
	return snap
}

// prefetchThumbnails warms the thumbnail cache for freshly listed documents
// in the background. Best-effort: failures are logged and never bubble up.
func (l *Loader) prefetchThumbnails(metas []document.Metadata) {
	if l.images == nil || len(metas) == 0 {
		return
	}
	go func() {
		ctx := context.Background()
		_ = async.ForEach(ctx, metas, prefetchConcurrency, func(ctx context.Context, _ int, meta document.Metadata) error {
			doc, err := l.Document(ctx, meta.ID)
			if err != nil {
				l.logger.Debug("thumbnail prefetch skipped", "doc_id", meta.ID, "error", err)
				return nil
			}
			if _, err := l.images.Thumbnail(ctx, doc); err != nil {
				l.logger.Debug("thumbnail prefetch failed", "doc_id", meta.ID, "error", err)
			}
			return nil
		})
	}()
}
