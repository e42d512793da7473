package config

import (
	"context"
	"fmt"
	"time"

	"github.com/snapgloss/snapgloss/internal/cache"
)

// Settings holds the runtime tunables read from the DefraDB Config
// collection. Unlike the file config, these can change while the server
// is running; callers re-read them through StoreToSettings.
type Settings struct {
	// Pipeline controls.
	Concurrency int `json:"concurrency"`
	BatchSize   int `json:"batch_size"`

	// Library browsing controls.
	PageSize         int `json:"page_size"`
	PreloadThreshold int `json:"preload_threshold"`
	DebounceMillis   int `json:"debounce_ms"`
	ThrottleMillis   int `json:"throttle_ms"`

	// Cache budgets.
	ImageCacheBytes       int64 `json:"image_cache_bytes"`
	ImageCacheEntries     int   `json:"image_cache_entries"`
	DocumentCacheBytes    int64 `json:"document_cache_bytes"`
	DocumentCacheEntries  int   `json:"document_cache_entries"`
	ThumbnailCacheBytes   int64 `json:"thumbnail_cache_bytes"`
	ThumbnailCacheEntries int   `json:"thumbnail_cache_entries"`
}

// DefaultSettings returns the settings that SeedDefaults writes on first run.
func DefaultSettings() Settings {
	return Settings{
		Concurrency:           4,
		BatchSize:             10,
		PageSize:              20,
		PreloadThreshold:      5,
		DebounceMillis:        500,
		ThrottleMillis:        200,
		ImageCacheBytes:       cache.DefaultImageBytes,
		ImageCacheEntries:     cache.DefaultImageEntries,
		DocumentCacheBytes:    cache.DefaultDocumentBytes,
		DocumentCacheEntries:  cache.DefaultDocumentEntries,
		ThumbnailCacheBytes:   cache.DefaultThumbnailBytes,
		ThumbnailCacheEntries: cache.DefaultThumbnailEntries,
	}
}

// Debounce returns the library search debounce window.
func (s Settings) Debounce() time.Duration {
	return time.Duration(s.DebounceMillis) * time.Millisecond
}

// Throttle returns the minimum interval between pagination loads.
func (s Settings) Throttle() time.Duration {
	return time.Duration(s.ThrottleMillis) * time.Millisecond
}

// CacheBudgets maps the settings onto cache manager budgets.
func (s Settings) CacheBudgets() cache.ManagerConfig {
	return cache.ManagerConfig{
		Images:     cache.Config{MaxBytes: s.ImageCacheBytes, MaxEntries: s.ImageCacheEntries},
		Documents:  cache.Config{MaxBytes: s.DocumentCacheBytes, MaxEntries: s.DocumentCacheEntries},
		Thumbnails: cache.Config{MaxBytes: s.ThumbnailCacheBytes, MaxEntries: s.ThumbnailCacheEntries},
	}
}

// StoreToSettings builds Settings from the Store. Keys missing from the
// store fall back to their defaults, so a partially seeded database still
// yields a complete Settings value.
func StoreToSettings(ctx context.Context, store Store) (Settings, error) {
	s := DefaultSettings()

	all, err := store.GetAll(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to get config: %w", err)
	}

	s.Concurrency = getInt(all, "pipeline.concurrency", s.Concurrency)
	s.BatchSize = getInt(all, "pipeline.batch_size", s.BatchSize)
	s.PageSize = getInt(all, "library.page_size", s.PageSize)
	s.PreloadThreshold = getInt(all, "library.preload_threshold", s.PreloadThreshold)
	s.DebounceMillis = getInt(all, "library.debounce_ms", s.DebounceMillis)
	s.ThrottleMillis = getInt(all, "library.throttle_ms", s.ThrottleMillis)
	s.ImageCacheBytes = getInt64(all, "cache.image_bytes", s.ImageCacheBytes)
	s.ImageCacheEntries = getInt(all, "cache.image_entries", s.ImageCacheEntries)
	s.DocumentCacheBytes = getInt64(all, "cache.document_bytes", s.DocumentCacheBytes)
	s.DocumentCacheEntries = getInt(all, "cache.document_entries", s.DocumentCacheEntries)
	s.ThumbnailCacheBytes = getInt64(all, "cache.thumbnail_bytes", s.ThumbnailCacheBytes)
	s.ThumbnailCacheEntries = getInt(all, "cache.thumbnail_entries", s.ThumbnailCacheEntries)

	return s, nil
}

// Helper functions to extract typed values from store entries.
// JSON round-trips numbers as float64, so numeric getters accept that too.
func getInt(entries map[string]Entry, key string, fallback int) int {
	entry, ok := entries[key]
	if !ok {
		return fallback
	}
	switch v := entry.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}

func getInt64(entries map[string]Entry, key string, fallback int64) int64 {
	entry, ok := entries[key]
	if !ok {
		return fallback
	}
	switch v := entry.Value.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return fallback
}
