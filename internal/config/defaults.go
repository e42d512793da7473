package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default runtime settings. These are seeded into
// the DefraDB Config collection on first run and editable afterwards without
// a restart.
func DefaultEntries() []Entry {
	return []Entry{
		// Pipeline
		{
			Key:         "pipeline.concurrency",
			Value:       4,
			Description: "Maximum concurrent annotation requests per document",
		},
		{
			Key:         "pipeline.batch_size",
			Value:       10,
			Description: "Lines per batch annotation request",
		},

		// Library browsing
		{
			Key:         "library.page_size",
			Value:       20,
			Description: "Documents fetched per library page",
		},
		{
			Key:         "library.preload_threshold",
			Value:       5,
			Description: "Distance from the page tail that triggers a prefetch",
		},
		{
			Key:         "library.debounce_ms",
			Value:       500,
			Description: "Quiet period before reacting to library changes, in milliseconds",
		},
		{
			Key:         "library.throttle_ms",
			Value:       200,
			Description: "Minimum interval between prefetch triggers, in milliseconds",
		},

		// Cache budgets
		{
			Key:         "cache.image_bytes",
			Value:       64 << 20,
			Description: "Byte budget for the full-resolution image cache",
		},
		{
			Key:         "cache.image_entries",
			Value:       64,
			Description: "Entry budget for the full-resolution image cache",
		},
		{
			Key:         "cache.document_bytes",
			Value:       32 << 20,
			Description: "Byte budget for the document cache",
		},
		{
			Key:         "cache.document_entries",
			Value:       256,
			Description: "Entry budget for the document cache",
		},
		{
			Key:         "cache.thumbnail_bytes",
			Value:       8 << 20,
			Description: "Byte budget for the thumbnail cache",
		},
		{
			Key:         "cache.thumbnail_entries",
			Value:       512,
			Description: "Entry budget for the thumbnail cache",
		},
	}
}

// SeedDefaults seeds default configuration entries into the store.
// This is idempotent - existing entries are not overwritten.
func SeedDefaults(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultEntries()
	seeded := 0
	skipped := 0

	for _, entry := range defaults {
		// Check if key already exists
		existing, err := store.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}

		if existing != nil {
			skipped++
			continue
		}

		// Create the entry
		if err := store.Set(ctx, entry.Key, entry.Value, entry.Description); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default config entries", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(ctx, key, def.Value, def.Description)
}
