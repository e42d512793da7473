package cache

import (
	"log/slog"

	"github.com/snapgloss/snapgloss/internal/document"
)

// Default budgets per cache kind. Images dominate memory use, so they get
// the widest byte budget and the tightest entry budget.
const (
	DefaultImageBytes       = 64 << 20
	DefaultImageEntries     = 64
	DefaultDocumentBytes    = 32 << 20
	DefaultDocumentEntries  = 256
	DefaultThumbnailBytes   = 8 << 20
	DefaultThumbnailEntries = 512
)

// ManagerConfig configures the three caches the Manager composes.
type ManagerConfig struct {
	Images     Config
	Documents  Config
	Thumbnails Config
	Logger     *slog.Logger
}

// Manager owns the image, document and thumbnail caches, keyed by document
// id. It coordinates cross-cache removal and tiered eviction under memory
// pressure: images first, thumbnails only when critical, documents never.
type Manager struct {
	logger     *slog.Logger
	images     *Cache[string, []byte]
	documents  *Cache[string, *document.Document]
	thumbnails *Cache[string, []byte]
}

// NewManager creates a manager with the given budgets, falling back to the
// package defaults for any unset axis.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Images.MaxBytes <= 0 {
		cfg.Images.MaxBytes = DefaultImageBytes
	}
	if cfg.Images.MaxEntries <= 0 {
		cfg.Images.MaxEntries = DefaultImageEntries
	}
	if cfg.Documents.MaxBytes <= 0 {
		cfg.Documents.MaxBytes = DefaultDocumentBytes
	}
	if cfg.Documents.MaxEntries <= 0 {
		cfg.Documents.MaxEntries = DefaultDocumentEntries
	}
	if cfg.Thumbnails.MaxBytes <= 0 {
		cfg.Thumbnails.MaxBytes = DefaultThumbnailBytes
	}
	if cfg.Thumbnails.MaxEntries <= 0 {
		cfg.Thumbnails.MaxEntries = DefaultThumbnailEntries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		logger:     logger.With("component", "cache"),
		images:     New[string, []byte](cfg.Images),
		documents:  New[string, *document.Document](cfg.Documents),
		thumbnails: New[string, []byte](cfg.Thumbnails),
	}
}

// Image returns the cached full-resolution media for a document id.
func (m *Manager) Image(id string) ([]byte, bool) {
	return m.images.Get(id)
}

// StoreImage caches full-resolution media under a document id.
func (m *Manager) StoreImage(id string, data []byte) {
	m.images.Set(id, data, int64(len(data)))
}

// Thumbnail returns the cached thumbnail for a document id.
func (m *Manager) Thumbnail(id string) ([]byte, bool) {
	return m.thumbnails.Get(id)
}

// StoreThumbnail caches a rendered thumbnail under a document id.
func (m *Manager) StoreThumbnail(id string, data []byte) {
	m.thumbnails.Set(id, data, int64(len(data)))
}

// Document returns a copy of the cached document. The cached instance is
// never handed out directly, so callers can mutate their copy freely.
func (m *Manager) Document(id string) (*document.Document, bool) {
	doc, ok := m.documents.Get(id)
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// StoreDocument caches a copy of doc, costed by its estimated byte size.
func (m *Manager) StoreDocument(doc *document.Document) {
	if doc == nil || doc.ID == "" {
		return
	}
	clone := doc.Clone()
	m.documents.Set(clone.ID, clone, clone.ByteCost())
}

// RemoveDocument clears the id from all three caches.
func (m *Manager) RemoveDocument(id string) {
	m.images.Remove(id)
	m.documents.Remove(id)
	m.thumbnails.Remove(id)
}

// ApplyBudgets resizes all three caches, evicting whatever the new budgets
// no longer admit. Runtime settings changes land here.
func (m *Manager) ApplyBudgets(cfg ManagerConfig) {
	if cfg.Images.MaxBytes > 0 && cfg.Images.MaxEntries > 0 {
		m.images.Resize(cfg.Images)
	}
	if cfg.Documents.MaxBytes > 0 && cfg.Documents.MaxEntries > 0 {
		m.documents.Resize(cfg.Documents)
	}
	if cfg.Thumbnails.MaxBytes > 0 && cfg.Thumbnails.MaxEntries > 0 {
		m.thumbnails.Resize(cfg.Thumbnails)
	}
	m.logger.Info("cache budgets applied",
		"image_bytes", cfg.Images.MaxBytes,
		"document_bytes", cfg.Documents.MaxBytes,
		"thumbnail_bytes", cfg.Thumbnails.MaxBytes)
}

// Clear empties all three caches.
func (m *Manager) Clear() {
	m.images.Clear()
	m.documents.Clear()
	m.thumbnails.Clear()
}

// HandleMemoryPressure sheds cache weight in tiers. Images are always
// cleared (largest payloads, cheapest to refetch from disk); thumbnails go
// too when the pressure is critical. Documents stay resident: they back
// pagination and are costed far below the media caches.
func (m *Manager) HandleMemoryPressure(critical bool) {
	imageStats := m.images.Stats()
	m.images.Clear()

	freed := imageStats.Bytes
	cleared := "images"
	if critical {
		thumbStats := m.thumbnails.Stats()
		m.thumbnails.Clear()
		freed += thumbStats.Bytes
		cleared = "images+thumbnails"
	}

	m.logger.Warn("cleared caches under memory pressure",
		"critical", critical,
		"cleared", cleared,
		"freed_bytes", freed)
}

// ManagerStatus reports per-cache statistics.
type ManagerStatus struct {
	Images     Stats `json:"images"`
	Documents  Stats `json:"documents"`
	Thumbnails Stats `json:"thumbnails"`
}

// Status returns a snapshot across all three caches.
func (m *Manager) Status() ManagerStatus {
	return ManagerStatus{
		Images:     m.images.Stats(),
		Documents:  m.documents.Stats(),
		Thumbnails: m.thumbnails.Stats(),
	}
}
