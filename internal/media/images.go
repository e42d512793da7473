package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/snapgloss/snapgloss/internal/cache"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/home"
)

// Images serves stored document media through the byte caches: the primary
// (page 1) image rides the image cache under the document id, thumbnails
// ride the thumbnail cache. Later PDF pages are read straight from disk;
// caching them under the document id would break the coordinated
// per-document removal the cache manager provides.
type Images struct {
	home   *home.Dir
	caches *cache.Manager
	logger *slog.Logger
	maxDim int
}

// NewImages creates a cache-backed media reader.
func NewImages(h *home.Dir, caches *cache.Manager, logger *slog.Logger) *Images {
	if logger == nil {
		logger = slog.Default()
	}
	return &Images{
		home:   h,
		caches: caches,
		logger: logger.With("component", "media"),
		maxDim: DefaultThumbnailDim,
	}
}

// Primary returns the document's page-1 image, read-through the image cache.
func (im *Images) Primary(ctx context.Context, doc *document.Document) ([]byte, error) {
	if data, ok := im.caches.Image(doc.ID); ok {
		return data, nil
	}
	path, err := im.primaryPath(doc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read media for document %s: %w", doc.ID, err)
	}
	im.caches.StoreImage(doc.ID, data)
	return data, nil
}

// Page returns the image for a 1-indexed page. Page 1 goes through the
// image cache; later pages exist only for PDF documents and come straight
// from disk.
func (im *Images) Page(ctx context.Context, doc *document.Document, page int) ([]byte, error) {
	if page <= 0 {
		return nil, fmt.Errorf("document %s has no page %d", doc.ID, page)
	}
	if page == 1 {
		return im.Primary(ctx, doc)
	}
	if doc.MediaKind != document.MediaPDF {
		return nil, fmt.Errorf("document %s has no page %d", doc.ID, page)
	}
	data, err := os.ReadFile(im.home.PageImagePath(doc.ID, page))
	if err != nil {
		return nil, fmt.Errorf("read page %d of document %s: %w", page, doc.ID, err)
	}
	return data, nil
}

// Thumbnail returns the document's thumbnail, read-through the thumbnail
// cache; a miss renders it from the primary image (warming the image cache
// along the way).
func (im *Images) Thumbnail(ctx context.Context, doc *document.Document) ([]byte, error) {
	if data, ok := im.caches.Thumbnail(doc.ID); ok {
		return data, nil
	}
	data, err := im.Primary(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	thumb, err := Thumbnail(data, im.maxDim)
	if err != nil {
		return nil, fmt.Errorf("render thumbnail for document %s: %w", doc.ID, err)
	}
	im.caches.StoreThumbnail(doc.ID, thumb)
	return thumb, nil
}

// primaryPath resolves the on-disk location of the page-1 image.
func (im *Images) primaryPath(doc *document.Document) (string, error) {
	switch doc.MediaKind {
	case document.MediaPDF:
		return im.home.PageImagePath(doc.ID, 1), nil
	case document.MediaImage:
		if doc.MediaPath == "" {
			return "", fmt.Errorf("document %s has no stored media", doc.ID)
		}
		return filepath.Join(im.home.Path(), doc.MediaPath), nil
	default:
		return "", fmt.Errorf("document %s has no stored media", doc.ID)
	}
}
