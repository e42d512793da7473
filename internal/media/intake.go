// Package media handles upload intake: content-type detection, PDF page
// rendering and thumbnail generation. Blobs live under the home directory
// and documents reference them by relative path.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/home"
)

// ErrUnsupportedMedia is returned for uploads that are not PNG, JPEG or PDF.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Detect sniffs the upload's content type. Returns the media kind and the
// canonical file extension (with dot).
func Detect(data []byte) (document.MediaKind, string, error) {
	switch typ := http.DetectContentType(data); typ {
	case "image/png":
		return document.MediaImage, ".png", nil
	case "image/jpeg":
		return document.MediaImage, ".jpg", nil
	case "application/pdf":
		return document.MediaPDF, ".pdf", nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, typ)
	}
}

// Stored describes an upload after intake. PagePaths are absolute paths to
// the recognition inputs, one per page, in page order.
type Stored struct {
	Kind         document.MediaKind
	OriginalPath string   // absolute path to the stored original
	MediaPath    string   // home-relative path, persisted on the document
	PagePaths    []string // page images to recognize, in order
}

// Intake writes uploads into the home directory's media layout.
type Intake struct {
	home   *home.Dir
	logger *slog.Logger
}

// NewIntake creates an intake rooted at the given home directory.
func NewIntake(h *home.Dir, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{home: h, logger: logger.With("component", "media")}
}

// Store persists an upload for the given document and prepares its page
// images. Images are stored as-is; PDFs additionally get each page rendered
// to a PNG. On failure the document's media directory is removed.
func (in *Intake) Store(ctx context.Context, documentID string, data []byte) (*Stored, error) {
	kind, ext, err := Detect(data)
	if err != nil {
		return nil, err
	}

	if err := in.home.EnsureMediaDir(documentID); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	originalPath := in.home.OriginalPath(documentID, ext)
	if err := os.WriteFile(originalPath, data, 0o644); err != nil {
		in.cleanup(documentID)
		return nil, fmt.Errorf("failed to write original: %w", err)
	}

	stored := &Stored{
		Kind:         kind,
		OriginalPath: originalPath,
		MediaPath:    filepath.Join(home.MediaDirName, documentID, "original"+ext),
	}

	switch kind {
	case document.MediaImage:
		// The upload is its own single page.
		stored.PagePaths = []string{originalPath}
	case document.MediaPDF:
		pages, err := in.renderPDF(ctx, documentID, originalPath)
		if err != nil {
			in.cleanup(documentID)
			return nil, err
		}
		stored.PagePaths = pages
	}

	in.logger.Debug("stored upload",
		"document_id", documentID,
		"kind", kind,
		"pages", len(stored.PagePaths),
		"bytes", len(data))
	return stored, nil
}

// renderPDF renders every page of the stored PDF into the document's media
// directory and returns the page image paths in order.
func (in *Intake) renderPDF(ctx context.Context, documentID, pdfPath string) ([]string, error) {
	pageCount, err := CountPDFPages(pdfPath)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	outDir := in.home.MediaDir(documentID)
	pages := make([]int, pageCount)
	for i := range pages {
		pages[i] = i + 1
	}

	err = async.ForEach(ctx, pages, runtime.NumCPU(), func(ctx context.Context, _ int, page int) error {
		return renderPage(ctx, pdfPath, outDir, page)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf pages: %w", err)
	}

	return in.home.PageImagePaths(documentID, pageCount), nil
}

func (in *Intake) cleanup(documentID string) {
	if err := in.home.RemoveMediaDir(documentID); err != nil {
		in.logger.Warn("failed to clean up media directory",
			"document_id", documentID,
			"error", err)
	}
}
