package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/store"
	"github.com/snapgloss/snapgloss/internal/svcctx"
)

// serveImage writes image bytes with immutable caching headers. Media for a
// document never changes after ingest, so clients may cache aggressively.
func serveImage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}

// writeImageError maps media read failures onto HTTP status codes.
func writeImageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "image not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// DocumentImageEndpoint handles GET /api/documents/{id}/image.
type DocumentImageEndpoint struct{}

var _ api.Endpoint = (*DocumentImageEndpoint)(nil)

func (e *DocumentImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/image", e.handler
}

func (e *DocumentImageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get document image
//	@Description	Get the primary (page 1) image of a document
//	@Tags			media
//	@Produce		image/png
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/documents/{id}/image [get]
func (e *DocumentImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	images := svcctx.ImagesFrom(r.Context())
	if images == nil {
		writeError(w, http.StatusServiceUnavailable, "media reader not initialized")
		return
	}

	doc, err := fetchDocument(r, r.PathValue("id"))
	if err != nil {
		writeImageError(w, err)
		return
	}

	data, err := images.Primary(r.Context(), doc)
	if err != nil {
		writeImageError(w, err)
		return
	}
	serveImage(w, data)
}

func (e *DocumentImageEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// PageImageEndpoint handles GET /api/documents/{id}/pages/{page}/image.
type PageImageEndpoint struct{}

var _ api.Endpoint = (*PageImageEndpoint)(nil)

func (e *PageImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/pages/{page}/image", e.handler
}

func (e *PageImageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get page image
//	@Description	Get the image for a specific page of a PDF document
//	@Tags			media
//	@Produce		image/png
//	@Param			id		path		string	true	"Document ID"
//	@Param			page	path		int		true	"Page number (1-indexed)"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/documents/{id}/pages/{page}/image [get]
func (e *PageImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}

	images := svcctx.ImagesFrom(r.Context())
	if images == nil {
		writeError(w, http.StatusServiceUnavailable, "media reader not initialized")
		return
	}

	doc, err := fetchDocument(r, r.PathValue("id"))
	if err != nil {
		writeImageError(w, err)
		return
	}

	data, err := images.Page(r.Context(), doc, page)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("page %d not found", page))
			return
		}
		writeImageError(w, err)
		return
	}
	serveImage(w, data)
}

func (e *PageImageEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// ThumbnailEndpoint handles GET /api/documents/{id}/thumbnail.
type ThumbnailEndpoint struct{}

var _ api.Endpoint = (*ThumbnailEndpoint)(nil)

func (e *ThumbnailEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/thumbnail", e.handler
}

func (e *ThumbnailEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get document thumbnail
//	@Description	Get a scaled-down preview of the document's primary image
//	@Tags			media
//	@Produce		image/png
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/documents/{id}/thumbnail [get]
func (e *ThumbnailEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	images := svcctx.ImagesFrom(r.Context())
	if images == nil {
		writeError(w, http.StatusServiceUnavailable, "media reader not initialized")
		return
	}

	doc, err := fetchDocument(r, r.PathValue("id"))
	if err != nil {
		writeImageError(w, err)
		return
	}

	data, err := images.Thumbnail(r.Context(), doc)
	if err != nil {
		writeImageError(w, err)
		return
	}
	serveImage(w, data)
}

func (e *ThumbnailEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
