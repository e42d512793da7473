package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/store"
	"github.com/snapgloss/snapgloss/internal/svcctx"
)

// ListDocumentsResponse is the response for listing documents.
type ListDocumentsResponse struct {
	Documents []document.Metadata `json:"documents"`
	Total     int                 `json:"total"`
	Offset    int                 `json:"offset"`
	Limit     int                 `json:"limit"`
}

// ListDocumentsEndpoint handles GET /api/documents.
type ListDocumentsEndpoint struct{}

var _ api.Endpoint = (*ListDocumentsEndpoint)(nil)

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List documents
//	@Description	List document metadata, newest first
//	@Tags			documents
//	@Produce		json
//	@Param			offset	query		int	false	"Pagination offset"
//	@Param			limit	query		int	false	"Page size (default 20)"
//	@Success		200		{object}	ListDocumentsResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/documents [get]
func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "document store not initialized")
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	if offset < 0 || limit <= 0 {
		writeError(w, http.StatusBadRequest, "offset must be >= 0 and limit > 0")
		return
	}

	metas, err := st.FetchPage(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := st.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListDocumentsResponse{
		Documents: metas,
		Total:     total,
		Offset:    offset,
		Limit:     limit,
	})
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp ListDocumentsResponse
			path := fmt.Sprintf("/api/documents?offset=%d&limit=%d", offset, limit)
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	return cmd
}

// GetDocumentEndpoint handles GET /api/documents/{id}.
type GetDocumentEndpoint struct{}

var _ api.Endpoint = (*GetDocumentEndpoint)(nil)

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a document
//	@Description	Get a full document including entries and annotations
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	document.Document
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/documents/{id} [get]
func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := fetchDocument(r, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a document by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var doc document.Document
			if err := client.Get(ctx, "/api/documents/"+args[0], &doc); err != nil {
				return err
			}
			return api.Output(doc)
		},
	}
}

// DeleteDocumentEndpoint handles DELETE /api/documents/{id}.
type DeleteDocumentEndpoint struct{}

var _ api.Endpoint = (*DeleteDocumentEndpoint)(nil)

func (e *DeleteDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/documents/{id}", e.handler
}

func (e *DeleteDocumentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Delete a document
//	@Description	Delete a document, its cached entries and its media files
//	@Tags			documents
//	@Param			id	path	string	true	"Document ID"
//	@Success		204	"No Content"
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/documents/{id} [delete]
func (e *DeleteDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "document store not initialized")
		return
	}

	if err := st.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The record is gone; cache and media cleanup are best-effort.
	if caches := svcctx.CachesFrom(r.Context()); caches != nil {
		caches.RemoveDocument(id)
	}
	if homeDir := svcctx.HomeFrom(r.Context()); homeDir != nil {
		if err := homeDir.RemoveMediaDir(id); err != nil {
			if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
				logger.Warn("failed to remove media dir", "document", id, "error", err)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			if err := client.Delete(ctx, "/api/documents/"+args[0]); err != nil {
				return err
			}
			fmt.Println("Document deleted successfully")
			return nil
		},
	}
}

// UpdateFlagsRequest is the request body for updating document flags.
// Omitted fields are left unchanged.
type UpdateFlagsRequest struct {
	Saved  *bool `json:"saved,omitempty"`
	Pinned *bool `json:"pinned,omitempty"`
}

// UpdateFlagsEndpoint handles PATCH /api/documents/{id}/flags.
type UpdateFlagsEndpoint struct{}

var _ api.Endpoint = (*UpdateFlagsEndpoint)(nil)

func (e *UpdateFlagsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/documents/{id}/flags", e.handler
}

func (e *UpdateFlagsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update document flags
//	@Description	Set or clear the saved and pinned flags
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Document ID"
//	@Param			body	body		UpdateFlagsRequest	true	"Flags to change"
//	@Success		200		{object}	document.Metadata
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/documents/{id}/flags [patch]
func (e *UpdateFlagsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	var req UpdateFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Saved == nil && req.Pinned == nil {
		writeError(w, http.StatusBadRequest, "at least one of saved or pinned is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "document store not initialized")
		return
	}

	if err := st.SetFlags(r.Context(), id, req.Saved, req.Pinned); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	doc, err := st.Fetch(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Keep the cached copy in step with the new flags.
	if caches := svcctx.CachesFrom(r.Context()); caches != nil {
		caches.StoreDocument(doc)
	}

	writeJSON(w, http.StatusOK, doc.Meta())
}

func (e *UpdateFlagsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var saved, pinned string
	cmd := &cobra.Command{
		Use:   "flag <id>",
		Short: "Update a document's saved/pinned flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req := UpdateFlagsRequest{}
			if saved != "" {
				v, err := strconv.ParseBool(saved)
				if err != nil {
					return fmt.Errorf("invalid --saved value %q: %w", saved, err)
				}
				req.Saved = &v
			}
			if pinned != "" {
				v, err := strconv.ParseBool(pinned)
				if err != nil {
					return fmt.Errorf("invalid --pinned value %q: %w", pinned, err)
				}
				req.Pinned = &v
			}
			if req.Saved == nil && req.Pinned == nil {
				return fmt.Errorf("at least one of --saved or --pinned is required")
			}

			client := api.NewClient(getServerURL())
			var meta document.Metadata
			if err := client.Patch(ctx, "/api/documents/"+args[0]+"/flags", req, &meta); err != nil {
				return err
			}
			return api.Output(meta)
		},
	}
	cmd.Flags().StringVar(&saved, "saved", "", "Set the saved flag (true/false)")
	cmd.Flags().StringVar(&pinned, "pinned", "", "Set the pinned flag (true/false)")
	return cmd
}

// fetchDocument resolves a document through the library's read-through cache
// when available, falling back to the store.
func fetchDocument(r *http.Request, id string) (*document.Document, error) {
	if lib := svcctx.LibraryFrom(r.Context()); lib != nil {
		return lib.Document(r.Context(), id)
	}
	if st := svcctx.StoreFrom(r.Context()); st != nil {
		return st.Fetch(r.Context(), id)
	}
	return nil, errors.New("document store not initialized")
}

// queryInt parses an integer query parameter, returning fallback when absent.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
