package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/async"
	"github.com/snapgloss/snapgloss/internal/document"
	"github.com/snapgloss/snapgloss/internal/ingest"
	"github.com/snapgloss/snapgloss/internal/media"
	"github.com/snapgloss/snapgloss/internal/store"
	"github.com/snapgloss/snapgloss/internal/svcctx"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// uploads spill to temp files.
const maxUploadMemory = 100 << 20 // 100MB

// IngestRequest is the request body for ingesting a server-local file.
type IngestRequest struct {
	Path   string `json:"path"`
	Script string `json:"script,omitempty"`
	Wait   bool   `json:"wait,omitempty"`
}

// IngestResponse is the response for an accepted ingest.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Pages      int    `json:"pages"`
	Status     string `json:"status"`

	// Document is populated only for wait=true requests.
	Document *document.Document `json:"document,omitempty"`
}

// ingestOutcome carries the result of a background ingest to a waiting
// handler.
type ingestOutcome struct {
	doc *document.Document
	err error
}

// startIngest stores the upload under the document's media directory and
// submits the recognition/annotation run to the coordinator. The returned
// channel receives exactly one outcome.
//
// The run is detached from the request context so it survives the client
// disconnecting; the coordinator still cancels it on shutdown.
func startIngest(r *http.Request, data []byte, script document.ScriptVariant) (string, int, <-chan ingestOutcome, error) {
	intake := svcctx.IntakeFrom(r.Context())
	orch := svcctx.IngestFrom(r.Context())
	coord := svcctx.CoordinatorFrom(r.Context())
	if intake == nil || orch == nil || coord == nil {
		return "", 0, nil, errors.New("ingest services not initialized")
	}
	homeDir := svcctx.HomeFrom(r.Context())
	caches := svcctx.CachesFrom(r.Context())

	docID := uuid.New().String()

	stored, err := intake.Store(r.Context(), docID, data)
	if err != nil {
		return "", 0, nil, err
	}

	images := make([][]byte, len(stored.PagePaths))
	for i, p := range stored.PagePaths {
		img, err := os.ReadFile(p)
		if err != nil {
			if homeDir != nil {
				_ = homeDir.RemoveMediaDir(docID)
			}
			return "", 0, nil, fmt.Errorf("failed to read page image: %w", err)
		}
		images[i] = img
	}

	req := ingest.Request{
		DocumentID: docID,
		Images:     images,
		Script:     script,
		MediaPath:  stored.MediaPath,
		MediaKind:  stored.Kind,
	}

	// dispatched flips once the initial document is persisted; it is read
	// on the same goroutine that Run executes the callback on.
	dispatched := false
	req.OnDispatched = func(*document.Document) { dispatched = true }

	outcome := make(chan ingestOutcome, 1)
	bg := context.WithoutCancel(r.Context())
	if _, err := coord.Submit(bg, docID, async.PriorityNormal, func(ctx context.Context) error {
		doc, err := orch.Run(ctx, req)
		if err != nil && !dispatched {
			// No record exists for this document; drop its media too.
			if homeDir != nil {
				_ = homeDir.RemoveMediaDir(docID)
			}
		}
		if err == nil && caches != nil {
			caches.StoreDocument(doc)
		}
		outcome <- ingestOutcome{doc: doc, err: err}
		return err
	}); err != nil {
		if homeDir != nil {
			_ = homeDir.RemoveMediaDir(docID)
		}
		return "", 0, nil, err
	}

	return docID, len(images), outcome, nil
}

// respondIngest writes the accepted-or-completed response for an ingest.
func respondIngest(w http.ResponseWriter, r *http.Request, docID string, pages int, wait bool, outcome <-chan ingestOutcome) {
	if !wait {
		writeJSON(w, http.StatusAccepted, IngestResponse{
			DocumentID: docID,
			Pages:      pages,
			Status:     "processing",
		})
		return
	}

	select {
	case res := <-outcome:
		if res.err != nil {
			writeError(w, ingestErrorStatus(res.err), res.err.Error())
			return
		}
		writeJSON(w, http.StatusOK, IngestResponse{
			DocumentID: docID,
			Pages:      pages,
			Status:     "completed",
			Document:   res.doc,
		})
	case <-r.Context().Done():
		// Client gave up; the run continues in the background.
	}
}

// ingestErrorStatus maps orchestrator failures onto HTTP status codes.
func ingestErrorStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrNoProcessableContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, async.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ingest.ErrRecognitionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IngestEndpoint handles POST /api/documents/ingest for server-local files.
type IngestEndpoint struct{}

var _ api.Endpoint = (*IngestEndpoint)(nil)

func (e *IngestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/ingest", e.handler
}

func (e *IngestEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Ingest a local file
//	@Description	Ingest a server-local PNG, JPEG or PDF as a new document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		IngestRequest	true	"Ingest request"
//	@Success		202		{object}	IngestResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/documents/ingest [post]
func (e *IngestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s: %v", req.Path, err))
		return
	}

	docID, pages, outcome, err := startIngest(r, data, document.ParseScriptVariant(req.Script))
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedMedia) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondIngest(w, r, docID, pages, req.Wait, outcome)
}

func (e *IngestEndpoint) Command(getServerURL func() string) *cobra.Command {
	var script string
	var wait bool
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a local screenshot or PDF",
		Long: `Ingest a PNG, JPEG or PDF file as a new document.

The file path is read by the server, so it must be visible from the server
process. Recognition and annotation run in the background; use
'snapgloss api documents get <id>' to watch entries fill in, or pass --wait
to block until the document is fully annotated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("invalid path %s: %w", args[0], err)
			}

			client := api.NewClient(getServerURL())
			var resp IngestResponse
			if err := client.Post(ctx, "/api/documents/ingest", IngestRequest{
				Path:   abs,
				Script: script,
				Wait:   wait,
			}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "Script variant (simplified or traditional)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for recognition and annotation to finish")
	return cmd
}

// UploadEndpoint handles POST /api/documents/upload with a multipart file.
type UploadEndpoint struct{}

var _ api.Endpoint = (*UploadEndpoint)(nil)

func (e *UploadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/upload", e.handler
}

func (e *UploadEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload and ingest a file
//	@Description	Upload a PNG, JPEG or PDF to ingest as a new document
//	@Tags			documents
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"Screenshot or PDF"
//	@Param			script	formData	string	false	"Script variant (simplified or traditional)"
//	@Param			wait	formData	bool	false	"Wait for processing to finish"
//	@Success		202		{object}	IngestResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/documents/upload [post]
func (e *UploadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	script := document.ParseScriptVariant(r.FormValue("script"))
	wait := r.FormValue("wait") == "true"

	docID, pages, outcome, err := startIngest(r, data, script)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedMedia) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondIngest(w, r, docID, pages, wait, outcome)
}

func (e *UploadEndpoint) Command(getServerURL func() string) *cobra.Command {
	var script string
	var wait bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a screenshot or PDF to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			body, contentType, err := multipartUpload(filepath.Base(args[0]), data, script, wait)
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				getServerURL()+"/api/documents/upload", body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", contentType)

			httpResp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer httpResp.Body.Close()

			raw, err := io.ReadAll(httpResp.Body)
			if err != nil {
				return err
			}
			if httpResp.StatusCode >= 400 {
				var errResp api.ErrorResponse
				if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
					return fmt.Errorf("server error (%d): %s", httpResp.StatusCode, errResp.Error)
				}
				return fmt.Errorf("server error (%d): %s", httpResp.StatusCode, string(raw))
			}

			var resp IngestResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "Script variant (simplified or traditional)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for recognition and annotation to finish")
	return cmd
}

// multipartUpload builds a multipart body for the upload endpoint.
func multipartUpload(filename string, data []byte, script string, wait bool) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if script != "" {
		if err := mw.WriteField("script", script); err != nil {
			return nil, "", err
		}
	}
	if wait {
		if err := mw.WriteField("wait", "true"); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// ReannotateEndpoint handles POST /api/documents/{id}/reannotate.
type ReannotateEndpoint struct{}

var _ api.Endpoint = (*ReannotateEndpoint)(nil)

func (e *ReannotateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/{id}/reannotate", e.handler
}

func (e *ReannotateEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Reannotate a document
//	@Description	Re-run annotation over every Chinese entry of a stored document
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	document.Document
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Failure		504	{object}	ErrorResponse
//	@Router			/api/documents/{id}/reannotate [post]
func (e *ReannotateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	orch := svcctx.IngestFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest orchestrator not initialized")
		return
	}

	doc, err := orch.Reannotate(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, async.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if caches := svcctx.CachesFrom(r.Context()); caches != nil {
		caches.StoreDocument(doc)
	}

	writeJSON(w, http.StatusOK, doc)
}

func (e *ReannotateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reannotate <id>",
		Short: "Re-run annotation over a document's Chinese entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var doc document.Document
			if err := client.Post(ctx, "/api/documents/"+args[0]+"/reannotate", nil, &doc); err != nil {
				return err
			}
			return api.Output(doc)
		},
	}
}
