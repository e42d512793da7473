package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/library"
	"github.com/snapgloss/snapgloss/internal/svcctx"
)

// The library endpoints drive the server's paginated metadata window. Load
// failures do not surface as HTTP errors: the loader parks in its error
// state and the snapshot carries the message, so clients render and retry
// the same way they would any other state.

// LibraryEndpoint handles GET /api/library.
type LibraryEndpoint struct{}

var _ api.Endpoint = (*LibraryEndpoint)(nil)

func (e *LibraryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/library", e.handler
}

func (e *LibraryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get the library window
//	@Description	Get the loader state and currently loaded document metadata
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	library.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/library [get]
func (e *LibraryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library loader not initialized")
		return
	}
	writeJSON(w, http.StatusOK, lib.Snapshot())
}

func (e *LibraryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the loaded library window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var snap library.Snapshot
			if err := client.Get(ctx, "/api/library", &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}

// LibraryLoadEndpoint handles POST /api/library/load.
type LibraryLoadEndpoint struct{}

var _ api.Endpoint = (*LibraryLoadEndpoint)(nil)

func (e *LibraryLoadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/library/load", e.handler
}

func (e *LibraryLoadEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Load the first page
//	@Description	Reset the library window and load the first page of metadata
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	library.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/library/load [post]
func (e *LibraryLoadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library loader not initialized")
		return
	}
	_ = lib.LoadInitial(r.Context())
	writeJSON(w, http.StatusOK, lib.Snapshot())
}

func (e *LibraryLoadEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the first page of the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var snap library.Snapshot
			if err := client.Post(ctx, "/api/library/load", nil, &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}

// LibraryMoreEndpoint handles POST /api/library/more.
type LibraryMoreEndpoint struct{}

var _ api.Endpoint = (*LibraryMoreEndpoint)(nil)

func (e *LibraryMoreEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/library/more", e.handler
}

func (e *LibraryMoreEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Load the next page
//	@Description	Extend the library window by one page; a no-op while loading or completed
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	library.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/library/more [post]
func (e *LibraryMoreEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library loader not initialized")
		return
	}
	_ = lib.LoadMore(r.Context())
	writeJSON(w, http.StatusOK, lib.Snapshot())
}

func (e *LibraryMoreEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "more",
		Short: "Load the next page of the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var snap library.Snapshot
			if err := client.Post(ctx, "/api/library/more", nil, &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}

// LibraryRetryEndpoint handles POST /api/library/retry.
type LibraryRetryEndpoint struct{}

var _ api.Endpoint = (*LibraryRetryEndpoint)(nil)

func (e *LibraryRetryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/library/retry", e.handler
}

func (e *LibraryRetryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Retry a failed load
//	@Description	Retry the failed page load; a no-op unless the loader is in the error state
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	library.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/library/retry [post]
func (e *LibraryRetryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library loader not initialized")
		return
	}
	_ = lib.Retry(r.Context())
	writeJSON(w, http.StatusOK, lib.Snapshot())
}

func (e *LibraryRetryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed library load",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var snap library.Snapshot
			if err := client.Post(ctx, "/api/library/retry", nil, &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}

// LibrarySeenRequest reports which window index a client displayed.
type LibrarySeenRequest struct {
	Index int `json:"index"`
}

// LibrarySeenEndpoint handles POST /api/library/seen.
type LibrarySeenEndpoint struct{}

var _ api.Endpoint = (*LibrarySeenEndpoint)(nil)

func (e *LibrarySeenEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/library/seen", e.handler
}

func (e *LibrarySeenEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Report a displayed item
//	@Description	Report the displayed window index so the loader can prefetch near the tail
//	@Tags			library
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LibrarySeenRequest	true	"Displayed index"
//	@Success		200		{object}	library.Snapshot
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/library/seen [post]
func (e *LibrarySeenEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req LibrarySeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Index < 0 {
		writeError(w, http.StatusBadRequest, "index must be >= 0")
		return
	}

	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library loader not initialized")
		return
	}
	lib.NoteDisplayed(req.Index)
	writeJSON(w, http.StatusOK, lib.Snapshot())
}

func (e *LibrarySeenEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
