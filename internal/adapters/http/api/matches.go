package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
)

// runResponse is a run plus its display headline.
type runResponse struct {
	model.Run
	Headline string `json:"headline"`
}

func newRunResponse(run model.Run) runResponse { //nolint:gocritic // hugeParam
	return runResponse{Run: run, Headline: run.Submission.Headline()}
}

// MatchHandler handles the match pipeline routes.
type MatchHandler struct {
	deps     Dependencies
	spoolDir string
	logger   logger.Logger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps Dependencies, spoolDir string, log logger.Logger) *MatchHandler {
	return &MatchHandler{deps: deps, spoolDir: spoolDir, logger: log}
}

// HandleSubmit handles POST /api/matches.
func (h *MatchHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBody())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Code: "file_too_large", Message: "Request body is too large"})
			return
		}
		writeError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sp, err := newSpool(h.spoolDir, h.logger)
	if err != nil {
		h.logger.Error(ctx, "spool unavailable", logger.Error(err))
		writeError(w, err)
		return
	}
	f, err := buildForm(ctx, r, sp, h.logger)
	if err != nil {
		sp.discard(ctx)
		writeError(w, err)
		return
	}
	sub, err := f.Submit(ctx)
	if err != nil {
		sp.discard(ctx)
		writeError(w, err)
		return
	}
	run, err := h.deps.Submit(ctx, sub)
	if err != nil {
		sp.discard(ctx)
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/matches/"+run.ID)
	writeJSON(w, http.StatusAccepted, newRunResponse(run))
}

// HandleGet handles GET /api/matches/{id}.
func (h *MatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// HandleVideo handles GET /api/matches/{id}/video.
func (h *MatchHandler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if run.Result == nil || run.Result.AnalyzedVideo.Path == "" {
		writeError(w, ErrNoVideo)
		return
	}
	video := run.Result.AnalyzedVideo
	if _, err := os.Stat(video.Path); err != nil {
		writeError(w, ErrNoVideo)
		return
	}
	if video.ContentType != "" {
		w.Header().Set("Content-Type", video.ContentType)
	}
	http.ServeFile(w, r, video.Path)
}

// HandleReanalyze handles POST /api/matches/{id}/reanalyze.
func (h *MatchHandler) HandleReanalyze(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Reanalyze(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newRunResponse(run))
}

// HandleConfirm handles POST /api/matches/{id}/confirm.
func (h *MatchHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// HandleDiscard handles DELETE /api/matches/{id}.
func (h *MatchHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	if _, err := h.deps.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
