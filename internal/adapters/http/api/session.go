package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/spinta/internal/domain/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User   model.User `json:"user"`
	Notice string     `json:"notice,omitempty"`
}

// SessionHandler handles login, session lookup and logout.
type SessionHandler struct {
	deps Dependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleLogin handles POST /api/login.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid login body", ErrBadRequest))
		return
	}
	res, err := h.deps.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: res.Session.User, Notice: res.Notice})
}

// HandleSession handles GET /api/session.
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok, err := h.deps.Session(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Message: "Not logged in"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: sess.User})
}

// HandleLogout handles DELETE /api/session.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
