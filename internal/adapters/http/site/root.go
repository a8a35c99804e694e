// Package site serves the landing page and the static artifacts directory.
package site

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// Error constants
var (
	ErrServe = errors.New("site serve failed")
)

//go:embed static/index.html
var indexHTML []byte

// Register attaches the landing page at / and, when dir exists, serves its
// files under /static/.
func Register(_ context.Context, r chi.Router, dir string) {
	if r == nil {
		panic("router is nil")
	}

	r.Get("/", NewRootHandler().HandleRoot)

	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}

// RootHandler handles root path requests
type RootHandler struct{}

// NewRootHandler creates a new root handler
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

// HandleRoot handles GET / requests.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}
