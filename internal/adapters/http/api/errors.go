package api

import (
	"errors"
	"net/http"

	"github.com/okian/spinta/internal/adapters/backend"
	service "github.com/okian/spinta/internal/app"
	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/domain/confirm"
	"github.com/okian/spinta/internal/domain/upload"
	"github.com/okian/spinta/internal/domain/validation"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNoVideo    = errors.New("analyzed video not available")
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// classify maps a pipeline error to a status code and response body.
func classify(err error) (int, errorResponse) {
	var (
		verrs validation.Errors
		lerr  *auth.LoginError
		serr  *backend.StatusError
	)
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, errorResponse{Code: "validation_failed", Message: "Please fix the highlighted fields", Fields: verrs}
	case errors.As(err, &lerr):
		return http.StatusUnauthorized, errorResponse{Code: "authentication_failed", Message: lerr.Message}
	case errors.Is(err, confirm.ErrAuthRequired):
		return http.StatusUnauthorized, errorResponse{Code: "auth_required", Message: "Please log in to confirm the analysis"}
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Code: "file_too_large", Message: err.Error()}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, errorResponse{Code: "not_found", Message: "Match run not found"}
	case errors.Is(err, ErrNoVideo):
		return http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()}
	case errors.Is(err, service.ErrInFlight):
		return http.StatusConflict, errorResponse{Code: "in_flight", Message: "Another request for this match is still running"}
	case errors.Is(err, service.ErrStage):
		return http.StatusConflict, errorResponse{Code: "invalid_stage", Message: err.Error()}
	case errors.Is(err, service.ErrBusy):
		return http.StatusTooManyRequests, errorResponse{Code: "backpressure", Message: "Analysis queue is full, try again shortly"}
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, errorResponse{Code: "unavailable", Message: err.Error()}
	case errors.As(err, &serr):
		return http.StatusBadGateway, errorResponse{Code: "backend_error", Message: serr.Message}
	case errors.Is(err, backend.ErrServer):
		return http.StatusBadGateway, errorResponse{Code: "backend_error", Message: "Backend is unreachable"}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()}
	}
	return http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: http.StatusText(http.StatusInternalServerError)}
}
