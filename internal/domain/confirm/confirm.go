// Package confirm sends an accepted analysis to the backend.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// ErrAuthRequired is returned when no session token is available. No
// request is made in that case.
var ErrAuthRequired = errors.New("authentication required")

// DefaultNotice is shown when the receipt carries no message.
const DefaultNotice = "Match analysis confirmed successfully!"

// Backend posts the encoded confirmation.
type Backend interface {
	ConfirmMatch(ctx context.Context, header http.Header, contentType string, body []byte) (json.RawMessage, error)
}

// HeaderFunc returns the session headers; Authorization is absent when
// logged out.
type HeaderFunc func(ctx context.Context) http.Header

// Submitter confirms analyses.
type Submitter struct {
	backend Backend
	headers HeaderFunc
	log     logger.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(b Backend, headers HeaderFunc, log logger.Logger) *Submitter {
	if log == nil {
		log = logger.Nop()
	}
	return &Submitter{backend: b, headers: headers, log: log}
}

// Confirm posts the submission and its analysis. It does not retry.
func (s *Submitter) Confirm(ctx context.Context, sub model.MatchSubmission, res model.AnalysisResult) (model.Receipt, error) {
	var header http.Header
	if s.headers != nil {
		header = s.headers(ctx)
	}
	if header.Get("Authorization") == "" {
		metrics.RecordConfirmation("unauthenticated")
		return model.Receipt{}, ErrAuthRequired
	}

	fields, err := BuildFields(sub, res)
	if err != nil {
		return model.Receipt{}, err
	}
	contentType, body, err := fields.Encode()
	if err != nil {
		return model.Receipt{}, fmt.Errorf("encode confirmation: %w", err)
	}

	raw, err := s.backend.ConfirmMatch(ctx, header, contentType, body)
	if err != nil {
		metrics.RecordConfirmation("failure")
		s.log.Error(ctx, "confirmation failed", logger.String("submission_id", sub.ID), logger.Error(err))
		return model.Receipt{}, fmt.Errorf("confirm match: %w", err)
	}
	metrics.RecordConfirmation("success")
	s.log.Info(ctx, "match confirmed",
		logger.String("submission_id", sub.ID),
		logger.Int("events", len(res.Events)),
	)
	return model.Receipt{Body: raw}, nil
}

// Notice is the user-facing text for a receipt.
func Notice(r model.Receipt) string {
	if m := r.Message(); m != "" {
		return m
	}
	return DefaultNotice
}
