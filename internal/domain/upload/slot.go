package upload

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// Slot holds the current selection for one form field. Explicit selection
// and drag-and-drop share the same validation path.
type Slot struct {
	name   string
	policy Policy
	log    logger.Logger

	mu      sync.RWMutex
	current *model.Attachment
}

// NewSlot creates an empty slot.
func NewSlot(name string, policy Policy, log logger.Logger) *Slot {
	if log == nil {
		log = logger.Nop()
	}
	return &Slot{name: name, policy: policy, log: log}
}

// Name returns the form field the slot belongs to.
func (s *Slot) Name() string { return s.name }

// Policy returns the slot's accept policy.
func (s *Slot) Policy() Policy { return s.policy }

// Select validates a and, on success, replaces the current selection.
// On rejection the previous selection is kept.
func (s *Slot) Select(ctx context.Context, a model.Attachment) error {
	return s.accept(ctx, a)
}

// Drop handles a drag-and-drop gesture: the first dropped file is used,
// an empty drop is ignored.
func (s *Slot) Drop(ctx context.Context, files []model.Attachment) error {
	if len(files) == 0 {
		return nil
	}
	return s.accept(ctx, files[0])
}

func (s *Slot) accept(ctx context.Context, a model.Attachment) error {
	accepted, err := Validate(a, s.policy)
	if err != nil {
		if errors.Is(err, ErrNoFile) {
			return nil
		}
		metrics.RecordUploadRejected(s.name, "too_large")
		s.log.Warn(ctx, "attachment rejected",
			logger.String("slot", s.name),
			logger.String("file", a.Name),
			logger.Int64("size", a.Size),
			logger.Error(err),
		)
		return err
	}
	if !s.policy.Matches(accepted) {
		metrics.RecordUploadTypeMismatch(s.name)
		s.log.Warn(ctx, "attachment type outside accept list",
			logger.String("slot", s.name),
			logger.String("file", accepted.Name),
			logger.String("content_type", accepted.ContentType),
		)
	}

	s.mu.Lock()
	s.current = &accepted
	s.mu.Unlock()
	metrics.RecordUploadAccepted(s.name)
	return nil
}

// Current returns the selected file, if any.
func (s *Slot) Current() (model.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Attachment{}, false
	}
	return *s.current, true
}

// Clear drops the selection.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
