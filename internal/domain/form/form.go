// Package form holds the in-progress match form and freezes it into a
// MatchSubmission once every rule passes.
package form

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/internal/domain/upload"
	"github.com/okian/spinta/internal/domain/validation"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// Field names, as reported in validation errors.
const (
	FieldOpponentName = "opponentName"
	FieldOpponentLogo = "opponentLogo"
	FieldMatchDate    = "matchDate"
	FieldMatchType    = "matchType"
	FieldHomeLineup   = "homeLineup"
	FieldAwayLineup   = "awayLineup"
	FieldHomeScore    = "homeScore"
	FieldAwayScore    = "awayScore"
	FieldMatchVideo   = "matchVideo"
)

// DateLayout is the match date format accepted from text input.
const DateLayout = "2006-01-02"

// ErrValidation matches any failed Submit.
var ErrValidation = validation.ErrValidation

// draft mirrors the form schema for the validator.
type draft struct {
	OpponentName string            `json:"opponentName" validate:"required,max=100"`
	OpponentLogo *model.Attachment `json:"opponentLogo" validate:"omitempty"`
	MatchDate    *time.Time        `json:"matchDate" validate:"required"`
	MatchType    string            `json:"matchType" validate:"required,oneof=home away"`
	HomeLineup   *model.Attachment `json:"homeLineup" validate:"omitempty"`
	AwayLineup   *model.Attachment `json:"awayLineup" validate:"omitempty"`
	HomeScore    string            `json:"homeScore" validate:"omitempty,digits"`
	AwayScore    string            `json:"awayScore" validate:"omitempty,digits"`
	MatchVideo   *model.Attachment `json:"matchVideo" validate:"required"`
}

var messages = map[string]map[string]string{
	FieldOpponentName: {"required": "Opponent name is required", "max": "Opponent name must be at most 100 characters"},
	FieldMatchDate:    {"required": "Match date is required", "format": "Invalid date"},
	FieldMatchType:    {"required": "Match type is required", "oneof": "Match type must be home or away"},
	FieldHomeScore:    {"digits": "Must be a number"},
	FieldAwayScore:    {"digits": "Must be a number"},
	FieldMatchVideo:   {"required": "Match video is required"},
}

func message(field, tag string) string {
	if m, ok := messages[field][tag]; ok {
		return m
	}
	return "Invalid value"
}

var validate = validation.New()

// Form is the controlled state of the match form. Field setters are
// independent: changing one never resets another.
type Form struct {
	mu sync.Mutex

	opponentName string
	matchDate    *time.Time
	badDate      bool
	matchType    string
	homeScore    string
	awayScore    string

	// Attachment slots.
	OpponentLogo *upload.Slot
	HomeLineup   *upload.Slot
	AwayLineup   *upload.Slot
	MatchVideo   *upload.Slot

	// rejected remembers the last rejection per slot until the slot
	// accepts a file again. It is only reported while the slot is empty.
	rejected map[string]string

	log logger.Logger
	now func() time.Time
}

// Option configures a Form.
type Option func(*Form)

// WithLogger sets the logger used by the form and its slots.
func WithLogger(l logger.Logger) Option {
	return func(f *Form) {
		if l != nil {
			f.log = l
		}
	}
}

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Form) {
		if now != nil {
			f.now = now
		}
	}
}

// New creates an empty form with the standard slot policies.
func New(opts ...Option) *Form {
	f := &Form{
		rejected: make(map[string]string),
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.OpponentLogo = upload.NewSlot(FieldOpponentLogo, upload.LogoPolicy, f.log)
	f.HomeLineup = upload.NewSlot(FieldHomeLineup, upload.LineupPolicy, f.log)
	f.AwayLineup = upload.NewSlot(FieldAwayLineup, upload.LineupPolicy, f.log)
	f.MatchVideo = upload.NewSlot(FieldMatchVideo, upload.VideoPolicy, f.log)
	return f
}

// SetOpponentName sets the opponent's name.
func (f *Form) SetOpponentName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opponentName = strings.TrimSpace(name)
}

// SetMatchDate sets the match day. The time of day is discarded.
func (f *Form) SetMatchDate(d time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.IsZero() {
		f.matchDate = nil
		f.badDate = false
		return
	}
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	f.matchDate = &day
	f.badDate = false
}

// SetMatchDateText parses a YYYY-MM-DD match day. Empty text clears the
// date; text that does not parse is reported as an invalid date on Submit.
func (f *Form) SetMatchDateText(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		f.SetMatchDate(time.Time{})
		return
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		f.mu.Lock()
		f.matchDate = nil
		f.badDate = true
		f.mu.Unlock()
		return
	}
	f.SetMatchDate(d)
}

// SetMatchType sets "home" or "away"; other values fail on Submit.
func (f *Form) SetMatchType(t string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchType = strings.ToLower(strings.TrimSpace(t))
}

// SetScores sets the optional final score. Empty means absent.
func (f *Form) SetScores(home, away string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homeScore = strings.TrimSpace(home)
	f.awayScore = strings.TrimSpace(away)
}

// Attach selects a file into the named slot. A rejection is returned, and
// Submit reports it too while the slot holds no file.
func (f *Form) Attach(ctx context.Context, field string, a model.Attachment) error {
	slot := f.Slot(field)
	if slot == nil {
		return errors.New("unknown attachment field " + field)
	}
	err := slot.Select(ctx, a)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.rejected[field] = err.Error()
		return err
	}
	delete(f.rejected, field)
	return nil
}

// Slot returns the slot for a field name, or nil.
func (f *Form) Slot(field string) *upload.Slot {
	switch field {
	case FieldOpponentLogo:
		return f.OpponentLogo
	case FieldHomeLineup:
		return f.HomeLineup
	case FieldAwayLineup:
		return f.AwayLineup
	case FieldMatchVideo:
		return f.MatchVideo
	}
	return nil
}

func current(s *upload.Slot) *model.Attachment {
	a, ok := s.Current()
	if !ok {
		return nil
	}
	return &a
}

// Submit validates every field in one pass. On success it returns the
// frozen submission; on failure a validation.Errors with one message per
// failing field.
func (f *Form) Submit(ctx context.Context) (model.MatchSubmission, error) {
	f.mu.Lock()
	d := draft{
		OpponentName: f.opponentName,
		MatchDate:    f.matchDate,
		MatchType:    f.matchType,
		HomeScore:    f.homeScore,
		AwayScore:    f.awayScore,
		OpponentLogo: current(f.OpponentLogo),
		HomeLineup:   current(f.HomeLineup),
		AwayLineup:   current(f.AwayLineup),
		MatchVideo:   current(f.MatchVideo),
	}
	badDate := f.badDate
	rejected := make(map[string]string, len(f.rejected))
	for k, v := range f.rejected {
		rejected[k] = v
	}
	f.mu.Unlock()
	selected := map[string]*model.Attachment{
		FieldOpponentLogo: d.OpponentLogo,
		FieldHomeLineup:   d.HomeLineup,
		FieldAwayLineup:   d.AwayLineup,
		FieldMatchVideo:   d.MatchVideo,
	}

	errs, err := validation.Collect(validate.Struct(d), message)
	if err != nil {
		return model.MatchSubmission{}, err
	}
	if errs == nil {
		errs = validation.Errors{}
	}
	if badDate {
		errs[FieldMatchDate] = message(FieldMatchDate, "format")
	}
	// A rejected file explains a missing attachment better than "required".
	// A slot that kept an earlier file is valid.
	for field, msg := range rejected {
		if selected[field] == nil {
			errs[field] = msg
		}
	}
	if len(errs) > 0 {
		for _, field := range errs.Fields() {
			metrics.RecordValidationFailure(field)
		}
		metrics.RecordSubmission("invalid")
		f.log.Info(ctx, "match form rejected", logger.Any("fields", errs.Fields()))
		return model.MatchSubmission{}, errs
	}

	sub := model.MatchSubmission{
		ID:           uuid.NewString(),
		OpponentName: d.OpponentName,
		OpponentLogo: d.OpponentLogo,
		MatchDate:    *d.MatchDate,
		MatchType:    model.MatchType(d.MatchType),
		HomeLineup:   d.HomeLineup,
		AwayLineup:   d.AwayLineup,
		HomeScore:    d.HomeScore,
		AwayScore:    d.AwayScore,
		MatchVideo:   *d.MatchVideo,
		SubmittedAt:  f.now().UTC(),
	}
	metrics.RecordSubmission("accepted")
	f.log.Info(ctx, "match form submitted",
		logger.String("submission_id", sub.ID),
		logger.String("opponent", sub.OpponentName),
		logger.String("match_type", string(sub.MatchType)),
	)
	return sub, nil
}

// Reset clears every field and slot.
func (f *Form) Reset() {
	f.mu.Lock()
	f.opponentName, f.matchType, f.homeScore, f.awayScore = "", "", "", ""
	f.matchDate = nil
	f.badDate = false
	f.rejected = make(map[string]string)
	f.mu.Unlock()
	for _, s := range []*upload.Slot{f.OpponentLogo, f.HomeLineup, f.AwayLineup, f.MatchVideo} {
		s.Clear()
	}
}
