package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// Default orchestration settings.
const (
	DefaultMinDuration     = 5 * time.Second
	DefaultMessageInterval = 2500 * time.Millisecond
)

// DefaultMessages are shown in rotation while an analysis runs.
var DefaultMessages = []string{
	"Analyzing match...",
	"Processing video footage...",
	"Detecting player movements...",
	"Identifying match events...",
	"Extracting statistics...",
	"Almost there...",
}

// ProgressFunc receives the current progress message. It is called from the
// goroutine running Analyze and never after Analyze returns.
type ProgressFunc func(message string)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMinDuration sets how long an analysis is shown at minimum. Zero
// disables the wait.
func WithMinDuration(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.minDuration = d
		}
	}
}

// WithMessageInterval sets how often the progress message rotates.
func WithMessageInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithMessages replaces the rotating progress messages.
func WithMessages(msgs ...string) Option {
	return func(o *Orchestrator) {
		if len(msgs) > 0 {
			o.messages = append([]string(nil), msgs...)
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// Orchestrator runs a Provider under the minimum-duration policy and
// rotates progress messages while it works.
type Orchestrator struct {
	provider    Provider
	minDuration time.Duration
	interval    time.Duration
	messages    []string
	log         logger.Logger
}

// NewOrchestrator creates an Orchestrator around p.
func NewOrchestrator(p Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    p,
		minDuration: DefaultMinDuration,
		interval:    DefaultMessageInterval,
		messages:    DefaultMessages,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provider returns the configured provider.
func (o *Orchestrator) Provider() Provider { return o.provider }

type outcome struct {
	res model.AnalysisResult
	err error
}

// Analyze runs the provider and returns once both the provider has finished
// and the minimum duration has elapsed. Cancelling ctx returns immediately.
func (o *Orchestrator) Analyze(ctx context.Context, sub model.MatchSubmission, progress ProgressFunc) (model.AnalysisResult, error) {
	start := time.Now()
	name := o.provider.Name()
	metrics.AddAnalysisInFlight(1)
	defer metrics.AddAnalysisInFlight(-1)

	emit := func(i int) {
		if progress != nil {
			progress(o.messages[i])
		}
	}
	emit(0)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		res, err := o.provider.Analyze(workCtx, sub)
		done <- outcome{res: res, err: err}
	}()

	var minWait <-chan time.Time
	if o.minDuration > 0 {
		t := time.NewTimer(o.minDuration)
		defer t.Stop()
		minWait = t.C
	}
	var tick <-chan time.Time
	if len(o.messages) > 1 {
		t := time.NewTicker(o.interval)
		defer t.Stop()
		tick = t.C
	}

	var (
		out     *outcome
		idx     int
		elapsed = o.minDuration <= 0
	)
	for out == nil || !elapsed {
		select {
		case <-ctx.Done():
			metrics.RecordAnalysis(name, "cancelled", float64(time.Since(start).Milliseconds()))
			o.log.Info(ctx, "analysis cancelled", logger.String("submission_id", sub.ID))
			return model.AnalysisResult{}, fmt.Errorf("analysis cancelled: %w", ctx.Err())
		case r := <-done:
			out = &r
			done = nil
		case <-minWait:
			elapsed = true
			minWait = nil
		case <-tick:
			idx = (idx + 1) % len(o.messages)
			emit(idx)
		}
	}

	took := time.Since(start)
	if out.err != nil {
		result := "error"
		if errors.Is(out.err, context.Canceled) {
			result = "cancelled"
		}
		metrics.RecordAnalysis(name, result, float64(took.Milliseconds()))
		metrics.RecordErrorByComponent("analysis", name+"_error")
		o.log.Error(ctx, "analysis failed",
			logger.String("submission_id", sub.ID),
			logger.String("provider", name),
			logger.Error(out.err),
		)
		return model.AnalysisResult{}, fmt.Errorf("analyze %s: %w", sub.ID, out.err)
	}

	res := out.res
	if res.Events == nil {
		res.Events = []model.MatchEvent{}
	}
	if res.AnalyzedVideo.IsZero() {
		res.AnalyzedVideo = sub.MatchVideo
	}
	metrics.RecordAnalysis(name, "success", float64(took.Milliseconds()))
	o.log.Info(ctx, "analysis finished",
		logger.String("submission_id", sub.ID),
		logger.String("provider", name),
		logger.Int("events", len(res.Events)),
		logger.Duration("took", took),
	)
	return res, nil
}
