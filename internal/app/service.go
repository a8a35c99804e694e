// Package service composes the match pipeline: submission, analysis,
// preview and confirmation.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/spinta/internal/adapters/mq/queue"
	"github.com/okian/spinta/internal/adapters/mq/worker"
	"github.com/okian/spinta/internal/adapters/repository"
	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/domain/analysis"
	"github.com/okian/spinta/internal/domain/confirm"
	"github.com/okian/spinta/internal/domain/inflight"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// Analyzer runs one analysis with progress reporting.
type Analyzer interface {
	Analyze(ctx context.Context, sub model.MatchSubmission, progress analysis.ProgressFunc) (model.AnalysisResult, error)
}

// Confirmer sends an accepted analysis to the backend.
type Confirmer interface {
	Confirm(ctx context.Context, sub model.MatchSubmission, res model.AnalysisResult) (model.Receipt, error)
}

// Authenticator manages the coach session.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Session(ctx context.Context) (model.Session, bool, error)
	Logout(ctx context.Context) error
}

const (
	waitPollInterval     = 25 * time.Millisecond
	defaultRunRetention  = time.Hour
	defaultSweepInterval = time.Minute
)

// Service implements the pipeline used by the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	// Core components
	runs      repository.RunStore
	auth      Authenticator
	analyzer  Analyzer
	confirmer Confirmer
	tracker   inflight.Tracker
	jobs      queue.Queue
	pool      *worker.Pool

	// Configuration
	workerCount   int
	queueSize     int
	spoolDir      string
	retention     time.Duration
	sweepInterval time.Duration
	providerName  string
	now           func() time.Time

	// Cancel funcs of running analyses, keyed by run id.
	cancelMu sync.Mutex
	cancels  map[string]analysisHandle

	// State
	started bool
	stop    context.CancelFunc

	// Logging
	logger logger.Logger
}

type analysisHandle struct {
	generation int
	cancel     context.CancelFunc
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the analysis queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunStore sets the run store. The default is an in-memory store.
func WithRunStore(r repository.RunStore) Option {
	return func(s *Service) {
		if r != nil {
			s.runs = r
		}
	}
}

// WithAuth sets the session manager.
func WithAuth(a Authenticator) Option {
	return func(s *Service) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithAnalyzer sets the analysis orchestrator and the provider name
// reported in stats.
func WithAnalyzer(a Analyzer, providerName string) Option {
	return func(s *Service) {
		if a != nil {
			s.analyzer = a
			s.providerName = providerName
		}
	}
}

// WithConfirmer sets the confirmation submitter.
func WithConfirmer(c Confirmer) Option {
	return func(s *Service) {
		if c != nil {
			s.confirmer = c
		}
	}
}

// WithSpoolDir sets the directory holding uploaded files. Attachments under
// it are removed when their run is confirmed or discarded.
func WithSpoolDir(dir string) Option {
	return func(s *Service) {
		s.spoolDir = dir
	}
}

// WithRunRetention sets how long a run may sit in preview or failed
// before it is discarded, and how long the default store keeps finished
// runs.
func WithRunRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithSweepInterval sets how often idle runs are expired.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     64,
		retention:     defaultRunRetention,
		sweepInterval: defaultSweepInterval,
		tracker:       inflight.NewTracker(),
		cancels:       make(map[string]analysisHandle),
		now:           time.Now,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the queue and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.auth == nil || s.confirmer == nil {
		return fmt.Errorf("%w: auth and confirmer are required", ErrMissingDep)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = cancel

	if s.runs == nil {
		s.runs = repository.NewMemoryRunStore(runCtx, repository.WithRetention(s.retention))
	}
	if s.analyzer == nil {
		s.analyzer = analysis.NewOrchestrator(analysis.NewFixtureProvider())
		s.providerName = analysis.ProviderFixture
	}
	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.jobs, worker.HandlerFunc(s.handle), worker.WithLogger(s.logger))
	s.pool.Start(runCtx)
	go s.sweep(runCtx)

	s.started = true
	s.logger.Info(ctx, "match pipeline started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.String("provider", s.providerName),
	)
	return nil
}

// Stop cancels running analyses and drains the worker pool.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping match pipeline...")

	s.cancelMu.Lock()
	for id, h := range s.cancels {
		h.cancel()
		delete(s.cancels, id)
	}
	s.cancelMu.Unlock()

	s.stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "match pipeline stopped")
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Login delegates to the session manager.
func (s *Service) Login(ctx context.Context, email, password string) (auth.LoginResult, error) {
	if s.auth == nil {
		return auth.LoginResult{}, ErrMissingDep
	}
	return s.auth.Login(ctx, email, password)
}

// Session returns the current session.
func (s *Service) Session(ctx context.Context) (model.Session, bool, error) {
	if s.auth == nil {
		return model.Session{}, false, ErrMissingDep
	}
	return s.auth.Session(ctx)
}

// Logout clears the session.
func (s *Service) Logout(ctx context.Context) error {
	if s.auth == nil {
		return ErrMissingDep
	}
	return s.auth.Logout(ctx)
}

// Submit registers a frozen submission and queues its first analysis.
func (s *Service) Submit(ctx context.Context, sub model.MatchSubmission) (model.Run, error) { //nolint:gocritic // hugeParam: submissions are handed over by value
	if !s.isStarted() {
		return model.Run{}, ErrNotStarted
	}
	now := s.now().UTC()
	run := model.Run{
		ID:         sub.ID,
		Stage:      model.StageAnalyzing,
		Message:    analysis.DefaultMessages[0],
		Generation: 1,
		Submission: sub,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.runs.Get(ctx, run.ID); err == nil {
		return model.Run{}, fmt.Errorf("%w: run %s already exists", ErrStage, run.ID)
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("save run: %w", err)
	}
	if err := s.enqueue(ctx, run); err != nil {
		_ = s.runs.Delete(ctx, run.ID)
		return model.Run{}, err
	}
	s.logger.Info(ctx, "submission accepted",
		logger.String("run_id", run.ID),
		logger.String("opponent", sub.OpponentName),
	)
	return run, nil
}

func (s *Service) enqueue(ctx context.Context, run model.Run) error { //nolint:gocritic // hugeParam
	err := s.jobs.Enqueue(ctx, model.AnalysisJob{RunID: run.ID, Generation: run.Generation, Submission: run.Submission})
	if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}

// Get returns the run with id.
func (s *Service) Get(ctx context.Context, id string) (model.Run, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return model.Run{}, mapStoreErr(err)
	}
	return run, nil
}

// List returns the most recent runs.
func (s *Service) List(ctx context.Context, limit int) ([]model.Run, error) {
	return s.runs.List(ctx, limit)
}

func mapStoreErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// Wait blocks until the run leaves the analyzing stage or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (model.Run, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		run, err := s.Get(ctx, id)
		if err != nil {
			return model.Run{}, err
		}
		if run.Stage != model.StageAnalyzing {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, fmt.Errorf("wait for %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Reanalyze restarts analysis from the same frozen submission. Results of
// the previous generation are discarded.
func (s *Service) Reanalyze(ctx context.Context, id string) (model.Run, error) {
	if !s.isStarted() {
		return model.Run{}, ErrNotStarted
	}
	release, err := s.tracker.Acquire(ctx, id+":confirm")
	if err != nil {
		return model.Run{}, ErrInFlight
	}
	defer release()

	var prev model.Run
	run, err := s.runs.Update(ctx, id, func(r *model.Run) error {
		if r.Stage != model.StagePreview && r.Stage != model.StageFailed {
			return fmt.Errorf("%w: cannot re-analyze in stage %s", ErrStage, r.Stage)
		}
		prev = *r
		r.Stage = model.StageAnalyzing
		r.Generation++
		r.Result = nil
		r.Error = ""
		r.Message = analysis.DefaultMessages[0]
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return model.Run{}, mapStoreErr(err)
	}
	if err := s.enqueue(ctx, run); err != nil {
		_, _ = s.runs.Update(ctx, id, func(r *model.Run) error {
			*r = prev
			return nil
		})
		return model.Run{}, err
	}
	s.logger.Info(ctx, "re-analysis queued", logger.String("run_id", id), logger.Int("generation", run.Generation))
	return run, nil
}

// Confirm sends the previewed analysis to the backend. A second concurrent
// call for the same run fails with ErrInFlight.
func (s *Service) Confirm(ctx context.Context, id string) (model.Run, error) {
	release, err := s.tracker.Acquire(ctx, id+":confirm")
	if err != nil {
		return model.Run{}, ErrInFlight
	}
	defer release()

	run, err := s.runs.Update(ctx, id, func(r *model.Run) error {
		if r.Stage != model.StagePreview || r.Result == nil {
			return fmt.Errorf("%w: cannot confirm in stage %s", ErrStage, r.Stage)
		}
		r.Stage = model.StageConfirming
		r.Error = ""
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return model.Run{}, mapStoreErr(err)
	}

	receipt, cerr := s.confirmer.Confirm(ctx, run.Submission, *run.Result)
	run, err = s.runs.Update(ctx, id, func(r *model.Run) error {
		r.UpdatedAt = s.now().UTC()
		if cerr != nil {
			r.Stage = model.StagePreview
			r.Error = cerr.Error()
			return nil
		}
		r.Stage = model.StageConfirmed
		r.Receipt = &receipt
		r.Message = confirm.Notice(receipt)
		return nil
	})
	if cerr != nil {
		return run, cerr
	}
	if err != nil {
		return model.Run{}, mapStoreErr(err)
	}
	s.release(ctx, run)
	return run, nil
}

// Discard cancels any running analysis and releases the run's uploads.
func (s *Service) Discard(ctx context.Context, id string) (model.Run, error) {
	if s.tracker.Held(id + ":confirm") {
		return model.Run{}, ErrInFlight
	}
	run, err := s.runs.Update(ctx, id, func(r *model.Run) error {
		switch r.Stage {
		case model.StageConfirming:
			return ErrInFlight
		case model.StageConfirmed, model.StageDiscarded:
			return fmt.Errorf("%w: run already %s", ErrStage, r.Stage)
		}
		r.Stage = model.StageDiscarded
		r.Message = ""
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return model.Run{}, mapStoreErr(err)
	}

	s.cancelMu.Lock()
	if h, ok := s.cancels[id]; ok {
		h.cancel()
		delete(s.cancels, id)
	}
	s.cancelMu.Unlock()

	s.release(ctx, run)
	s.logger.Info(ctx, "run discarded", logger.String("run_id", id))
	return run, nil
}

func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Expire(ctx)
		}
	}
}

// Expire discards runs left in preview or failed for longer than the
// retention, releasing their uploads. It returns the number discarded.
func (s *Service) Expire(ctx context.Context) int {
	runs, err := s.runs.List(ctx, 0)
	if err != nil {
		s.logger.Warn(ctx, "list runs for expiry", logger.Error(err))
		return 0
	}
	cutoff := s.now().UTC().Add(-s.retention)
	n := 0
	for i := range runs {
		run := &runs[i]
		if run.Stage != model.StagePreview && run.Stage != model.StageFailed {
			continue
		}
		if !run.UpdatedAt.Before(cutoff) {
			continue
		}
		if _, err := s.Discard(ctx, run.ID); err != nil {
			s.logger.Debug(ctx, "idle run not expired", logger.String("run_id", run.ID), logger.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info(ctx, "expired idle runs", logger.Int("count", n))
	}
	return n
}

// release removes spooled files that belong to the run.
func (s *Service) release(ctx context.Context, run model.Run) { //nolint:gocritic // hugeParam
	if s.spoolDir == "" {
		return
	}
	root, err := filepath.Abs(s.spoolDir)
	if err != nil {
		return
	}
	files := run.Submission.Attachments()
	if run.Result != nil {
		files = append(files, run.Result.AnalyzedVideo)
	}
	dirs := make(map[string]struct{})
	for _, a := range files {
		if a.Path == "" {
			continue
		}
		p, err := filepath.Abs(a.Path)
		if err != nil || !strings.HasPrefix(p, root+string(filepath.Separator)) {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn(ctx, "failed to remove upload", logger.String("path", p), logger.Error(err))
		}
		if dir := filepath.Dir(p); dir != root {
			dirs[dir] = struct{}{}
		}
	}
	// Upload directories are removed once empty.
	for dir := range dirs {
		_ = os.Remove(dir)
	}
}

// handle runs one analysis job on a worker.
func (s *Service) handle(ctx context.Context, job worker.Job) error { //nolint:gocritic // hugeParam
	release, err := s.tracker.Acquire(ctx, job.RunID+":analysis")
	if err != nil {
		return fmt.Errorf("%w: analysis for %s", ErrInFlight, job.RunID)
	}
	defer release()

	current, err := s.runs.Get(ctx, job.RunID)
	if err != nil || current.Generation != job.Generation || current.Stage != model.StageAnalyzing {
		s.logger.Debug(ctx, "dropping stale analysis job",
			logger.String("run_id", job.RunID),
			logger.Int("generation", job.Generation),
		)
		return nil
	}

	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelMu.Lock()
	s.cancels[job.RunID] = analysisHandle{generation: job.Generation, cancel: cancel}
	s.cancelMu.Unlock()
	defer func() {
		s.cancelMu.Lock()
		if h, ok := s.cancels[job.RunID]; ok && h.generation == job.Generation {
			delete(s.cancels, job.RunID)
		}
		s.cancelMu.Unlock()
	}()

	progress := func(msg string) {
		_, _ = s.runs.Update(actx, job.RunID, func(r *model.Run) error {
			if r.Generation != job.Generation || r.Stage != model.StageAnalyzing {
				return ErrStage
			}
			r.Message = msg
			return nil
		})
	}

	res, aerr := s.analyzer.Analyze(actx, job.Submission, progress)
	if aerr != nil && actx.Err() != nil {
		return nil
	}
	_, err = s.runs.Update(ctx, job.RunID, func(r *model.Run) error {
		if r.Generation != job.Generation || r.Stage != model.StageAnalyzing {
			return ErrStage
		}
		r.UpdatedAt = s.now().UTC()
		if aerr != nil {
			r.Stage = model.StageFailed
			r.Error = aerr.Error()
			r.Message = ""
			return nil
		}
		r.Stage = model.StagePreview
		r.Result = &res
		r.Message = ""
		return nil
	})
	if errors.Is(err, ErrStage) || errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug(ctx, "discarding stale analysis result", logger.String("run_id", job.RunID))
		return nil
	}
	if err != nil {
		return err
	}
	return aerr
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"provider":    s.providerName,
	}
	if !s.started {
		return stats
	}

	queueLen := s.jobs.Len(ctx)
	stats["queueLength"] = queueLen
	stats["runs"] = s.runs.Count(ctx)
	stats["analysesProcessed"] = s.pool.Processed()
	stats["analysesFailed"] = s.pool.Failed()
	stats["inFlight"] = s.tracker.Size()
	if byStage, ok := s.runs.(interface {
		CountByStage(context.Context) map[model.Stage]int
	}); ok {
		stages := make(map[string]int)
		for st, n := range byStage.CountByStage(ctx) {
			stages[string(st)] = n
		}
		stats["runsByStage"] = stages
	}

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(s.workerCount)
	return stats
}
