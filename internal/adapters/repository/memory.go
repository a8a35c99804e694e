package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/metrics"
)

const (
	defaultMetricsUpdateInterval = 5 * time.Second
	defaultRetention             = time.Hour
)

var trackedStages = []model.Stage{
	model.StageAnalyzing,
	model.StagePreview,
	model.StageConfirming,
	model.StageConfirmed,
	model.StageFailed,
	model.StageDiscarded,
}

// MemoryRunStore is an in-memory RunStore. A background loop publishes
// per-stage gauges and prunes finished runs past their retention.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]model.Run

	metricsUpdateInterval time.Duration
	retention             time.Duration
	now                   func() time.Time
}

// NewMemoryRunStore creates the store and starts its background loop,
// which stops when ctx is done.
func NewMemoryRunStore(ctx context.Context, opts ...Option) *MemoryRunStore {
	s := &MemoryRunStore{
		runs:                  make(map[string]model.Run),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		retention:             defaultRetention,
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.maintain(ctx)
	return s
}

func (s *MemoryRunStore) maintain(ctx context.Context) {
	ticker := time.NewTicker(s.metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune()
			s.publish()
		}
	}
}

func (s *MemoryRunStore) publish() {
	counts := make(map[model.Stage]int, len(trackedStages))
	s.mu.RLock()
	for _, r := range s.runs {
		counts[r.Stage]++
	}
	s.mu.RUnlock()
	for _, st := range trackedStages {
		metrics.UpdateRuns(string(st), counts[st])
	}
}

// Prune drops terminal runs whose last update is older than the retention.
// It returns the number of runs removed.
func (s *MemoryRunStore) Prune() int {
	cutoff := s.now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.runs {
		if r.Stage.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(s.runs, id)
			n++
		}
	}
	return n
}

// Save implements RunStore.
func (s *MemoryRunStore) Save(_ context.Context, run model.Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: %w", ErrEmptyKey)
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return nil
}

// Get implements RunStore.
func (s *MemoryRunStore) Get(_ context.Context, id string) (model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return model.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Update implements RunStore.
func (s *MemoryRunStore) Update(_ context.Context, id string, fn func(*model.Run) error) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return model.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := fn(&r); err != nil {
		return s.runs[id], err
	}
	s.runs[id] = r
	return r, nil
}

// Delete implements RunStore.
func (s *MemoryRunStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.runs, id)
	s.mu.Unlock()
	return nil
}

// List implements RunStore.
func (s *MemoryRunStore) List(_ context.Context, limit int) ([]model.Run, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	out := make([]model.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements RunStore.
func (s *MemoryRunStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// CountByStage returns how many runs sit in each stage.
func (s *MemoryRunStore) CountByStage(_ context.Context) map[model.Stage]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Stage]int)
	for _, r := range s.runs {
		out[r.Stage]++
	}
	return out
}
