package repository

import "time"

// Option applies a configuration option to the MemoryRunStore.
type Option func(*MemoryRunStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryRunStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithRetention sets how long confirmed and discarded runs are kept.
func WithRetention(d time.Duration) Option {
	return func(s *MemoryRunStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock overrides the time source used for pruning.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryRunStore) {
		if now != nil {
			s.now = now
		}
	}
}
