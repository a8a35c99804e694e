package inflight

// Option applies a configuration option to the tracker.
type Option func(*memoryTracker)

// WithMaxSize bounds the number of keys held at once.
// If maxSize <= 0 the tracker is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(t *memoryTracker) {
		t.maxSize = maxSize
	}
}
