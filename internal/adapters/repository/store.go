// Package repository stores pipeline runs and the durable key-value state
// that backs the session.
package repository

import (
	"context"

	"github.com/okian/spinta/internal/domain/model"
)

// RunStore keeps the pipeline record of every submission.
type RunStore interface {
	// Save inserts or replaces a run.
	Save(ctx context.Context, run model.Run) error
	// Get returns a run by id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Run, error)
	// Update applies fn to the stored run atomically and saves the result.
	// Returning an error from fn leaves the run unchanged.
	Update(ctx context.Context, id string, fn func(*model.Run) error) (model.Run, error)
	// Delete removes a run. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error
	// List returns runs newest first, at most limit when limit > 0.
	List(ctx context.Context, limit int) ([]model.Run, error)
	// Count returns the number of stored runs.
	Count(ctx context.Context) int
}

// KV is a small string key-value store.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Delete removes the keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
