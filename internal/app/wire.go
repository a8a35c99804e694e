package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/spinta/internal/adapters/backend"
	"github.com/okian/spinta/internal/adapters/repository"
	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/config"
	"github.com/okian/spinta/internal/domain/analysis"
	"github.com/okian/spinta/internal/domain/confirm"
	"github.com/okian/spinta/pkg/logger"
)

// Components are the collaborators built from configuration.
type Components struct {
	KV        repository.KV
	Backend   *backend.Client
	Sessions  *auth.Store
	Auth      *auth.Service
	Confirmer *confirm.Submitter
	Provider  analysis.Provider
	Analyzer  *analysis.Orchestrator

	closers []func() error
}

// Close releases resources held by the components.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build constructs the session store, backend client and analysis provider
// described by cfg.
func Build(_ context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	if log == nil {
		log = logger.Nop()
	}
	c := &Components{}

	if cfg.SessionDBPath != "" {
		kv, err := repository.NewSQLiteKV(cfg.SessionDBPath)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		c.KV = kv
		c.closers = append(c.closers, kv.Close)
	} else {
		c.KV = repository.NewMemoryKV()
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	c.Backend = backend.New(cfg.BackendURL,
		backend.WithHTTPClient(httpClient),
		backend.WithLogger(log.Named("backend")),
	)
	c.Sessions = auth.NewStore(c.KV, log.Named("session"))
	c.Auth = auth.NewService(c.Backend, c.Sessions, log.Named("auth"))
	c.Confirmer = confirm.NewSubmitter(c.Backend, c.Sessions.Headers, log.Named("confirm"))

	provider, err := analysis.NewProvider(cfg.AnalysisProvider, cfg.ProviderSource(),
		analysis.WithHTTPClient(httpClient),
		analysis.WithHeaders(c.Sessions.Headers),
		analysis.WithVideo(cfg.AnalysisVideo),
		analysis.WithProviderLogger(log.Named("provider")),
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("analysis provider: %w", err)
	}
	c.Provider = provider
	c.Analyzer = analysis.NewOrchestrator(provider,
		analysis.WithMinDuration(cfg.AnalysisMinDuration()),
		analysis.WithMessageInterval(cfg.AnalysisMessageInterval()),
		analysis.WithLogger(log.Named("analysis")),
	)
	return c, nil
}

// Options returns the Service options that wire in c and cfg.
func (c *Components) Options(cfg *config.Config, log logger.Logger) []Option {
	return []Option{
		WithLogger(log),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithSpoolDir(cfg.SpoolDir),
		WithRunRetention(cfg.RunRetention()),
		WithAuth(c.Auth),
		WithConfirmer(c.Confirmer),
		WithAnalyzer(c.Analyzer, c.Provider.Name()),
	}
}
