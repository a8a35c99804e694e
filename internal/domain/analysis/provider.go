// Package analysis turns a frozen match submission into an analysis result
// while reporting progress.
package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
)

// Provider names accepted by NewProvider.
const (
	ProviderFixture = "fixture"
	ProviderStatic  = "static"
	ProviderRemote  = "remote"
)

// DefaultArtifact is the fallback artifact loaded by the static provider.
const DefaultArtifact = "mexico794.json"

const defaultHTTPTimeout = 30 * time.Second

// Provider produces the analysis for one submission.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, sub model.MatchSubmission) (model.AnalysisResult, error)
}

// HeaderFunc supplies extra request headers, such as credentials.
type HeaderFunc func(ctx context.Context) http.Header

type providerOptions struct {
	client  *http.Client
	headers HeaderFunc
	log     logger.Logger
	now     func() time.Time
	video   string
}

// ProviderOption configures a provider.
type ProviderOption func(*providerOptions)

// WithHTTPClient sets the client used for artifact and remote requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(o *providerOptions) {
		if c != nil {
			o.client = c
		}
	}
}

// WithHeaders sets a header source applied to outbound requests.
func WithHeaders(h HeaderFunc) ProviderOption {
	return func(o *providerOptions) {
		o.headers = h
	}
}

// WithProviderLogger sets the provider logger.
func WithProviderLogger(l logger.Logger) ProviderOption {
	return func(o *providerOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock sets the time source for generated match ids and timestamps.
func WithClock(now func() time.Time) ProviderOption {
	return func(o *providerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithVideo sets a static video returned as the analyzed video.
func WithVideo(path string) ProviderOption {
	return func(o *providerOptions) {
		o.video = strings.TrimSpace(path)
	}
}

func newProviderOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o providerOptions) apply(ctx context.Context, req *http.Request) {
	if o.headers == nil {
		return
	}
	for k, vs := range o.headers(ctx) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// NewProvider builds the provider named by kind. source is the artifact
// path or URL for "static" and the service URL for "remote".
func NewProvider(kind, source string, opts ...ProviderOption) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ProviderFixture:
		return NewFixtureProvider(opts...), nil
	case ProviderStatic:
		if source == "" {
			source = DefaultArtifact
		}
		return NewStaticProvider(source, opts...), nil
	case ProviderRemote:
		if source == "" {
			return nil, fmt.Errorf("remote provider needs a url: %w", ErrUnknownProvider)
		}
		return NewRemoteProvider(source, opts...), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
}
