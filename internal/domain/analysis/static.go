package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/internal/domain/upload"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

const maxArtifactBytes = 32 << 20

// StaticProvider loads a prepared events document from a file or URL.
// Any load or parse failure degrades to an empty event list.
type StaticProvider struct {
	source string
	opts   providerOptions
}

// NewStaticProvider creates a StaticProvider reading source.
func NewStaticProvider(source string, opts ...ProviderOption) *StaticProvider {
	return &StaticProvider{source: strings.TrimSpace(source), opts: newProviderOptions(opts)}
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return ProviderStatic }

// Source returns the artifact location.
func (p *StaticProvider) Source() string { return p.source }

// Analyze implements Provider. It only fails when ctx is done.
func (p *StaticProvider) Analyze(ctx context.Context, sub model.MatchSubmission) (model.AnalysisResult, error) {
	data, err := p.load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.AnalysisResult{}, fmt.Errorf("context cancelled: %w", ctxErr)
		}
		return p.fallback(ctx, sub, err), nil
	}
	res, err := decodeDocument(data)
	if err != nil {
		return p.fallback(ctx, sub, err), nil
	}
	res.AnalyzedVideo = p.video(ctx, sub)
	if res.GeneratedAt.IsZero() {
		res.GeneratedAt = p.opts.now().UTC()
	}
	p.opts.log.Debug(ctx, "loaded analysis artifact",
		logger.String("source", p.source),
		logger.Int("events", len(res.Events)),
	)
	return res, nil
}

func (p *StaticProvider) fallback(ctx context.Context, sub model.MatchSubmission, cause error) model.AnalysisResult {
	metrics.RecordAnalysisFallback()
	p.opts.log.Warn(ctx, "analysis artifact unavailable, using empty events",
		logger.String("source", p.source),
		logger.Error(cause),
	)
	return model.AnalysisResult{
		GeneratedAt:   p.opts.now().UTC(),
		AnalyzedVideo: p.video(ctx, sub),
		Events:        []model.MatchEvent{},
	}
}

func (p *StaticProvider) video(ctx context.Context, sub model.MatchSubmission) model.Attachment {
	if p.opts.video == "" {
		return sub.MatchVideo
	}
	a, err := upload.FromFile(p.opts.video, "")
	if err != nil {
		p.opts.log.Warn(ctx, "static video unavailable, using submitted video",
			logger.String("video", p.opts.video),
			logger.Error(err),
		)
		return sub.MatchVideo
	}
	return a
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (p *StaticProvider) load(ctx context.Context) ([]byte, error) {
	if !isURL(p.source) {
		data, err := os.ReadFile(p.source)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	p.opts.apply(ctx, req)
	resp, err := p.opts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrResourceUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	return data, nil
}
