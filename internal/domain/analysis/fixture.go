package analysis

import (
	"context"
	"fmt"

	"github.com/okian/spinta/internal/domain/model"
)

// FixtureProvider returns a fixed set of mock events. The analyzed video is
// the submitted video unchanged.
type FixtureProvider struct {
	opts providerOptions
}

// NewFixtureProvider creates a FixtureProvider.
func NewFixtureProvider(opts ...ProviderOption) *FixtureProvider {
	return &FixtureProvider{opts: newProviderOptions(opts)}
}

// Name implements Provider.
func (p *FixtureProvider) Name() string { return ProviderFixture }

// FixtureEvents returns the mock event list.
func FixtureEvents() []model.MatchEvent {
	return []model.MatchEvent{
		{Type: "goal", Time: "23:45", Minute: 23, Second: 45, Team: "home", Player: "Player #10", Confidence: 0.95},
		{Type: "foul", Time: "35:12", Minute: 35, Second: 12, Team: "away", Player: "Player #7", Confidence: 0.87},
		{Type: "corner", Time: "42:30", Minute: 42, Second: 30, Team: "home", Confidence: 0.92},
		{Type: "yellow_card", Time: "56:18", Minute: 56, Second: 18, Team: "away", Player: "Player #5", Confidence: 0.98},
	}
}

// Analyze implements Provider.
func (p *FixtureProvider) Analyze(ctx context.Context, sub model.MatchSubmission) (model.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("context cancelled: %w", err)
	}
	now := p.opts.now().UTC()
	events := FixtureEvents()
	summary := model.Summarize(events)
	return model.AnalysisResult{
		MatchID:       fmt.Sprintf("match_%d", now.UnixMilli()),
		GeneratedAt:   now,
		AnalyzedVideo: sub.MatchVideo,
		Events:        events,
		Summary:       &summary,
	}, nil
}
