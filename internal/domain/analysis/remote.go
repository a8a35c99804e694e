package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"time"

	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

const maxRemoteResponseBytes = 32 << 20

// RemoteProvider posts the video and match data to an analysis service and
// decodes the returned events document.
type RemoteProvider struct {
	url  string
	opts providerOptions
}

// NewRemoteProvider creates a RemoteProvider for url.
func NewRemoteProvider(url string, opts ...ProviderOption) *RemoteProvider {
	return &RemoteProvider{url: url, opts: newProviderOptions(opts)}
}

// Name implements Provider.
func (p *RemoteProvider) Name() string { return ProviderRemote }

// Analyze implements Provider.
func (p *RemoteProvider) Analyze(ctx context.Context, sub model.MatchSubmission) (model.AnalysisResult, error) {
	if sub.MatchVideo.Path == "" {
		return model.AnalysisResult{}, ErrNoVideo
	}
	video, err := os.Open(sub.MatchVideo.Path)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %w", ErrNoVideo, err)
	}
	defer video.Close()

	matchData, err := json.Marshal(sub)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("encode match data: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeAnalysisBody(mw, sub.MatchVideo, video, matchData))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, pr)
	if err != nil {
		_ = pr.Close()
		return model.AnalysisResult{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	p.opts.apply(ctx, req)

	start := time.Now()
	resp, err := p.opts.client.Do(req)
	if err != nil {
		_ = pr.Close()
		metrics.RecordBackendRequest("analyze", "error", float64(time.Since(start).Milliseconds()))
		return model.AnalysisResult{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()
	metrics.RecordBackendRequest("analyze", fmt.Sprint(resp.StatusCode), float64(time.Since(start).Milliseconds()))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseBytes))
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: read response: %w", ErrAnalysisFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.opts.log.Warn(ctx, "remote analysis rejected",
			logger.String("url", p.url),
			logger.Int("status", resp.StatusCode),
		)
		return model.AnalysisResult{}, fmt.Errorf("%w: status %d", ErrAnalysisFailed, resp.StatusCode)
	}

	res, err := decodeDocument(body)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	res.AnalyzedVideo = sub.MatchVideo
	if res.GeneratedAt.IsZero() {
		res.GeneratedAt = p.opts.now().UTC()
	}
	return res, nil
}

func writeAnalysisBody(mw *multipart.Writer, meta model.Attachment, video io.Reader, matchData []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, meta.Name))
	ct := meta.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, video); err != nil {
		return err
	}
	if err := mw.WriteField("match_data", string(matchData)); err != nil {
		return err
	}
	return mw.Close()
}
