package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opencouncil/scribe/diarization"
	"github.com/opencouncil/scribe/httpclient"
)

// HTTPSummarizer implements Summarizer against a summarization service.
type HTTPSummarizer struct {
	client *httpclient.Client
	model  string
}

// NewHTTPSummarizer creates a summarizer client.
func NewHTTPSummarizer(baseURL, model string, timeout time.Duration) (*HTTPSummarizer, error) {
	client, err := httpclient.New(httpclient.Config{
		BaseURL: baseURL,
		Timeout: timeout,
		Retry:   httpclient.DefaultRetryConfig(),
	})
	if err != nil {
		return nil, err
	}
	return &HTTPSummarizer{client: client, model: model}, nil
}

type summaryRequest struct {
	Transcript string `json:"transcript"`
	Model      string `json:"model,omitempty"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// Summarize renders the attributed transcript as speaker-prefixed lines and
// requests a summary.
func (s *HTTPSummarizer) Summarize(ctx context.Context, utterances []diarization.AttributedUtterance) (string, error) {
	var b strings.Builder
	for _, u := range utterances {
		name := u.SpeakerName
		if name == "" {
			name = fmt.Sprintf("Speaker %d", u.Speaker)
		}
		fmt.Fprintf(&b, "%s: %s\n", name, u.Text)
	}

	resp, err := httpclient.Post[summaryResponse](s.client, ctx, "/v1/summaries", summaryRequest{
		Transcript: b.String(),
		Model:      s.model,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if resp.Data.Error != "" {
		return "", fmt.Errorf("summarize: %s", resp.Data.Error)
	}
	return resp.Data.Summary, nil
}
