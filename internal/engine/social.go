package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brunovale/ariaOS/internal/core/domain"
)

// SocialClient is the seam to the social publishing integration.
type SocialClient interface {
	// Publish posts content to a platform and returns a reference (URL or
	// post id) to the published artifact.
	Publish(ctx context.Context, platform, content string) (string, error)

	// Metrics fetches current analytics for a platform.
	Metrics(ctx context.Context, platform string) (map[string]any, error)
}

// SocialEngine handles post_social and analyze_metrics jobs.
type SocialEngine struct {
	logger *slog.Logger
	client SocialClient
}

func NewSocialEngine(logger *slog.Logger, client SocialClient) *SocialEngine {
	return &SocialEngine{logger: logger, client: client}
}

type postSocialPayload struct {
	Platform string `json:"platform"`
	Content  string `json:"content"`
}

type analyzeMetricsPayload struct {
	Platform string `json:"platform"`
}

func (e *SocialEngine) Execute(ctx context.Context, job domain.Job) (json.RawMessage, error) {
	switch job.Type {
	case domain.JobTypePostSocial:
		return e.post(ctx, job.Payload)
	case domain.JobTypeAnalyzeMetrics:
		return e.analyze(ctx, job.Payload)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.Type)
	}
}

func (e *SocialEngine) post(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p postSocialPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid post_social payload: %w", err)
	}
	if p.Platform == "" || p.Content == "" {
		return nil, fmt.Errorf("post_social payload requires platform and content")
	}

	ref, err := e.client.Publish(ctx, p.Platform, p.Content)
	if err != nil {
		return nil, fmt.Errorf("publish to %s failed: %w", p.Platform, err)
	}

	e.logger.Info("social post published", "platform", p.Platform, "ref", ref)
	return json.Marshal(map[string]any{"platform": p.Platform, "ref": ref})
}

func (e *SocialEngine) analyze(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p analyzeMetricsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid analyze_metrics payload: %w", err)
	}
	if p.Platform == "" {
		return nil, fmt.Errorf("analyze_metrics payload requires platform")
	}

	metrics, err := e.client.Metrics(ctx, p.Platform)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics for %s failed: %w", p.Platform, err)
	}
	return json.Marshal(metrics)
}
