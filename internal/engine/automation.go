package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brunovale/ariaOS/internal/core/domain"
)

// DeployClient is the seam to the deployment integration.
type DeployClient interface {
	// Deploy triggers a deployment for a project and returns a summary of
	// the triggered run (deployment id, target, etc.).
	Deploy(ctx context.Context, projectName string) (map[string]any, error)
}

// AutomationEngine handles deploy_code jobs.
type AutomationEngine struct {
	logger *slog.Logger
	client DeployClient
}

func NewAutomationEngine(logger *slog.Logger, client DeployClient) *AutomationEngine {
	return &AutomationEngine{logger: logger, client: client}
}

type deployCodePayload struct {
	ProjectName string `json:"projectName"`
}

func (e *AutomationEngine) Execute(ctx context.Context, job domain.Job) (json.RawMessage, error) {
	if job.Type != domain.JobTypeDeployCode {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.Type)
	}

	var p deployCodePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid deploy_code payload: %w", err)
	}
	if p.ProjectName == "" {
		return nil, fmt.Errorf("deploy_code payload requires projectName")
	}

	summary, err := e.client.Deploy(ctx, p.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("deploy %s failed: %w", p.ProjectName, err)
	}

	e.logger.Info("deployment triggered", "project", p.ProjectName)
	return json.Marshal(summary)
}
