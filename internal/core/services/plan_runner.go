package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/brunovale/ariaOS/internal/core/ports"
	"github.com/google/uuid"
)

// PlanObserver is notified synchronously after every step-status change so
// a UI can render live progress.
type PlanObserver func(plan domain.Plan)

// PlanRunner executes a declared ordered list of tool invocations against
// the tool executor, strictly in sequence, stopping at the first failure.
// Tool errors are captured into the plan state, never returned as Go errors.
type PlanRunner struct {
	logger   *slog.Logger
	executor ports.ToolExecutor
	notify   PlanObserver
}

func NewPlanRunner(logger *slog.Logger, executor ports.ToolExecutor, notify PlanObserver) *PlanRunner {
	return &PlanRunner{logger: logger, executor: executor, notify: notify}
}

// Run executes the plan and returns its final state, including every step's
// terminal status and result or error.
func (r *PlanRunner) Run(ctx context.Context, goal string, calls []domain.ToolCall) domain.Plan {
	plan := domain.Plan{
		ID:        domain.PlanID(uuid.NewString()),
		Goal:      goal,
		Status:    domain.PlanStatusRunning,
		StartedAt: time.Now(),
	}
	for _, call := range calls {
		plan.Steps = append(plan.Steps, domain.PlanStep{
			ID:     uuid.NewString(),
			Name:   call.Name,
			Args:   call.Args,
			Status: domain.StepStatusPending,
		})
	}

	r.logger.Info("plan started", "plan_id", plan.ID, "goal", goal, "steps", len(plan.Steps))

	for i := range plan.Steps {
		step := &plan.Steps[i]

		step.Status = domain.StepStatusInProgress
		r.publish(plan)

		result, err := r.safeExecute(ctx, step.Name, step.Args)
		if err == nil {
			// A structured error result counts as a failure even though the
			// executor returned no Go error.
			if structured, ok := domain.AsErrorResult(result); ok {
				err = errors.New(structured.Message)
			}
		}

		if err != nil {
			msg := err.Error()
			step.Status = domain.StepStatusFailed
			step.Error = &msg
			plan.Status = domain.PlanStatusFailed
			plan.Error = &msg
			r.publish(plan)
			r.logger.Warn("plan failed", "plan_id", plan.ID, "step", step.Name, "error", msg)
			return plan
		}

		step.Result = result
		step.Status = domain.StepStatusCompleted
		r.publish(plan)
	}

	plan.Status = domain.PlanStatusCompleted
	r.publish(plan)
	r.logger.Info("plan completed", "plan_id", plan.ID)
	return plan
}

// safeExecute invokes the tool executor with panic recovery, so a misbehaving
// tool is indistinguishable from one that returned an error.
func (r *PlanRunner) safeExecute(ctx context.Context, name string, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panic: %v", rec)
		}
	}()
	return r.executor.Execute(ctx, name, args)
}

func (r *PlanRunner) publish(plan domain.Plan) {
	if r.notify == nil {
		return
	}
	// Hand the observer its own copy of the step slice; the runner keeps
	// mutating the original.
	snapshot := plan
	snapshot.Steps = append([]domain.PlanStep(nil), plan.Steps...)
	r.notify(snapshot)
}
