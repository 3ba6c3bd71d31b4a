package domain

import (
	"time"
)

type PlanID string
type PlanStatus string
type PlanStepStatus string

const (
	PlanStatusRunning   PlanStatus = "running"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"

	StepStatusPending    PlanStepStatus = "pending"
	StepStatusInProgress PlanStepStatus = "in_progress"
	StepStatusCompleted  PlanStepStatus = "completed"
	StepStatusFailed     PlanStepStatus = "failed"
)

// Plan is an ordered sequence of tool invocations executed as a unit within
// a single assistant turn. Plans are ephemeral: they live for the duration
// of the run and are reported back to the caller, never queued.
type Plan struct {
	ID        PlanID     `json:"id"`
	Goal      string     `json:"goal"`
	Steps     []PlanStep `json:"steps"`
	Status    PlanStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	Error     *string    `json:"error,omitempty"`
}

// PlanStep is one tool invocation inside a plan.
type PlanStep struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Status PlanStepStatus `json:"status"`
	Result any            `json:"result,omitempty"`
	Error  *string        `json:"error,omitempty"`
}

// ToolCall is the declared form of a step before execution, as produced by
// the LLM layer.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}
