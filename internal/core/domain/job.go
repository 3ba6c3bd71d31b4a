package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type JobID string

type JobType string

// Closed set of job types. The engine dispatcher switches exhaustively over
// these; a type outside the set fails dispatch with ErrUnknownJobType.
const (
	JobTypePostSocial     JobType = "post_social"
	JobTypeCreateListing  JobType = "create_listing"
	JobTypeDeployCode     JobType = "deploy_code"
	JobTypeAnalyzeMetrics JobType = "analyze_metrics"
	JobTypeSyncInventory  JobType = "sync_inventory"
	JobTypeEbayReprice    JobType = "ebay_reprice"
	JobTypeEbaySyncOrders JobType = "ebay_sync_orders"
	JobTypeEbayBulkList   JobType = "ebay_bulk_list"
)

type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusProcessing       JobStatus = "processing"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// Job is a unit of queued, potentially side-effecting work. The payload is
// opaque to the queue; only the matching engine unmarshals it.
type Job struct {
	ID               JobID           `json:"id"`
	Type             JobType         `json:"type"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Status           JobStatus       `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	ScheduledFor     *time.Time      `json:"scheduled_for,omitempty"`
	RequiresApproval bool            `json:"requires_approval"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            *string         `json:"error,omitempty"`
}

// highStakes lists the job types that must be approved by a human before
// they run. The flag is computed once at enqueue time.
var highStakes = map[JobType]bool{
	JobTypePostSocial:    true,
	JobTypeDeployCode:    true,
	JobTypeCreateListing: true,
	JobTypeEbayBulkList:  true,
}

// RequiresApproval reports whether the type falls under the approval gate.
func (t JobType) RequiresApproval() bool {
	return highStakes[t]
}

// Valid reports whether t is a member of the closed job-type set.
func (t JobType) Valid() bool {
	switch t {
	case JobTypePostSocial, JobTypeCreateListing, JobTypeDeployCode,
		JobTypeAnalyzeMetrics, JobTypeSyncInventory,
		JobTypeEbayReprice, JobTypeEbaySyncOrders, JobTypeEbayBulkList:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidJobType = errors.New("invalid job type")
)
