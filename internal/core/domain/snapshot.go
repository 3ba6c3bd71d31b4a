package domain

// Snapshot is the persisted representation of the queue and completed-job
// history, stored under a single well-known key by the snapshot store.
type Snapshot struct {
	Queue   []Job `json:"queue"`
	History []Job `json:"history"`
}

// StateSnapshot is the read-only projection handed to observers (the UI or
// API layer). PendingApprovals is derived from Queue, not stored.
type StateSnapshot struct {
	Queue            []Job `json:"queue"`
	PendingApprovals []Job `json:"pending_approvals"`
	History          []Job `json:"history"`
}
