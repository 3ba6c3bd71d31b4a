package ports

import (
	"context"
	"encoding/json"

	"github.com/brunovale/ariaOS/internal/core/domain"
)

// ToolExecutor performs a named action with structured arguments. It is the
// seam between the plan runner and the surrounding application: the result
// may be an application object or the structured error shape
// domain.ErrorResult, which the plan runner treats as a failure without a
// Go error being returned.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Engine performs the external side effect for one or more job types.
// Implementations never mutate the job; they read its payload and return a
// result document or an error.
type Engine interface {
	Execute(ctx context.Context, job domain.Job) (json.RawMessage, error)
}

// SnapshotStore persists the queue and history under a single well-known
// key. Persistence is best effort: the job manager logs and swallows store
// errors, keeping its in-memory state authoritative.
type SnapshotStore interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, snap domain.Snapshot) error
}

// AuditSink records a free-text audit note after each successful job
// completion. Failures must never affect the job's own outcome.
type AuditSink interface {
	Record(ctx context.Context, text string) error
}
