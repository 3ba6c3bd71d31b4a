package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/brunovale/ariaOS/internal/core/ports"
	"github.com/google/uuid"
)

// EngineResolver maps a job type to the engine that owns it.
type EngineResolver interface {
	Resolve(t domain.JobType) (ports.Engine, error)
}

// JobManager is the single authority over the job lifecycle. It serializes
// execution (at most one job processing at any instant), applies the
// approval-gate policy, persists a snapshot after every mutation and keeps
// completed jobs in a history log.
type JobManager struct {
	logger  *slog.Logger
	store   ports.SnapshotStore
	engines EngineResolver
	audit   ports.AuditSink

	mu      sync.Mutex
	queue   []domain.Job
	history []domain.Job

	// busy collapses overlapping Process triggers (enqueue, approve,
	// scheduler tick) into one active drain cycle.
	busy atomic.Bool

	// onDone, when set, is invoked after a job reaches a terminal state.
	// Called without the state lock held.
	onDone JobObserver

	now func() time.Time
}

// JobObserver receives a copy of every job that reaches a terminal state.
type JobObserver func(job domain.Job)

func NewJobManager(logger *slog.Logger, store ports.SnapshotStore, engines EngineResolver, audit ports.AuditSink) *JobManager {
	m := &JobManager{
		logger:  logger,
		store:   store,
		engines: engines,
		audit:   audit,
		now:     time.Now,
	}

	// Best-effort reload of the durable copy. A load failure means we start
	// with an empty queue; the in-memory state is authoritative from here.
	snap, err := store.Load(context.Background())
	if err != nil {
		logger.Warn("snapshot load failed, starting empty", "error", err)
		return m
	}
	m.queue = snap.Queue
	m.history = snap.History

	// A job left processing by a previous run of the process is stale;
	// requeue it so the next cycle picks it up again.
	for i := range m.queue {
		if m.queue[i].Status == domain.JobStatusProcessing {
			m.queue[i].Status = domain.JobStatusPending
		}
	}
	return m
}

// SetJobObserver registers fn as the terminal-state callback. Wire it up
// before the first trigger fires; it is not safe to swap mid-flight.
func (m *JobManager) SetJobObserver(fn JobObserver) {
	m.onDone = fn
}

// Enqueue constructs a job, applies the static approval policy and appends
// it to the queue. It never blocks on execution: the processing loop is
// triggered asynchronously.
func (m *JobManager) Enqueue(ctx context.Context, t domain.JobType, payload json.RawMessage, scheduledFor *time.Time) (domain.Job, error) {
	if !t.Valid() {
		return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrInvalidJobType, t)
	}

	job := domain.Job{
		ID:               domain.JobID(uuid.NewString()),
		Type:             t,
		Payload:          payload,
		Status:           domain.JobStatusPending,
		CreatedAt:        m.now(),
		ScheduledFor:     scheduledFor,
		RequiresApproval: t.RequiresApproval(),
	}

	m.mu.Lock()
	m.queue = append(m.queue, job)
	m.persistLocked(ctx)
	m.mu.Unlock()

	m.logger.Info("job enqueued", "job_id", job.ID, "type", job.Type, "requires_approval", job.RequiresApproval)

	go m.Process(context.Background())
	return job, nil
}

// Approve releases a job waiting at the approval gate. Approving an id that
// does not exist, or that is not currently awaiting approval, is a no-op;
// approval is deliberately idempotent.
func (m *JobManager) Approve(ctx context.Context, id domain.JobID) {
	m.mu.Lock()
	released := false
	for i := range m.queue {
		if m.queue[i].ID == id && m.queue[i].Status == domain.JobStatusAwaitingApproval {
			m.queue[i].Status = domain.JobStatusPending
			m.queue[i].RequiresApproval = false
			released = true
			break
		}
	}
	if released {
		m.persistLocked(ctx)
	}
	m.mu.Unlock()

	if !released {
		m.logger.Debug("approve ignored, job not awaiting approval", "job_id", id)
		return
	}

	m.logger.Info("job approved", "job_id", id)
	go m.Process(context.Background())
}

// Process drains all currently eligible jobs, one at a time, in insertion
// order. Re-entrant calls return immediately; the guard flag is the sole
// synchronization primitive between the trigger sources.
func (m *JobManager) Process(ctx context.Context) {
	for {
		if !m.busy.CompareAndSwap(false, true) {
			return
		}
		m.drain(ctx)
		m.busy.Store(false)

		// A trigger that fired while the guard was still held lost the CAS
		// and was dropped. Re-check eligibility after releasing so its job
		// is not stranded until the next scheduler tick.
		m.mu.Lock()
		idle := m.nextEligibleLocked() < 0
		m.mu.Unlock()
		if idle {
			return
		}
	}
}

func (m *JobManager) drain(ctx context.Context) {
	for {
		m.mu.Lock()
		idx := m.nextEligibleLocked()
		if idx < 0 {
			m.mu.Unlock()
			return
		}

		if m.queue[idx].RequiresApproval {
			// Gate the job and end this pass. It leaves pending, so jobs
			// behind it become reachable on the next pass.
			m.queue[idx].Status = domain.JobStatusAwaitingApproval
			m.persistLocked(ctx)
			id := m.queue[idx].ID
			m.mu.Unlock()
			m.logger.Info("job awaiting approval", "job_id", id)
			return
		}

		m.queue[idx].Status = domain.JobStatusProcessing
		m.persistLocked(ctx)
		job := m.queue[idx]
		m.mu.Unlock()

		result, err := m.execute(ctx, job)

		m.mu.Lock()
		i := m.indexLocked(job.ID)
		if i < 0 {
			// Should not happen: nothing else removes queue entries.
			m.mu.Unlock()
			m.logger.Error("processed job vanished from queue", "job_id", job.ID)
			continue
		}
		if err != nil {
			msg := err.Error()
			m.queue[i].Status = domain.JobStatusFailed
			m.queue[i].Error = &msg
			failed := m.queue[i]
			m.persistLocked(ctx)
			m.mu.Unlock()
			m.logger.Error("job failed", "job_id", job.ID, "type", job.Type, "error", err)
			m.notifyDone(failed)
			continue
		}

		m.queue[i].Status = domain.JobStatusCompleted
		m.queue[i].Result = result
		done := m.queue[i]
		m.history = append(m.history, done)
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		m.persistLocked(ctx)
		m.mu.Unlock()

		m.logger.Info("job completed", "job_id", done.ID, "type", done.Type)
		m.recordAudit(ctx, done)
		m.notifyDone(done)
	}
}

func (m *JobManager) notifyDone(job domain.Job) {
	if m.onDone != nil {
		m.onDone(job)
	}
}

// nextEligibleLocked returns the index of the first pending job whose
// scheduled time, if any, has passed.
func (m *JobManager) nextEligibleLocked() int {
	now := m.now()
	for i, job := range m.queue {
		if job.Status != domain.JobStatusPending {
			continue
		}
		if job.ScheduledFor != nil && job.ScheduledFor.After(now) {
			continue
		}
		return i
	}
	return -1
}

func (m *JobManager) indexLocked(id domain.JobID) int {
	for i := range m.queue {
		if m.queue[i].ID == id {
			return i
		}
	}
	return -1
}

// execute resolves the engine for the job and runs it. A panic inside an
// engine is caught at this boundary and converted into a job failure so the
// processing loop never crashes the host process.
func (m *JobManager) execute(ctx context.Context, job domain.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	eng, err := m.engines.Resolve(job.Type)
	if err != nil {
		return nil, err
	}
	return eng.Execute(ctx, job)
}

// persistLocked saves the current snapshot. Store errors are logged and
// swallowed: the in-memory state stays authoritative for this process.
func (m *JobManager) persistLocked(ctx context.Context) {
	snap := domain.Snapshot{
		Queue:   append([]domain.Job(nil), m.queue...),
		History: append([]domain.Job(nil), m.history...),
	}
	if err := m.store.Save(ctx, snap); err != nil {
		m.logger.Warn("snapshot save failed", "error", err)
	}
}

// recordAudit writes a best-effort audit note for a completed job. Sink
// failures never affect the job's outcome.
func (m *JobManager) recordAudit(ctx context.Context, job domain.Job) {
	if m.audit == nil {
		return
	}
	note := fmt.Sprintf("job %s (%s) completed: %s", job.ID, job.Type, string(job.Result))
	if err := m.audit.Record(ctx, note); err != nil {
		m.logger.Warn("audit record failed", "job_id", job.ID, "error", err)
	}
}

// Snapshot returns the observer projection: active queue, the subset of it
// awaiting approval, and the completed-job history. Pure read.
func (m *JobManager) Snapshot() domain.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := domain.StateSnapshot{
		Queue:   append([]domain.Job(nil), m.queue...),
		History: append([]domain.Job(nil), m.history...),
	}
	for _, job := range snap.Queue {
		if job.Status == domain.JobStatusAwaitingApproval {
			snap.PendingApprovals = append(snap.PendingApprovals, job)
		}
	}
	return snap
}
