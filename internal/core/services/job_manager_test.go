package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/brunovale/ariaOS/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore is an in-memory snapshot store with an optional injected failure.
type memStore struct {
	mu      sync.Mutex
	snap    domain.Snapshot
	saves   int
	saveErr error
	loadErr error
}

func (s *memStore) Load(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.Snapshot{}, s.loadErr
	}
	return s.snap, nil
}

func (s *memStore) Save(ctx context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snap = snap
	s.saves++
	return nil
}

// funcEngine adapts a function to the Engine port.
type funcEngine func(ctx context.Context, job domain.Job) (json.RawMessage, error)

func (f funcEngine) Execute(ctx context.Context, job domain.Job) (json.RawMessage, error) {
	return f(ctx, job)
}

// funcResolver routes every known job type to a single engine.
type funcResolver struct {
	engine ports.Engine
}

func (r funcResolver) Resolve(t domain.JobType) (ports.Engine, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, t)
	}
	return r.engine, nil
}

type memAudit struct {
	mu    sync.Mutex
	notes []string
	err   error
}

func (a *memAudit) Record(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.notes = append(a.notes, text)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func okEngine() funcEngine {
	return func(ctx context.Context, job domain.Job) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}
}

func newTestManager(t *testing.T, eng ports.Engine) (*JobManager, *memStore, *memAudit) {
	t.Helper()
	store := &memStore{}
	audit := &memAudit{}
	m := NewJobManager(testLogger(), store, funcResolver{engine: eng}, audit)
	return m, store, audit
}

func waitTerminal(t *testing.T, m *JobManager, id domain.JobID) domain.Job {
	t.Helper()
	var got domain.Job
	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		for _, job := range snap.Queue {
			if job.ID == id && job.Status.Terminal() {
				got = job
				return true
			}
		}
		for _, job := range snap.History {
			if job.ID == id {
				got = job
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestEnqueue_NonGatedRunsToCompletion(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory,
		json.RawMessage(`{"productId":"p1","qty":3}`), nil)
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.JSONEq(t, `{"ok":true}`, string(done.Result))
}

func TestEnqueue_GatedStopsAtApprovalGate(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	job, err := m.Enqueue(context.Background(), domain.JobTypePostSocial,
		json.RawMessage(`{"platform":"x","content":"hi"}`), nil)
	require.NoError(t, err)
	assert.True(t, job.RequiresApproval)

	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return len(snap.PendingApprovals) == 1 && snap.PendingApprovals[0].ID == job.ID
	}, 2*time.Second, 5*time.Millisecond)

	// It must not run until approved.
	time.Sleep(50 * time.Millisecond)
	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, domain.JobStatusAwaitingApproval, snap.Queue[0].Status)
	assert.Empty(t, snap.History)

	m.Approve(context.Background(), job.ID)
	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
}

func TestEnqueue_InvalidTypeRejected(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	_, err := m.Enqueue(context.Background(), domain.JobType("make_coffee"), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidJobType)
}

func TestApprove_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	// Unknown id: no panic, no state change.
	m.Approve(context.Background(), domain.JobID("nope"))

	job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
	require.NoError(t, err)
	done := waitTerminal(t, m, job.ID)
	require.Equal(t, domain.JobStatusCompleted, done.Status)

	// Already completed: still a no-op.
	m.Approve(context.Background(), job.ID)
	snap := m.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Len(t, snap.History, 1)
}

func TestProcess_ScheduledForRespected(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m.now = clock.Now

	runAt := clock.Now().Add(time.Hour)
	job, err := m.Enqueue(context.Background(), domain.JobTypeEbaySyncOrders, nil, &runAt)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		m.Process(context.Background())
	}
	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, domain.JobStatusPending, snap.Queue[0].Status)

	clock.Advance(2 * time.Hour)
	m.Process(context.Background())

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
}

func TestProcess_SingleConcurrency(t *testing.T) {
	var running, peak int32
	eng := funcEngine(func(ctx context.Context, job domain.Job) (json.RawMessage, error) {
		current := atomic.AddInt32(&running, 1)
		for {
			max := atomic.LoadInt32(&peak)
			if current <= max || atomic.CompareAndSwapInt32(&peak, max, current) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return json.RawMessage(`{}`), nil
	})
	m, _, _ := newTestManager(t, eng)

	const n = 8
	ids := make([]domain.JobID, 0, n)
	for i := 0; i < n; i++ {
		job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		done := waitTerminal(t, m, id)
		assert.Equal(t, domain.JobStatusCompleted, done.Status)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak), "no two jobs may process simultaneously")
}

func TestProcess_FailedJobStaysInQueue(t *testing.T) {
	eng := funcEngine(func(ctx context.Context, job domain.Job) (json.RawMessage, error) {
		return nil, errors.New("integration down")
	})
	m, _, audit := newTestManager(t, eng)

	job, err := m.Enqueue(context.Background(), domain.JobTypeEbayReprice, nil, nil)
	require.NoError(t, err)

	failed := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "integration down", *failed.Error)

	snap := m.Snapshot()
	assert.Len(t, snap.Queue, 1, "failed jobs stay visible for inspection")
	assert.Empty(t, snap.History)
	assert.Empty(t, audit.notes, "no audit note on failure")

	// Not retried automatically.
	m.Process(context.Background())
	snap = m.Snapshot()
	assert.Equal(t, domain.JobStatusFailed, snap.Queue[0].Status)
}

func TestProcess_CompletedJobMovesToHistory(t *testing.T) {
	m, _, audit := newTestManager(t, okEngine())

	job, err := m.Enqueue(context.Background(), domain.JobTypeAnalyzeMetrics,
		json.RawMessage(`{"platform":"x"}`), nil)
	require.NoError(t, err)
	waitTerminal(t, m, job.ID)

	snap := m.Snapshot()
	assert.Empty(t, snap.Queue)
	require.Len(t, snap.History, 1)
	assert.Equal(t, job.ID, snap.History[0].ID)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.notes, 1)
	assert.Contains(t, audit.notes[0], string(job.ID))
	assert.Contains(t, audit.notes[0], "analyze_metrics")
}

func TestProcess_AuditFailureDoesNotFailJob(t *testing.T) {
	store := &memStore{}
	audit := &memAudit{err: errors.New("sink offline")}
	m := NewJobManager(testLogger(), store, funcResolver{engine: okEngine()}, audit)

	job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
}

func TestProcess_PersistenceErrorSwallowed(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	m := NewJobManager(testLogger(), store, funcResolver{engine: okEngine()}, &memAudit{})

	job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
	require.NoError(t, err, "store errors must not surface to the caller")

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
}

func TestProcess_HeadOfQueueGateDoesNotStarveNextTrigger(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	gated, err := m.Enqueue(context.Background(), domain.JobTypeDeployCode,
		json.RawMessage(`{"projectName":"aria"}`), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(m.Snapshot().PendingApprovals) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// A later non-gated job is reached on the next trigger because the gated
	// job has left pending.
	later, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
	require.NoError(t, err)

	done := waitTerminal(t, m, later.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)

	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, gated.ID, snap.Queue[0].ID)
	assert.Equal(t, domain.JobStatusAwaitingApproval, snap.Queue[0].Status)
}

func TestProcess_UnknownTypeFromSnapshotFails(t *testing.T) {
	// A corrupt or future-version snapshot can carry a type the dispatcher
	// does not know. It must fail that job only.
	store := &memStore{snap: domain.Snapshot{
		Queue: []domain.Job{{
			ID:     domain.JobID("j1"),
			Type:   domain.JobType("teleport"),
			Status: domain.JobStatusPending,
		}},
	}}
	m := NewJobManager(testLogger(), store, funcResolver{engine: okEngine()}, &memAudit{})

	m.Process(context.Background())

	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, domain.JobStatusFailed, snap.Queue[0].Status)
	require.NotNil(t, snap.Queue[0].Error)
	assert.Contains(t, *snap.Queue[0].Error, "unknown job type")
}

func TestNewJobManager_RequeuesStaleProcessing(t *testing.T) {
	store := &memStore{snap: domain.Snapshot{
		Queue: []domain.Job{{
			ID:     domain.JobID("j1"),
			Type:   domain.JobTypeSyncInventory,
			Status: domain.JobStatusProcessing,
		}},
	}}
	m := NewJobManager(testLogger(), store, funcResolver{engine: okEngine()}, &memAudit{})

	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, domain.JobStatusPending, snap.Queue[0].Status)
}

func TestNewJobManager_LoadErrorStartsEmpty(t *testing.T) {
	store := &memStore{loadErr: errors.New("corrupt file")}
	m := NewJobManager(testLogger(), store, funcResolver{engine: okEngine()}, &memAudit{})

	snap := m.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Empty(t, snap.History)
}

func TestProcess_EnginePanicCapturedAsFailure(t *testing.T) {
	eng := funcEngine(func(ctx context.Context, job domain.Job) (json.RawMessage, error) {
		panic("boom")
	})
	m, _, _ := newTestManager(t, eng)

	job, err := m.Enqueue(context.Background(), domain.JobTypeEbayReprice, nil, nil)
	require.NoError(t, err)

	failed := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "panic")
}

func TestProcess_EnqueueWhileGuardHeldNotStranded(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	// Take the processing guard the way an in-flight drain holds it. The
	// enqueue trigger below loses the CAS and is dropped, so the job sits
	// pending with no goroutine working the queue.
	require.True(t, m.busy.CompareAndSwap(false, true))

	job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, domain.JobStatusPending, snap.Queue[0].Status)

	// Once the holder releases the guard, the next Process pass must pick
	// the job up; no further enqueue or scheduler tick is needed.
	m.busy.Store(false)
	m.Process(context.Background())

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
}

func TestProcess_ConcurrentEnqueuesAllDrain(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	// Hammer Enqueue from many goroutines with no scheduler running. Every
	// trigger races the active drain cycle for the guard; jobs whose trigger
	// lost the race must still be drained by the winning cycle's re-check.
	const n = 64
	ids := make([]domain.JobID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
			assert.NoError(t, err)
			ids[i] = job.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		done := waitTerminal(t, m, id)
		assert.Equal(t, domain.JobStatusCompleted, done.Status)
	}
}

func TestProcess_ObserverSeesTerminalJobs(t *testing.T) {
	eng := funcEngine(func(ctx context.Context, job domain.Job) (json.RawMessage, error) {
		if job.Type == domain.JobTypeAnalyzeMetrics {
			return nil, errors.New("metrics source unreachable")
		}
		return json.RawMessage(`{"ok":true}`), nil
	})
	m, _, _ := newTestManager(t, eng)

	var mu sync.Mutex
	seen := map[domain.JobID]domain.JobStatus{}
	m.SetJobObserver(func(job domain.Job) {
		mu.Lock()
		seen[job.ID] = job.Status
		mu.Unlock()
	})

	good, err := m.Enqueue(context.Background(), domain.JobTypeSyncInventory, nil, nil)
	require.NoError(t, err)
	bad, err := m.Enqueue(context.Background(), domain.JobTypeAnalyzeMetrics, nil, nil)
	require.NoError(t, err)

	waitTerminal(t, m, good.ID)
	waitTerminal(t, m, bad.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.JobStatusCompleted, seen[good.ID])
	assert.Equal(t, domain.JobStatusFailed, seen[bad.ID])
}

func TestProcess_GatedJobNotReportedDone(t *testing.T) {
	m, _, _ := newTestManager(t, okEngine())

	var calls atomic.Int32
	m.SetJobObserver(func(domain.Job) { calls.Add(1) })

	job, err := m.Enqueue(context.Background(), domain.JobTypePostSocial, nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return len(snap.Queue) == 1 && snap.Queue[0].Status == domain.JobStatusAwaitingApproval
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, calls.Load())

	m.Approve(context.Background(), job.ID)
	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, int32(1), calls.Load())
}
