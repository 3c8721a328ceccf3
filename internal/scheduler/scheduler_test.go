package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlab-dev/flowlab/internal/store"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// mockSchedulerStore satisfies store.Store for scheduler tests.
type mockSchedulerStore struct {
	store.Store
	mu        sync.Mutex
	jobs      map[string]*store.ScheduledJob
	workflows map[string]*schema.Workflow
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		jobs:      make(map[string]*store.ScheduledJob),
		workflows: make(map[string]*schema.Workflow),
	}
}

func (m *mockSchedulerStore) addWorkflow(wf *schema.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf
}

func (m *mockSchedulerStore) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return wf, nil
}

func (m *mockSchedulerStore) CreateScheduledJob(_ context.Context, job *store.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockSchedulerStore) GetScheduledJob(_ context.Context, id string) (*store.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scheduled_job %q not found", id)
	}
	cp := *j
	return &cp, nil
}

func (m *mockSchedulerStore) UpdateScheduledJob(_ context.Context, id string, update store.ScheduledJobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	if update.Enabled != nil {
		j.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		j.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		j.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != nil {
		j.LastRunStatus = *update.LastRunStatus
	}
	return nil
}

func (m *mockSchedulerStore) ListScheduledJobs(_ context.Context, filter store.ScheduledJobFilter) ([]*store.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*store.ScheduledJob
	for _, j := range m.jobs {
		if filter.EnabledOnly && !j.Enabled {
			continue
		}
		if filter.WorkflowID != "" && j.WorkflowID != filter.WorkflowID {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}
	return result, nil
}

// mockRunner tracks Run calls.
type mockRunner struct {
	mu    sync.Mutex
	calls []runCall
	err   error
}

type runCall struct {
	WorkflowID string
	Input      string
}

func (r *mockRunner) Run(_ context.Context, wf *schema.Workflow, input string, _ map[string]string) (*schema.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runCall{WorkflowID: wf.ID, Input: input})
	if r.err != nil {
		return nil, r.err
	}
	return &schema.Run{WorkflowID: wf.ID, Status: schema.RunStatusCompleted}, nil
}

func (r *mockRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(s store.Store, runner WorkflowRunner) *Scheduler {
	return NewScheduler(s, runner, slog.Default())
}

func seedJob(t *testing.T, ms *mockSchedulerStore, id string, enabled bool, nextRunAt *time.Time) {
	t.Helper()
	wfID := "wf-" + id
	ms.addWorkflow(&schema.Workflow{ID: wfID, Name: "wf for " + id})
	require.NoError(t, ms.CreateScheduledJob(context.Background(), &store.ScheduledJob{
		ID:             id,
		WorkflowID:     wfID,
		CronExpression: "0 * * * *",
		Input:          "scheduled input",
		Enabled:        enabled,
		NextRunAt:      nextRunAt,
	}))
}

// --- Tests ---

func TestCalculateNextRun(t *testing.T) {
	sched := newTestScheduler(newMockSchedulerStore(), &mockRunner{})
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	// Every hour at minute 0.
	next, err := sched.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), next)

	// Every 15 minutes.
	next, err = sched.CalculateNextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), next)

	// Daily at midnight.
	next, err = sched.CalculateNextRun("0 0 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), next)

	// Invalid expression.
	_, err = sched.CalculateNextRun("invalid cron", from)
	require.Error(t, err)
}

func TestTickRunsDueJobs(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	seedJob(t, ms, "job-1", true, &past)

	sched.tick(ctx)

	assert.Equal(t, 1, runner.callCount())

	// Verify job was updated.
	got, err := ms.GetScheduledJob(ctx, "job-1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastRunAt)
	assert.NotNil(t, got.NextRunAt)
	assert.Equal(t, "success", got.LastRunStatus)
}

func TestTickSkipsNotDueJobs(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	future := time.Now().UTC().Add(time.Hour)
	seedJob(t, ms, "job-future", true, &future)

	sched.tick(context.Background())

	assert.Equal(t, 0, runner.callCount())
}

func TestTickRunsJobWithNilNextRunAt(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	// Nil NextRunAt means never scheduled before; treated as due.
	seedJob(t, ms, "job-nil-next", true, nil)

	sched.tick(context.Background())

	assert.Equal(t, 1, runner.callCount())
}

func TestDisabledJobsSkipped(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	past := time.Now().UTC().Add(-time.Hour)
	seedJob(t, ms, "job-disabled", false, &past)

	sched.tick(context.Background())

	assert.Equal(t, 0, runner.callCount())
}

func TestTickPassesJobInput(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	past := time.Now().UTC().Add(-time.Hour)
	seedJob(t, ms, "job-input", true, &past)

	sched.tick(context.Background())

	require.Equal(t, 1, runner.callCount())
	runner.mu.Lock()
	call := runner.calls[0]
	runner.mu.Unlock()
	assert.Equal(t, "wf-job-input", call.WorkflowID)
	assert.Equal(t, "scheduled input", call.Input)
}

func TestJobRunFailure(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{err: assert.AnError}
	sched := newTestScheduler(ms, runner)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	seedJob(t, ms, "job-fail", true, &past)

	sched.tick(ctx)

	got, err := ms.GetScheduledJob(ctx, "job-fail")
	require.NoError(t, err)
	assert.Equal(t, "error", got.LastRunStatus)
	assert.NotNil(t, got.NextRunAt)
}

func TestJobMissingWorkflow(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, ms.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "job-orphan",
		WorkflowID:     "missing-wf",
		CronExpression: "0 * * * *",
		Enabled:        true,
		NextRunAt:      &past,
	}))

	sched.tick(ctx)

	assert.Equal(t, 0, runner.callCount())
	got, err := ms.GetScheduledJob(ctx, "job-orphan")
	require.NoError(t, err)
	assert.Equal(t, "error", got.LastRunStatus)
}

func TestMissedRecovery(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	ctx := context.Background()
	past := time.Now().UTC().Add(-2 * time.Hour)
	seedJob(t, ms, "job-missed", true, &past)

	require.NoError(t, sched.RecoverMissed(ctx))

	assert.Equal(t, 1, runner.callCount())

	got, err := ms.GetScheduledJob(ctx, "job-missed")
	require.NoError(t, err)
	assert.Equal(t, "success", got.LastRunStatus)
	assert.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(time.Now().UTC()))
}

func TestStartStop(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	ctx := context.Background()

	require.NoError(t, sched.Start(ctx))

	// Double start should error.
	err := sched.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, sched.Stop())

	// Stop again should be a no-op.
	require.NoError(t, sched.Stop())
}

func TestDedupPreventsDoubleRun(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	seedJob(t, ms, "job-dedup", true, &past)

	// Pre-acquire the job to simulate an in-flight execution.
	acquired := sched.tryAcquire("job-dedup")
	assert.True(t, acquired)

	// Tick should skip the job because it's in-flight.
	sched.tick(ctx)
	assert.Equal(t, 0, runner.callCount())

	// Release and tick again, now it should run.
	sched.releaseJob("job-dedup")
	sched.tick(ctx)
	assert.Equal(t, 1, runner.callCount())
}

func TestMultipleJobsSomeDue(t *testing.T) {
	ms := newMockSchedulerStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	seedJob(t, ms, "due-1", true, &past)
	seedJob(t, ms, "not-due", true, &future)
	seedJob(t, ms, "due-2", true, nil)

	sched.tick(context.Background())

	assert.Equal(t, 2, runner.callCount())
	runner.mu.Lock()
	ids := make([]string, len(runner.calls))
	for i, c := range runner.calls {
		ids[i] = c.WorkflowID
	}
	runner.mu.Unlock()
	assert.Contains(t, ids, "wf-due-1")
	assert.Contains(t, ids, "wf-due-2")
	assert.NotContains(t, ids, "wf-not-due")
}
