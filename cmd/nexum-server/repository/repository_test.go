package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/common/config"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()

	cfg, err := config.Load("nexum-server-test")
	require.NoError(t, err)
	cfg.Database.URL = "sqlite://:memory:"

	database, err := db.New(context.Background(), cfg, logger.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, database.Migrate())
	return database
}

func testTask(executionID, nodeID, versionHash string) *models.Task {
	return &models.Task{
		TaskID:         "task-" + uuid.NewString(),
		ExecutionID:    executionID,
		NodeID:         nodeID,
		VersionHash:    versionHash,
		IdempotencyKey: executionID + ":" + nodeID + ":" + versionHash,
		Status:         models.TaskReady,
		ScheduledAt:    db.Now(),
	}
}

func TestVersionInsertAndLatest(t *testing.T) {
	database := newTestDB(t)
	repo := NewVersionRepository(database)
	ctx := context.Background()

	older := &models.WorkflowVersion{
		WorkflowID:    "orders",
		VersionHash:   "v1",
		IRJSON:        `{"nodes": {"a": {}}}`,
		Compatibility: "NEW",
		RegisteredAt:  db.NewTime(time.Now().Add(-time.Hour)),
	}
	newer := &models.WorkflowVersion{
		WorkflowID:    "orders",
		VersionHash:   "v2",
		IRJSON:        `{"nodes": {"a": {}, "b": {"dependencies": ["a"]}}}`,
		Compatibility: "SAFE",
		RegisteredAt:  db.Now(),
	}
	require.NoError(t, repo.Insert(ctx, older))
	require.NoError(t, repo.Insert(ctx, newer))

	latest, err := repo.Latest(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "v2", latest.VersionHash)

	// Re-registering an existing pair is a no-op.
	dup := *older
	dup.Compatibility = "BREAKING"
	require.NoError(t, repo.Insert(ctx, &dup))

	versions, err := repo.ListByWorkflow(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].VersionHash)
	assert.Equal(t, "NEW", versions[1].Compatibility)

	missing, err := repo.Latest(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExecutionLifecycle(t *testing.T) {
	database := newTestDB(t)
	repo := NewExecutionRepository(database)
	ctx := context.Background()

	exec := &models.Execution{
		ExecutionID: "exec-" + uuid.NewString(),
		WorkflowID:  "orders",
		VersionHash: "v1",
		Status:      models.ExecutionRunning,
		InputJSON:   `{"order_id": 7}`,
		CreatedAt:   db.Now(),
	}
	require.NoError(t, repo.Insert(ctx, exec))

	got, err := repo.Get(ctx, exec.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ExecutionRunning, got.Status)
	assert.Equal(t, `{"order_id": 7}`, got.InputJSON)
	assert.Empty(t, got.ParentExecutionID)

	missing, err := repo.Get(ctx, "exec-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := repo.CountRunningByVersion(ctx, "orders", "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The RUNNING guard makes the terminal transition exclusive.
	changed, err := repo.UpdateStatusIfRunning(ctx, exec.ExecutionID, models.ExecutionCompleted)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.UpdateStatusIfRunning(ctx, exec.ExecutionID, models.ExecutionFailed)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = repo.Get(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, got.Status)

	count, err = repo.CountRunningByVersion(ctx, "orders", "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExecutionListFilters(t *testing.T) {
	database := newTestDB(t)
	repo := NewExecutionRepository(database)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	rows := []*models.Execution{
		{ExecutionID: "exec-1", WorkflowID: "orders", VersionHash: "v1", Status: models.ExecutionRunning, CreatedAt: db.NewTime(base)},
		{ExecutionID: "exec-2", WorkflowID: "orders", VersionHash: "v1", Status: models.ExecutionCompleted, CreatedAt: db.NewTime(base.Add(time.Second))},
		{ExecutionID: "exec-3", WorkflowID: "billing", VersionHash: "b1", Status: models.ExecutionRunning, CreatedAt: db.NewTime(base.Add(2 * time.Second))},
	}
	for _, e := range rows {
		require.NoError(t, repo.Insert(ctx, e))
	}

	all, err := repo.List(ctx, "", "", 20)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "exec-3", all[0].ExecutionID)

	orders, err := repo.List(ctx, "orders", "", 20)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	running, err := repo.List(ctx, "", "RUNNING", 20)
	require.NoError(t, err)
	assert.Len(t, running, 2)

	both, err := repo.List(ctx, "orders", "RUNNING", 20)
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "exec-1", both[0].ExecutionID)

	limited, err := repo.List(ctx, "", "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "exec-3", limited[0].ExecutionID)
}

func TestEventAppendAssignsDenseSequences(t *testing.T) {
	database := newTestDB(t)
	repo := NewEventRepository(database)
	ctx := context.Background()

	first, err := repo.Append(ctx, "exec-1", models.EventNodeCompleted, `{"node_id": "a", "output": 1}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SequenceID)

	second, err := repo.Append(ctx, "exec-1", models.EventNodeFailed, `{"node_id": "b", "error": "boom"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SequenceID)

	third, err := repo.Append(ctx, "exec-1", models.EventNodeCompleted, `{"node_id": "b", "output": 2}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.SequenceID)

	// Sequences are per execution.
	other, err := repo.Append(ctx, "exec-2", models.EventNodeCompleted, `{"node_id": "a", "output": null}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.SequenceID)

	events, err := repo.ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].SequenceID)
	assert.Equal(t, int64(3), events[2].SequenceID)

	completed, err := repo.ListNodeCompleted(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, models.EventNodeCompleted, completed[0].EventType)

	last, err := repo.LastNodeCompleted(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(3), last.SequenceID)

	none, err := repo.LastNodeCompleted(ctx, "exec-empty")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEventAppendConcurrentWritersStayDense(t *testing.T) {
	database := newTestDB(t)
	repo := NewEventRepository(database)
	ctx := context.Background()

	const writers = 16
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := repo.Append(ctx, "exec-1", models.EventNodeCompleted, `{"node_id": "n", "output": null}`)
			errCh <- err
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errCh)
	}

	// No gaps, no duplicates, regardless of arrival order.
	events, err := repo.ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, events, writers)
	for i, event := range events {
		assert.Equal(t, int64(i+1), event.SequenceID)
	}
}

func TestTaskEnqueueIsIdempotent(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "a", "v1")
	task.NodeType = models.NodeCompute

	inserted, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same idempotency key, fresh task_id: swallowed.
	dup := testTask("exec-1", "a", "v1")
	inserted, err = repo.Enqueue(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.NodeCompute, got.NodeType)
	assert.Equal(t, models.TaskReady, got.Status)

	gone, err := repo.Get(ctx, dup.TaskID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTaskLeaseIsExclusive(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "a", "v1")
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)

	leased, err := repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)
	assert.True(t, leased)

	leased, err = repo.Lease(ctx, task.TaskID, "worker-2", db.Now(), false)
	require.NoError(t, err)
	assert.False(t, leased)

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, got.Status)
	assert.Equal(t, "worker-1", got.LockedBy)
	assert.False(t, got.LockedAt.IsZero())

	done, err := repo.MarkDoneIfRunning(ctx, task.TaskID)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = repo.MarkDoneIfRunning(ctx, task.TaskID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestTaskLeaseOpensApprovalGate(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "gate", "v1")
	task.NodeType = models.NodeHumanApproval
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)

	leased, err := repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), true)
	require.NoError(t, err)
	require.True(t, leased)

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ApprovalPending), got.ApprovalStatus)
}

func TestNextReadyHonorsScheduleAndVersion(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	early := testTask("exec-1", "a", "v1")
	early.ScheduledAt = db.NewTime(time.Now().Add(-time.Minute))
	_, err := repo.Enqueue(ctx, early)
	require.NoError(t, err)

	later := testTask("exec-1", "b", "v1")
	later.ScheduledAt = db.NewTime(time.Now().Add(-time.Second))
	_, err = repo.Enqueue(ctx, later)
	require.NoError(t, err)

	future := testTask("exec-1", "timer", "v1")
	future.ScheduledAt = db.NewTime(time.Now().Add(time.Hour))
	_, err = repo.Enqueue(ctx, future)
	require.NoError(t, err)

	otherVersion := testTask("exec-2", "a", "v2")
	otherVersion.ScheduledAt = db.NewTime(time.Now().Add(-time.Hour))
	_, err = repo.Enqueue(ctx, otherVersion)
	require.NoError(t, err)

	// Oldest dispatchable task for this version wins.
	next, err := repo.NextReady(ctx, "v1", db.Now())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, early.TaskID, next.TaskID)

	leased, err := repo.Lease(ctx, next.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)
	require.True(t, leased)

	next, err = repo.NextReady(ctx, "v1", db.Now())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, later.TaskID, next.TaskID)

	_, err = repo.Lease(ctx, next.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)

	// The TIMER task stays invisible until its time arrives.
	next, err = repo.NextReady(ctx, "v1", db.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRequeueClearsLease(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "a", "v1")
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)

	backoff := db.NewTime(time.Now().Add(2 * time.Second))
	require.NoError(t, repo.Requeue(ctx, task.TaskID, backoff))

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskReady, got.Status)
	assert.Empty(t, got.LockedBy)
	assert.True(t, got.LockedAt.IsZero())
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, backoff.UnixNano(), got.ScheduledAt.UnixNano())
}

func TestReapStaleSkipsGatesAndCoordinators(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	stale := testTask("exec-1", "a", "v1")
	_, err := repo.Enqueue(ctx, stale)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, stale.TaskID, "worker-1", db.NewTime(time.Now().Add(-2*time.Minute)), false)
	require.NoError(t, err)

	gate := testTask("exec-1", "approval", "v1")
	_, err = repo.Enqueue(ctx, gate)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, gate.TaskID, "worker-1", db.NewTime(time.Now().Add(-2*time.Minute)), true)
	require.NoError(t, err)

	coordinator := testTask("exec-1", "subwf", "v1")
	_, err = repo.Enqueue(ctx, coordinator)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, coordinator.TaskID, "worker-1", db.NewTime(time.Now().Add(-2*time.Minute)), false)
	require.NoError(t, err)
	_, err = repo.ClaimSubWorkflow(ctx, coordinator.TaskID, "exec-child", "child-wf", `{}`)
	require.NoError(t, err)

	fresh := testTask("exec-1", "b", "v1")
	_, err = repo.Enqueue(ctx, fresh)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, fresh.TaskID, "worker-2", db.Now(), false)
	require.NoError(t, err)

	reaped, err := repo.ReapStale(ctx, db.NewTime(time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	got, err := repo.Get(ctx, stale.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskReady, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.LockedBy)

	// Approval gate, coordinator and fresh lease are untouched.
	for _, id := range []string{gate.TaskID, coordinator.TaskID, fresh.TaskID} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.TaskRunning, got.Status)
	}
}

func TestClaimSubWorkflowIsExclusive(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "subwf", "v1")
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)

	claimed, err := repo.ClaimSubWorkflow(ctx, task.TaskID, "exec-child-1", "child-wf", `{"n": 1}`)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Duplicate completion loses the claim and must not start another child.
	claimed, err = repo.ClaimSubWorkflow(ctx, task.TaskID, "exec-child-2", "child-wf", `{"n": 1}`)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "exec-child-1", got.SubExecutionID)
	assert.Equal(t, "child-wf", got.SubWorkflowID)
	assert.Equal(t, models.TaskRunning, got.Status)
}

func TestClaimApprovalIsExclusive(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "gate", "v1")
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), true)
	require.NoError(t, err)

	claimed, err := repo.ClaimApproval(ctx, task.TaskID, models.ApprovalApproved, "alice", "ship it")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimApproval(ctx, task.TaskID, models.ApprovalRejected, "bob", "")
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ApprovalApproved), got.ApprovalStatus)
	assert.Equal(t, "alice", got.Approver)
	assert.Equal(t, "ship it", got.ApprovalComment)
}

func TestCancelLiveLeavesTerminalTasks(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	ready := testTask("exec-1", "a", "v1")
	_, err := repo.Enqueue(ctx, ready)
	require.NoError(t, err)

	running := testTask("exec-1", "b", "v1")
	_, err = repo.Enqueue(ctx, running)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, running.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)

	done := testTask("exec-1", "c", "v1")
	_, err = repo.Enqueue(ctx, done)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, done.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)
	_, err = repo.MarkDoneIfRunning(ctx, done.TaskID)
	require.NoError(t, err)

	cancelled, err := repo.CancelLive(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled)

	for _, id := range []string{ready.TaskID, running.TaskID} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCancelled, got.Status)
	}

	got, err := repo.Get(ctx, done.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskDone, got.Status)
}

func TestCompleteParentTask(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-parent", "subwf", "v1")
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)
	_, err = repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), false)
	require.NoError(t, err)

	require.NoError(t, repo.CompleteParentTask(ctx, "exec-parent", "subwf"))

	got, err := repo.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskDone, got.Status)

	// Already DONE: no-op.
	require.NoError(t, repo.CompleteParentTask(ctx, "exec-parent", "subwf"))
}

func TestFindRunningByNode(t *testing.T) {
	database := newTestDB(t)
	repo := NewTaskRepository(database)
	ctx := context.Background()

	task := testTask("exec-1", "gate", "v1")
	_, err := repo.Enqueue(ctx, task)
	require.NoError(t, err)

	// READY does not count as running.
	got, err := repo.FindRunningByNode(ctx, "exec-1", "gate")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = repo.Lease(ctx, task.TaskID, "worker-1", db.Now(), true)
	require.NoError(t, err)

	got, err = repo.FindRunningByNode(ctx, "exec-1", "gate")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.TaskID, got.TaskID)
}

func TestPendingApprovalsJoinsWorkflow(t *testing.T) {
	database := newTestDB(t)
	tasks := NewTaskRepository(database)
	executions := NewExecutionRepository(database)
	ctx := context.Background()

	exec := &models.Execution{
		ExecutionID: "exec-1",
		WorkflowID:  "orders",
		VersionHash: "v1",
		Status:      models.ExecutionRunning,
		CreatedAt:   db.Now(),
	}
	require.NoError(t, executions.Insert(ctx, exec))

	task := testTask("exec-1", "gate", "v1")
	_, err := tasks.Enqueue(ctx, task)
	require.NoError(t, err)
	_, err = tasks.Lease(ctx, task.TaskID, "worker-1", db.Now(), true)
	require.NoError(t, err)

	approvals, err := tasks.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, "exec-1", approvals[0].ExecutionID)
	assert.Equal(t, "gate", approvals[0].NodeID)
	assert.Equal(t, "orders", approvals[0].WorkflowID)
	assert.False(t, approvals[0].StartedAt.IsZero())

	// A decided gate disappears from the listing.
	_, err = tasks.ClaimApproval(ctx, task.TaskID, models.ApprovalApproved, "alice", "")
	require.NoError(t, err)

	approvals, err = tasks.PendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, approvals)
}

func TestMapResultsFanIn(t *testing.T) {
	database := newTestDB(t)
	repo := NewMapResultRepository(database)
	ctx := context.Background()

	for i, result := range []string{`{"v": 0}`, `{"v": 1}`, `{"v": 2}`} {
		require.NoError(t, repo.Upsert(ctx, &models.MapResult{
			ExecutionID: "exec-1",
			MapNodeID:   "mapper",
			ItemIndex:   i,
			ResultJSON:  result,
		}))
	}

	count, err := repo.CountStaged(ctx, "exec-1", "mapper")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// A retried sub-task overwrites its slot without changing the count.
	require.NoError(t, repo.Upsert(ctx, &models.MapResult{
		ExecutionID: "exec-1",
		MapNodeID:   "mapper",
		ItemIndex:   1,
		ResultJSON:  `{"v": 100}`,
	}))

	count, err = repo.CountStaged(ctx, "exec-1", "mapper")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	claimed, err := repo.ClaimFanIn(ctx, "exec-1", "mapper")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimFanIn(ctx, "exec-1", "mapper")
	require.NoError(t, err)
	assert.False(t, claimed)

	// The sentinel never leaks into counts or results.
	count, err = repo.CountStaged(ctx, "exec-1", "mapper")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := repo.Gather(ctx, "exec-1", "mapper")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, `{"v": 0}`, results[0])
	assert.Equal(t, `{"v": 100}`, results[1])
	assert.Equal(t, `{"v": 2}`, results[2])
}
