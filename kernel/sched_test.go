package main

import "testing"

// resetTaskTableForTest clears every task-table/ready-queue global so
// scheduler and IPC tests can build fake TCBs directly instead of going
// through TaskCreate, which allocates real physical stack frames via the
// PMM — unavailable in a hosted test binary. Shared by ipc_test.go.
func resetTaskTableForTest() {
	for i := range taskInUse {
		taskInUse[i] = false
		taskTable[i] = TCB{next: invalidTaskID, prev: invalidTaskID}
	}
	readyHead, readyTail = invalidTaskID, invalidTaskID
	currentTask, idleTaskID = invalidTaskID, invalidTaskID
	needResched = false
}

// newFakeTask installs a TCB directly into taskTable without touching the
// PMM/VMM, the way resetPMMForTest/resetHeapForTest bypass their own
// subsystem's real init path.
func newFakeTask(id int, state TaskState) *TCB {
	taskInUse[id] = true
	t := &taskTable[id]
	*t = TCB{id: id, state: state, next: invalidTaskID, prev: invalidTaskID}
	t.mailbox.reset()
	return t
}

func TestEnqueueDequeueReadyFIFOOrder(t *testing.T) {
	resetTaskTableForTest()
	newFakeTask(0, TaskFree)
	newFakeTask(1, TaskFree)
	newFakeTask(2, TaskFree)

	enqueueReady(0)
	enqueueReady(1)
	enqueueReady(2)

	for _, want := range []int{0, 1, 2} {
		if got := dequeueReady(); got != want {
			t.Fatalf("dequeueReady() = %d, want %d", got, want)
		}
	}
	if got := dequeueReady(); got != invalidTaskID {
		t.Fatalf("dequeueReady() on empty queue = %d, want invalidTaskID", got)
	}
}

func TestEnqueueReadySetsStateReady(t *testing.T) {
	resetTaskTableForTest()
	newFakeTask(0, TaskBlocked)
	enqueueReady(0)
	if taskTable[0].state != TaskReady {
		t.Fatalf("state = %v, want TaskReady after enqueueReady", taskTable[0].state)
	}
}

func TestSchedTickDecrementsSliceAndArmsResched(t *testing.T) {
	resetTaskTableForTest()
	cur := newFakeTask(0, TaskRunning)
	cur.slice = 2
	currentTask = 0

	schedTick()
	if cur.slice != 1 || needResched {
		t.Fatalf("after first tick: slice=%d needResched=%v, want slice=1 needResched=false", cur.slice, needResched)
	}
	schedTick()
	if cur.slice != 0 || !needResched {
		t.Fatalf("after slice exhausted: slice=%d needResched=%v, want slice=0 needResched=true", cur.slice, needResched)
	}
}

func TestScheduleNoOpWhenOnlyCurrentIsReady(t *testing.T) {
	// Exercises the early-return branch of Schedule (next.id ==
	// currentTask) deliberately: any path that reaches asm.SwitchContext
	// depends on a real register-level context switch and cannot run
	// safely inside a hosted Go test binary.
	resetTaskTableForTest()
	idle := newFakeTask(0, TaskRunning)
	idleTaskID = 0
	currentTask = 0
	idle.slice = 1

	Schedule()
	if currentTask != 0 {
		t.Fatalf("currentTask = %d, want unchanged (0)", currentTask)
	}
	if idle.slice != defaultSlice {
		t.Fatalf("slice = %d, want refreshed to defaultSlice (%d)", idle.slice, defaultSlice)
	}
}

func TestPickNextFallsBackToIdleWhenQueueEmpty(t *testing.T) {
	resetTaskTableForTest()
	newFakeTask(0, TaskRunning)
	idleTaskID = 0

	next := pickNext()
	if next == nil || next.id != 0 {
		t.Fatal("pickNext() did not fall back to idle on an empty ready queue")
	}
}

func TestPickNextSkipsStaleNonReadyEntries(t *testing.T) {
	resetTaskTableForTest()
	newFakeTask(0, TaskRunning) // idle fallback
	idleTaskID = 0
	stale := newFakeTask(1, TaskFree)
	ready := newFakeTask(2, TaskReady)

	// Hand-link a queue containing a stale (non-Ready) entry ahead of a
	// genuinely Ready one, the defensive case pickNext's doc comment
	// describes.
	readyHead, readyTail = stale.id, ready.id
	stale.next, stale.prev = ready.id, invalidTaskID
	ready.next, ready.prev = invalidTaskID, stale.id

	next := pickNext()
	if next == nil || next.id != ready.id {
		t.Fatalf("pickNext() should skip the stale entry and return task %d", ready.id)
	}
}

func TestStatsCountsByState(t *testing.T) {
	resetTaskTableForTest()
	newFakeTask(0, TaskReady)
	newFakeTask(1, TaskReady)
	newFakeTask(2, TaskBlocked)
	newFakeTask(3, TaskZombie)

	s := Stats()
	if s.TotalTasks != 4 || s.ReadyCount != 2 || s.BlockedCount != 1 || s.ZombieCount != 1 {
		t.Fatalf("Stats() = %+v, want {Total:4 Ready:2 Blocked:1 Zombie:1}", s)
	}
}
