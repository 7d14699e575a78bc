package main

import (
	"unsafe"

	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// funcAddr extracts a Go function value's code entry point. A closure
// value is itself a pointer to a struct whose first word is the code
// address for any func with no captured variables, which idleTaskLoop
// is; task.go's buildInitialContext needs a bare uintptr to push as a
// return address since TCBs don't carry Go func values.
//go:nosplit
func funcAddr(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

// Round-robin scheduler (spec §4.J "Scheduling policy", §9's resolved
// open question). Deliberately does not bootstrap the Go runtime's own
// goroutine scheduler the way the teacher's scheduler_bootstrap.go /
// goroutine.go do — see DESIGN.md's "Task model / scheduler" entry for
// why the spec's Running/Ready/Blocked invariants must be owned here,
// not delegated to a hidden runtime.
//
// §9 resolved: preemption never switches directly from inside the
// timer ISR, since the interrupted frame can only be resumed via
// iretq, not a callee-saved-register return. schedTick instead sets
// needResched; the flag is consumed at the next safe point — the
// return path of every syscall (syscallEntry) and the idle task's loop
// body, neither of which is inside the timer ISR.
var needResched bool

//go:nosplit
func enqueueReady(id int) {
	t := &taskTable[id]
	t.state = TaskReady
	t.next = invalidTaskID
	t.prev = readyTail

	if readyTail == invalidTaskID {
		readyHead = id
	} else {
		taskTable[readyTail].next = id
	}
	readyTail = id
}

//go:nosplit
func dequeueReady() int {
	id := readyHead
	if id == invalidTaskID {
		return invalidTaskID
	}
	readyHead = taskTable[id].next
	if readyHead == invalidTaskID {
		readyTail = invalidTaskID
	} else {
		taskTable[readyHead].prev = invalidTaskID
	}
	taskTable[id].next = invalidTaskID
	taskTable[id].prev = invalidTaskID
	return id
}

// SchedInit creates the idle task (spec §4.J "Idle task": always
// Ready, body `while(true) halt`, selected only when nothing else is)
// and makes it current so the very first schedule() call has a
// well-defined outgoing task.
//go:nosplit
func SchedInit() {
	idleTaskTrampolineAddr = funcAddr(idleTaskLoop)
	idle := TaskCreate(idleTaskEntryAddr(), "idle", &kernelSpace)
	if idle == nil {
		kpanicf("sched: failed to create idle task")
	}
	idleTaskID = idle.id

	dequeueReady() // idle starts current, not queued
	idle.state = TaskRunning
	currentTask = idle.id
	klog.Infof("sched: idle task ready", klog.Str("tid"), klog.Int(int64(idle.id)))
}

//go:nosplit
func idleTaskEntryAddr() uintptr {
	return idleTaskTrampolineAddr
}

// idleTaskTrampolineAddr is resolved once at init from idleTaskLoop's
// own address; stored so TaskCreate (which wants a plain uintptr) does
// not need a func-to-uintptr conversion scattered at every call site.
var idleTaskTrampolineAddr uintptr

//go:nosplit
func idleTaskLoop() {
	for {
		Reap()
		if needResched {
			Schedule()
		}
		asm.Sti()
		asm.Hlt()
	}
}

// Schedule implements spec §4.J's schedule(): scan from current.next,
// skip non-Ready tasks, always fall back to idle, refresh the slice if
// staying put, otherwise transition states and switch.
//go:nosplit
func Schedule() {
	needResched = false
	cur := CurrentTask()

	next := pickNext()
	if next == nil || next.id == currentTask {
		if cur != nil {
			cur.slice = defaultSlice
		}
		return
	}

	outgoing := cur
	if outgoing != nil && outgoing.state == TaskRunning {
		outgoing.state = TaskReady
		enqueueReady(outgoing.id)
	}

	next.state = TaskRunning
	next.slice = defaultSlice
	currentTask = next.id

	if outgoing == nil {
		var discard uintptr
		asm.SwitchContext(&discard, next.savedSP)
		return
	}
	asm.SwitchContext(&outgoing.savedSP, next.savedSP)
}

// pickNext dequeues the next Ready task, skipping anything that
// changed state between enqueue and now (shouldn't happen under the
// single-hardware-thread model, but mirrors spec §4.J step 2's
// "skip tasks not in state Ready" defensively), and falls back to idle.
//go:nosplit
func pickNext() *TCB {
	for {
		id := dequeueReady()
		if id == invalidTaskID {
			return taskByID(idleTaskID)
		}
		t := &taskTable[id]
		if t.state == TaskReady {
			return t
		}
	}
}

// schedTick is called from onTimerTick with interrupts disabled (spec
// §4.J "Time-slice accounting"). It never switches directly; it only
// arms the deferred flag once the running task's slice is exhausted.
//
//go:nosplit
func schedTick() {
	cur := CurrentTask()
	if cur == nil {
		return
	}
	cur.totalTicks++
	if cur.slice > 0 {
		cur.slice--
	}
	if cur.slice == 0 {
		needResched = true
	}
}

// Yield implements the voluntary yield() API: re-enqueue current (if
// still Running) as Ready and invoke the scheduler immediately.
//go:nosplit
func Yield() {
	Schedule()
}

// TaskExit implements spec §4.J's task_exit: transitions current to
// Zombie and calls Schedule, which never returns to this task.
//go:nosplit
func TaskExit(status int64) {
	cur := CurrentTask()
	if cur != nil {
		cur.state = TaskZombie
	}
	Schedule()
	haltForever() // unreachable: Schedule never switches back into a Zombie
}

// Reap frees the stack and TCB slot of every Zombie task except the
// one currently running (spec §4.J "reaper must not free the currently
// running task"). Address spaces owned exclusively by the task are
// destroyed too; the kernel's shared space never is.
//go:nosplit
func Reap() int {
	freed := 0
	for i := range taskInUse {
		if !taskInUse[i] || i == currentTask {
			continue
		}
		t := &taskTable[i]
		if t.state != TaskZombie {
			continue
		}
		freeContiguous(physFromVirt(t.stackBase), uint32((t.stackSize+PageSize-1)/PageSize))
		if t.space != nil && t.space != &kernelSpace {
			DestroyAddressSpace(t.space)
		}
		taskInUse[i] = false
		freed++
	}
	return freed
}

//go:nosplit
func physFromVirt(virt uintptr) uintptr { return virt - hhdmOffset }

// Stats reports scheduler-wide counters, a supplemental observability
// surface (SPEC_FULL.md's reaper/idle-task section) layered over the
// core spec's scheduling model.
type SchedStats struct {
	ReadyCount   int
	ZombieCount  int
	BlockedCount int
	TotalTasks   int
}

//go:nosplit
func Stats() SchedStats {
	var s SchedStats
	for i := range taskInUse {
		if !taskInUse[i] {
			continue
		}
		s.TotalTasks++
		switch taskTable[i].state {
		case TaskReady:
			s.ReadyCount++
		case TaskZombie:
			s.ZombieCount++
		case TaskBlocked:
			s.BlockedCount++
		}
	}
	return s
}
