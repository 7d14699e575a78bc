package main

import "unsafe"

// Task control block (spec §3 "Task control block (TCB)", §4.J). Laid
// out as a fixed slab of slots rather than a pointer-chased free list
// (spec §9's "cyclic structures → arena + index" redesign direction),
// with next/prev as indices into taskTable instead of pointers — the
// same trade the frame bitmap makes over the teacher's Page free list.

type TaskState int

const (
	TaskFree TaskState = iota
	TaskReady
	TaskRunning
	TaskBlocked
	TaskZombie
)

const (
	maxTasks       = 64
	taskNameMax    = 32
	taskStackSize  = 32 * 1024 // >= spec's TASK_STACK_SIZE floor of 16 KiB
	defaultSlice   = 5         // ticks
	invalidTaskID  = -1
)

// TCB mirrors spec §3's field list. savedSP points at the top of the
// callee-saved-register frame asm.SwitchContext expects; it is zero
// for a free slot.
type TCB struct {
	id       int
	state    TaskState
	savedSP  uintptr
	stackBase uintptr
	stackSize uintptr
	space    *AddressSpace

	slice      int
	totalTicks uint64

	name [taskNameMax]byte
	nameLen int

	next, prev int // indices into taskTable; -1 means "unlinked"

	mailbox           Mailbox
	blockedOnReceive  bool
}

var taskTable [maxTasks]TCB
var taskInUse [maxTasks]bool

var currentTask int = invalidTaskID
var idleTaskID int = invalidTaskID

// readyHead/readyTail form a singly linked FIFO over task indices
// using TCB.next; this is the "ready queue" spec §3 requires each
// Ready task appear in exactly once.
var readyHead = invalidTaskID
var readyTail = invalidTaskID

//go:nosplit
func taskSetName(t *TCB, name string) {
	n := copy(t.name[:], name)
	t.nameLen = n
}

//go:nosplit
func (t *TCB) Name() string { return string(t.name[:t.nameLen]) }

//go:nosplit
func allocTaskSlot() (int, *TCB) {
	for i := range taskInUse {
		if !taskInUse[i] {
			taskInUse[i] = true
			return i, &taskTable[i]
		}
	}
	return invalidTaskID, nil
}

// TaskCreate implements spec §4.J's task_create. entry is the first
// instruction the task runs; the initial context is fabricated so the
// first SwitchContext into this task "returns" into entry with a zero
// callee-saved register frame, matching internal/asm's SwitchContext
// calling convention (pushes RBP, RBX, R12, R13, R15 in that order
// before swapping stacks; R14 is not saved).
//go:nosplit
func TaskCreate(entry uintptr, name string, space *AddressSpace) *TCB {
	id, t := allocTaskSlot()
	if t == nil {
		return nil
	}

	stackFrames := (taskStackSize + PageSize - 1) / PageSize
	stackPhys, ok := allocContiguous(uint32(stackFrames))
	if !ok {
		taskInUse[id] = false
		return nil
	}
	stackTop := physToVirt(stackPhys) + taskStackSize

	sp := buildInitialContext(stackTop, entry)

	*t = TCB{
		id:        id,
		state:     TaskReady,
		savedSP:   sp,
		stackBase: physToVirt(stackPhys),
		stackSize: taskStackSize,
		space:     space,
		slice:     defaultSlice,
		next:      invalidTaskID,
		prev:      invalidTaskID,
	}
	taskSetName(t, name)
	t.mailbox.reset()

	enqueueReady(id)
	return t
}

// buildInitialContext lays down, from high to low addresses: the
// return address (entry), then zeroed slots for each register
// SwitchContext's epilogue pops (R15,R13,R12,RBX,RBP — the reverse of
// its push order). R14 is deliberately not among them — it is the
// fixed g-pointer register boot.s seeds once and SwitchContext never
// touches (see asm_amd64.s's SwitchContext comment).
//go:nosplit
func buildInitialContext(stackTop, entry uintptr) uintptr {
	sp := stackTop &^ 0xF // 16-byte align the top first

	push := func(sp uintptr, val uint64) uintptr {
		sp -= 8
		*(*uint64)(unsafe.Pointer(sp)) = val
		return sp
	}

	sp = push(sp, uint64(entry)) // return address popped by RET in SwitchContext
	sp = push(sp, 0)             // RBP
	sp = push(sp, 0)             // RBX
	sp = push(sp, 0)             // R12
	sp = push(sp, 0)             // R13
	sp = push(sp, 0)             // R15
	return sp
}

//go:nosplit
func taskByID(id int) *TCB {
	if id < 0 || id >= maxTasks || !taskInUse[id] {
		return nil
	}
	return &taskTable[id]
}

//go:nosplit
func CurrentTask() *TCB { return taskByID(currentTask) }
