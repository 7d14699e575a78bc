package main

// System-call dispatch (spec §4.L). Vector 0x80 feeds the same
// TrapFrame-based router as every other interrupt; syscallEntry just
// pulls the call number and arguments out of the saved general-purpose
// registers by the kernel's own convention (RAX = number, RDI/RSI/RDX
// = args 1-3, return value written back into RAX).

const syscallVector = 0x80

const (
	sysExit    = 1
	sysWrite   = 2
	sysGetpid  = 3
	sysYield   = 4
	sysIPCSend = 5
	sysIPCRecv = 6
)

const (
	fdStdout = 1
	fdStderr = 2
)

//go:nosplit
func syscallInit() {
	InstallVector(syscallVector, syscallEntry)
}

//go:nosplit
func syscallEntry(tf *TrapFrame) {
	tf.RAX = uint64(dispatchSyscall(tf.RAX, tf.RDI, tf.RSI, tf.RDX))
	if needResched {
		Schedule()
	}
}

// dispatchSyscall implements spec §4.L's minimum call set. Unknown
// call numbers return -ErrnoGeneric, matching the syscall convention's
// "stable negative magnitude" rule (errors.go).
//go:nosplit
func dispatchSyscall(num, a0, a1, a2 uint64) int64 {
	switch num {
	case sysExit:
		TaskExit(int64(a0))
		return 0 // unreachable

	case sysWrite:
		return sysWriteImpl(int(a0), uintptr(a1), int(a2))

	case sysGetpid:
		cur := CurrentTask()
		if cur == nil {
			return -ErrnoGeneric
		}
		return int64(cur.id)

	case sysYield:
		Yield()
		return 0

	case sysIPCSend:
		return sysIPCSendImpl(int(a0), uintptr(a1))

	case sysIPCRecv:
		return sysIPCRecvImpl(uintptr(a0), uintptr(a1))

	default:
		return -ErrnoGeneric
	}
}

// sysWriteImpl handles fd ∈ {1, 2} directly (console); anything else is
// "delegated to the excluded FD layer" per spec §4.L, which this kernel
// does not implement, so it reports ENOSYS via the generic code.
//go:nosplit
func sysWriteImpl(fd int, bufPtr uintptr, length int) int64 {
	if fd != fdStdout && fd != fdStderr {
		return -ErrnoGeneric
	}
	if !validateUserPointer(bufPtr, length) {
		return -ErrnoInvalidPtr
	}
	n := 0
	for n < length {
		ConsolePutByte(*castToPointer[byte](bufPtr + uintptr(n)))
		n++
	}
	return int64(n)
}

//go:nosplit
func sysIPCSendImpl(dest int, msgPtr uintptr) int64 {
	if !validateUserPointer(msgPtr, messagePayloadMax) {
		return -ErrnoInvalidPtr
	}
	cur := CurrentTask()
	msg := castToPointer[Message](msgPtr)
	err := Send(dest, cur.id, msg.Type, msg.Payload[:msg.PayloadLen])
	return errnoFor(err)
}

//go:nosplit
func sysIPCRecvImpl(senderOutPtr, msgOutPtr uintptr) int64 {
	if !validateUserPointer(senderOutPtr, 8) || !validateUserPointer(msgOutPtr, messagePayloadMax) {
		return -ErrnoInvalidPtr
	}
	sender, typ, payload := Receive()

	senderOut := castToPointer[int64](senderOutPtr)
	*senderOut = int64(sender)

	out := castToPointer[Message](msgOutPtr)
	out.SenderID = sender
	out.Type = typ
	out.PayloadLen = copy(out.Payload[:], payload)
	return 0
}

// validateUserPointer implements spec §4.L's pointer-validation step:
// the pointer (and everything length bytes past it) must lie entirely
// in the lower (user) half of the address space, below
// userspaceCeiling, and every page it spans must already be present.
// The lower-half check runs before the presence loop so a task can
// never bypass it by pointing at kernel memory that merely happens to
// be mapped.
//go:nosplit
func validateUserPointer(ptr uintptr, length int) bool {
	if ptr == 0 || length < 0 {
		return false
	}
	end := ptr + uintptr(length)
	if end < ptr || end > userspaceCeiling {
		return false
	}
	cur := CurrentTask()
	if cur == nil || cur.space == nil {
		return false
	}
	for p := alignDown(ptr, PageSize); p < end; p += PageSize {
		if Translate(cur.space, p) == 0 {
			return false
		}
	}
	return true
}
