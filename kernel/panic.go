package main

import (
	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Panic protocol (spec §7): disable interrupts, force-acquire the
// console, print a banner and register dump, halt forever. There is no
// unwinding here the way the teacher's traceback.go walks Go-runtime
// frame pointers — that file exists to debug the Go runtime's own
// port, which this kernel doesn't bootstrap (see DESIGN.md's scheduler
// entry); a trap-frame dump is all spec §4.C/§7 ask for.

// kv is a tiny logging-argument constructor used throughout the
// kernel's panic/warn call sites; a thin wrapper so callers don't
// import internal/klog's Arg type by name everywhere. Only val is
// logged, as hex; name labels the call site's source and is not
// printed.
//go:nosplit
func kv(name string, val uintptr) klog.Arg { return klog.Hex(uint64(val)) }

// kpanicf prints a banner plus the supplied arguments, then halts.
// It never returns.
//go:nosplit
func kpanicf(msg string, args ...klog.Arg) {
	asm.Cli()
	consoleForcePanicLock()
	klog.Panicf(msg, args...)
	haltForever()
}

// panicWithFrame is the exception-path panic entry (spec §4.C step 1):
// dumps RIP, the error code, CR2 on page faults, and all
// general-purpose registers from the trapped frame, then halts.
//go:nosplit
func panicWithFrame(name string, tf *TrapFrame) {
	asm.Cli()
	consoleForcePanicLock()
	klog.Panicf(name,
		klog.Str("rip"), klog.Hex(tf.RIP),
		klog.Str("err"), klog.Hex(tf.ErrorCode),
		klog.Str("cr2"), klog.Hex(uint64(asm.ReadCR2())),
		klog.Str("rax"), klog.Hex(tf.RAX),
		klog.Str("rbx"), klog.Hex(tf.RBX),
		klog.Str("rcx"), klog.Hex(tf.RCX),
		klog.Str("rdx"), klog.Hex(tf.RDX),
		klog.Str("rsi"), klog.Hex(tf.RSI),
		klog.Str("rdi"), klog.Hex(tf.RDI),
		klog.Str("rbp"), klog.Hex(tf.RBP),
		klog.Str("r8"), klog.Hex(tf.R8),
		klog.Str("r9"), klog.Hex(tf.R9),
		klog.Str("r10"), klog.Hex(tf.R10),
		klog.Str("r11"), klog.Hex(tf.R11),
		klog.Str("r12"), klog.Hex(tf.R12),
		klog.Str("r13"), klog.Hex(tf.R13),
		klog.Str("r14"), klog.Hex(tf.R14),
		klog.Str("r15"), klog.Hex(tf.R15),
		klog.Str("rsp"), klog.Hex(tf.RSP),
	)
	haltForever()
}

//go:nosplit
func haltForever() {
	for {
		asm.Cli()
		asm.Hlt()
	}
}
