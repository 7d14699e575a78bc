package main

import (
	"unsafe"

	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Interrupt and exception dispatch (spec §3 "Interrupt handler table",
// §4.C). Grounds on the teacher's exceptions.go shape (a vector table,
// a per-vector info struct, relocate-then-install logged over serial)
// replayed against x86_64's IDT instead of AArch64's VBAR_EL1 vector
// table.

type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	zero       uint32
}

const (
	idtVectorCount = 256
	idtKernelCS    = 0x08 // matches boot.s's gdt64 64-bit code selector

	idtTypeInterruptGate = 0x8E // present, DPL0, 64-bit interrupt gate
)

var idt [idtVectorCount]idtEntry

type idtPointer struct {
	limit uint16
	base  uint64
}

// HandlerFunc is a registered vector handler; nil means "use the
// default" (panic for exceptions, log-and-continue for IRQs/unknown
// vectors), per spec §3's "A null entry denotes 'default handler'".
type HandlerFunc func(tf *TrapFrame)

var handlerTable [idtVectorCount]HandlerFunc

// stubAddress is provided by idt_stubs_amd64.s: it returns entry
// vector of stubTable, the address of that vector's entry stub. Each
// stub pushes its own vector number (and a zero error-code placeholder
// where the CPU doesn't supply one) before jumping to the shared
// trampoline that calls trapRouter.
//
//go:noescape
//go:nosplit
func stubAddress(vector int) uintptr

//go:nosplit
func idtSetGate(vector int, handlerAddr uintptr) {
	idt[vector] = idtEntry{
		offsetLow:  uint16(handlerAddr),
		selector:   idtKernelCS,
		ist:        0,
		typeAttr:   idtTypeInterruptGate,
		offsetMid:  uint16(handlerAddr >> 16),
		offsetHigh: uint32(handlerAddr >> 32),
	}
}

// idtInit installs all 256 stub entries then loads IDTR, per spec
// §4.C. Handlers themselves are registered afterwards with
// InstallVector; an uninstalled vector still has a working stub, it
// just falls through to the default behavior in trapRouter.
//go:nosplit
func idtInit() {
	klog.Infof("idt: installing vector table")
	for v := 0; v < idtVectorCount; v++ {
		idtSetGate(v, stubAddress(v))
	}
	// The double-fault gate runs on tss.IST1 (gdtInit).
	idt[8].ist = 1

	ptr := idtPointer{
		limit: uint16(unsafe.Sizeof(idt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&idt[0]))),
	}
	asm.Lidt(unsafe.Pointer(&ptr))
	klog.Infof("idt: loaded")
}

// InstallVector registers handler for vector, per spec §4.C's
// `install_vector(vector, handler)`. Installing vector 255 (spurious)
// is accepted but, per spec §8, never invoked by hardware under normal
// operation.
//go:nosplit
func InstallVector(vector int, handler HandlerFunc) {
	if vector < 0 || vector >= idtVectorCount {
		return
	}
	handlerTable[vector] = handler
}

//go:nosplit
func Enable()  { asm.Sti() }
//go:nosplit
func Disable() { asm.Cli() }

var loggedUnknownVector [idtVectorCount]bool

// trapRouter is called by the shared assembly stub with a pointer to
// the just-saved TrapFrame. Its three-way dispatch (exception / legacy
// IRQ / other) is exactly spec §4.C's router algorithm.
//
//go:nosplit
func trapRouter(tf *TrapFrame) {
	v := int(tf.Vector)
	switch {
	case v < 32:
		if h := handlerTable[v]; h != nil {
			h(tf)
			return
		}
		panicWithFrame(exceptionName(v), tf)

	case v >= 32 && v < 48:
		if h := handlerTable[v]; h != nil {
			h(tf)
		} else if !loggedUnknownVector[v] {
			klog.Warnf("idt: unhandled vector", klog.Uint(uint64(v)))
			loggedUnknownVector[v] = true
		}
		irq := v - 32
		acknowledgeIRQ(irq)

	default:
		if h := handlerTable[v]; h != nil {
			h(tf)
			return
		}
		if !loggedUnknownVector[v] {
			klog.Warnf("idt: unhandled vector", klog.Uint(uint64(v)))
			loggedUnknownVector[v] = true
		}
	}
}
