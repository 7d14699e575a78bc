// Package asm exposes the small set of x86_64 primitives that cannot be
// written in Go: port I/O, MSR and control-register access, CPUID, TLB
// invalidation, descriptor-table loads, and the kernel's context-switch
// stub. Every exported function here is a thin declaration backed by
// hand-written assembly in asm_amd64.s; callers treat this package the
// way the teacher kernel treats its own asm package — as the only place
// //go:nosplit MMIO/port code is allowed to reach outside pure Go.
package asm

import "unsafe"

// Port I/O. Each pair polls a single byte/word/dword through the legacy
// I/O bus; used by the PIC, PIT, UART, and PS/2 controller.

//go:noescape
func Inb(port uint16) uint8

//go:noescape
func Outb(port uint16, val uint8)

//go:noescape
func Inw(port uint16) uint16

//go:noescape
func Outw(port uint16, val uint16)

//go:noescape
func Inl(port uint16) uint32

//go:noescape
func Outl(port uint16, val uint32)

// IoWait performs a throwaway write to port 0x80, the conventional
// "give the bus a moment" delay used between PIC initialization steps.
//
//go:noescape
func IoWait()

// Model-specific registers, used by the local APIC base/spurious-vector
// setup and CPU feature probing.

//go:noescape
func Rdmsr(reg uint32) uint64

//go:noescape
func Wrmsr(reg uint32, val uint64)

// Control registers.

//go:noescape
func ReadCR0() uintptr

//go:noescape
func WriteCR0(val uintptr)

//go:noescape
func ReadCR2() uintptr

//go:noescape
func ReadCR3() uintptr

//go:noescape
func WriteCR3(val uintptr)

//go:noescape
func ReadCR4() uintptr

//go:noescape
func WriteCR4(val uintptr)

// CPUID executes the CPUID instruction for the given leaf/subleaf.
//
//go:noescape
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// Invlpg invalidates the TLB entry for a single virtual address.
//
//go:noescape
func Invlpg(virt uintptr)

// FlushTLBAll invalidates the whole TLB by reloading CR3.
func FlushTLBAll() {
	WriteCR3(ReadCR3())
}

// Lgdt/Lidt load the GDT/IDT pseudo-descriptor (limit:base) at ptr.
//
//go:noescape
func Lgdt(ptr unsafe.Pointer)

//go:noescape
func Lidt(ptr unsafe.Pointer)

// Ltr loads the task register with the given GDT selector.
//
//go:noescape
func Ltr(selector uint16)

// Cli/Sti/Hlt map directly to the matching instructions.

//go:noescape
func Cli()

//go:noescape
func Sti()

//go:noescape
func Hlt()

// AreInterruptsEnabled reports the current IF flag from RFLAGS.
//
//go:noescape
func AreInterruptsEnabled() bool

// SwitchContext is the task context switch primitive (spec §4.J).
// It pushes the callee-saved registers of the currently-running task
// onto its own stack, stores the resulting stack pointer into *oldSP,
// loads newSP into the stack pointer, pops the incoming task's
// callee-saved registers, and returns. The very first switch into a
// freshly-created task instead "returns" into that task's entry point,
// because task_create (task.go) primes the new stack to look exactly
// like a stack that had just pushed those registers.
//
//go:noescape
func SwitchContext(oldSP *uintptr, newSP uintptr)

// Linker symbols, resolved by boot/linker.ld and surfaced to Go the same
// way the teacher's memory.go does: one getter per symbol, each backed
// by a label reference in asm_amd64.s rather than a hardcoded address.

//go:noescape
func KernelStart() uintptr

//go:noescape
func KernelTextStart() uintptr

//go:noescape
func KernelTextEnd() uintptr

//go:noescape
func KernelRodataEnd() uintptr

//go:noescape
func KernelDataEnd() uintptr

//go:noescape
func KernelBSSStart() uintptr

//go:noescape
func KernelBSSEnd() uintptr

//go:noescape
func KernelEnd() uintptr
