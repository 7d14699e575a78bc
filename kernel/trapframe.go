package main

// TrapFrame mirrors exactly what idt_stubs_amd64.s pushes before
// calling into trapRouter, in reverse push order (spec §4.C: "a
// per-vector stub pushes a synthetic error-code of zero for vectors
// that do not receive one, then the vector number, then jumps to a
// shared stub that saves all general-purpose registers").
type TrapFrame struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RBP, RDI, RSI, RDX, RCX, RBX, RAX    uint64

	Vector    uint64
	ErrorCode uint64

	// Pushed by the CPU itself on any trap/interrupt.
	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}
