package main

// x86_64 CPU exception vectors 0-31 (spec §4.C "exception name table").
// Grounded on the teacher's exceptions.go idea of a static name-per-
// vector table consulted only for diagnostics, replayed against the
// Intel SDM vol. 3 vector assignments instead of AArch64 ESR.EC codes.

var exceptionNames = [32]string{
	0:  "divide-by-zero",
	1:  "debug",
	2:  "non-maskable-interrupt",
	3:  "breakpoint",
	4:  "overflow",
	5:  "bound-range-exceeded",
	6:  "invalid-opcode",
	7:  "device-not-available",
	8:  "double-fault",
	9:  "coprocessor-segment-overrun",
	10: "invalid-tss",
	11: "segment-not-present",
	12: "stack-segment-fault",
	13: "general-protection-fault",
	14: "page-fault",
	15: "reserved",
	16: "x87-floating-point",
	17: "alignment-check",
	18: "machine-check",
	19: "simd-floating-point",
	20: "virtualization",
	21: "control-protection",
	22: "reserved", 23: "reserved", 24: "reserved", 25: "reserved",
	26: "reserved", 27: "reserved",
	28: "hypervisor-injection",
	29: "vmm-communication",
	30: "security",
	31: "reserved",
}

const vectorPageFault = 14

//go:nosplit
func exceptionName(vector int) string {
	if vector < 0 || vector >= len(exceptionNames) {
		return "unknown-exception"
	}
	return exceptionNames[vector]
}

// pageFaultErrorBits decodes the CPU-pushed error code for vector 14,
// per spec §4.C's page-fault classification (present/write/user/
// reserved-bit/instruction-fetch).
type pageFaultErrorBits struct {
	Present  bool
	Write    bool
	User     bool
	Reserved bool
	Fetch    bool
}

//go:nosplit
func decodePageFaultError(code uint64) pageFaultErrorBits {
	return pageFaultErrorBits{
		Present:  code&(1<<0) != 0,
		Write:    code&(1<<1) != 0,
		User:     code&(1<<2) != 0,
		Reserved: code&(1<<3) != 0,
		Fetch:    code&(1<<4) != 0,
	}
}

// handlePageFault is installed on vector 14 by kernelEntry. Per spec
// §4.C/§7 a kernel-mode page fault with no handler is always fatal;
// there is no demand-paging or copy-on-write path in this kernel.
//go:nosplit
func handlePageFault(tf *TrapFrame) {
	panicWithFrame("page-fault", tf)
}
