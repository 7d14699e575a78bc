package main

import (
	"unsafe"

	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Global descriptor table and task-state segment (spec §4.A's ambient
// "the kernel establishes a flat GDT and a TSS for double-fault and
// interrupt stack switching before installing the IDT"). boot.s
// already loads a minimal two-entry GDT to reach long mode; gdtInit
// replaces it with the kernel's real, permanent table (null, kernel
// code, kernel data, user code, user data, TSS) and loads the TSS
// selector via LTR, matching the teacher's pattern of a fixed static
// table built once at init and logged over serial.

const (
	gdtNullIndex = iota
	gdtKernelCodeIndex
	gdtKernelDataIndex
	gdtUserCodeIndex
	gdtUserDataIndex
	gdtTSSLowIndex
	gdtTSSHighIndex // TSS descriptor is 16 bytes, spans two slots
	gdtEntryCount
)

const (
	gdtAccessPresent   = 1 << 7
	gdtAccessDPL3      = 3 << 5
	gdtAccessSegment   = 1 << 4 // code/data, not a system descriptor
	gdtAccessExecute   = 1 << 3
	gdtAccessRW        = 1 << 1
	gdtAccessAccessed  = 1 << 0
	gdtAccessTSSAvail  = 0x9 // 64-bit TSS (available), system descriptor

	gdtFlagGranularity = 1 << 3
	gdtFlagLongMode    = 1 << 1
)

type gdtDescriptor struct {
	limitLow  uint16
	baseLow   uint16
	baseMid   uint8
	access    uint8
	flagsLim  uint8
	baseHigh  uint8
}

type gdtPointer struct {
	limit uint16
	base  uint64
}

var gdt [gdtEntryCount]gdtDescriptor

// TaskStateSegment is the 64-bit TSS layout (Intel SDM vol. 3 §8.7).
// The kernel only uses RSP0 (the stack loaded on a ring3→ring0
// transition) and IST1 (a dedicated double-fault stack); user-mode
// tasks are out of scope per spec Non-goals so RSP1/RSP2 stay zero.
type TaskStateSegment struct {
	_        uint32
	RSP0     uint64
	RSP1     uint64
	RSP2     uint64
	_        uint64
	IST1     uint64
	IST2     uint64
	IST3     uint64
	IST4     uint64
	IST5     uint64
	IST6     uint64
	IST7     uint64
	_        uint64
	_        uint16
	IOMapBase uint16
}

var tss TaskStateSegment

const doubleFaultStackSize = 16 * 1024

var doubleFaultStack [doubleFaultStackSize]byte

//go:nosplit
func setSegmentDescriptor(idx int, access, flags uint8) {
	gdt[idx] = gdtDescriptor{
		limitLow: 0xFFFF,
		access:   access,
		flagsLim: flags<<4 | 0xF,
	}
}

//go:nosplit
func setTSSDescriptor(base uintptr, limit uint32) {
	gdt[gdtTSSLowIndex] = gdtDescriptor{
		limitLow: uint16(limit),
		baseLow:  uint16(base),
		baseMid:  uint8(base >> 16),
		access:   gdtAccessPresent | gdtAccessTSSAvail,
		flagsLim: uint8((limit >> 16) & 0xF),
		baseHigh: uint8(base >> 24),
	}
	// The upper 32 bits of a 64-bit TSS base occupy the entire next
	// descriptor slot, per the SDM's 16-byte system descriptor layout.
	gdt[gdtTSSHighIndex] = gdtDescriptor{
		limitLow: uint16(base >> 32),
		baseLow:  uint16(base >> 48),
	}
}

// gdtInit builds the permanent GDT and TSS and loads both, per spec
// §4.A. Must run before idtInit so IST1 is available for the
// double-fault gate.
//go:nosplit
func gdtInit() {
	setSegmentDescriptor(gdtKernelCodeIndex,
		gdtAccessPresent|gdtAccessSegment|gdtAccessExecute|gdtAccessRW,
		gdtFlagGranularity|gdtFlagLongMode)
	setSegmentDescriptor(gdtKernelDataIndex,
		gdtAccessPresent|gdtAccessSegment|gdtAccessRW,
		gdtFlagGranularity)
	setSegmentDescriptor(gdtUserCodeIndex,
		gdtAccessPresent|gdtAccessDPL3|gdtAccessSegment|gdtAccessExecute|gdtAccessRW,
		gdtFlagGranularity|gdtFlagLongMode)
	setSegmentDescriptor(gdtUserDataIndex,
		gdtAccessPresent|gdtAccessDPL3|gdtAccessSegment|gdtAccessRW,
		gdtFlagGranularity)

	tss.IST1 = uint64(uintptr(unsafe.Pointer(&doubleFaultStack[doubleFaultStackSize-1])))
	setTSSDescriptor(uintptr(unsafe.Pointer(&tss)), uint32(unsafe.Sizeof(tss)-1))

	ptr := gdtPointer{
		limit: uint16(unsafe.Sizeof(gdt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&gdt[0]))),
	}
	asm.Lgdt(unsafe.Pointer(&ptr))
	asm.Ltr(uint16(gdtTSSLowIndex * 8))

	klog.Infof("gdt: loaded", klog.Str("entries"), klog.Uint(uint64(gdtEntryCount)))
}
