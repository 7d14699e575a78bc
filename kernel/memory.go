package main

import (
	"unsafe"

	"github.com/kestrelkernel/kestrel/internal/asm"
)

// PageSize is the frame/page granularity the whole kernel assumes.
const PageSize = 4096

// LinkerSymbol identifies one of the addresses boot/linker.ld exports.
// getLinkerSymbol centralizes access the same way the teacher's
// memory.go does, so no file hardcodes a kernel-image address.
type LinkerSymbol int

const (
	SymKernelStart LinkerSymbol = iota
	SymTextStart
	SymTextEnd
	SymRodataEnd
	SymDataEnd
	SymBSSStart
	SymBSSEnd
	SymKernelEnd
)

//go:nosplit
func getLinkerSymbol(name LinkerSymbol) uintptr {
	switch name {
	case SymKernelStart:
		return asm.KernelStart()
	case SymTextStart:
		return asm.KernelTextStart()
	case SymTextEnd:
		return asm.KernelTextEnd()
	case SymRodataEnd:
		return asm.KernelRodataEnd()
	case SymDataEnd:
		return asm.KernelDataEnd()
	case SymBSSStart:
		return asm.KernelBSSStart()
	case SymBSSEnd:
		return asm.KernelBSSEnd()
	case SymKernelEnd:
		return asm.KernelEnd()
	default:
		return 0
	}
}

// alignDown/alignUp round an address to the nearest (lower/upper)
// multiple of align, which must be a power of two.

//go:nosplit
func alignDown(addr uintptr, align uintptr) uintptr {
	return addr &^ (align - 1)
}

//go:nosplit
func alignUp(addr uintptr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// castToPointer converts a uintptr address to a typed pointer, hiding
// the unsafe.Pointer conversion at every call site the way the
// teacher's generic helper of the same name does.
//
//go:nosplit
func castToPointer[T any](addr uintptr) *T {
	return (*T)(unsafe.Pointer(addr))
}

//go:nosplit
func readMemory32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

//go:nosplit
func writeMemory32(addr uintptr, value uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = value
}

//go:nosplit
func readMemory64(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}

//go:nosplit
func writeMemory64(addr uintptr, value uint64) {
	*(*uint64)(unsafe.Pointer(addr)) = value
}

// zeroPage zeroes exactly one PageSize-aligned frame, used whenever the
// VMM or PMM hands out a fresh page-table frame.
//
//go:nosplit
func zeroPage(addr uintptr) {
	words := (*[PageSize / 8]uint64)(unsafe.Pointer(addr))
	for i := range words {
		words[i] = 0
	}
}
