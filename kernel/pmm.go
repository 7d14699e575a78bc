package main

import (
	"math/bits"

	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Physical frame allocator (spec §3 "Frame bitmap", §4.E). One bit per
// 4 KiB frame, set iff the frame is unavailable. maxFrames covers 4 GiB
// of physical address space, the spec's stated minimum; a machine with
// more RAM simply has its excess marked used at Init and never handed
// out — extending the bitmap size is a compile-time constant change,
// not a design change.
const (
	maxFrames    = 4 * 1024 * 1024 * 1024 / PageSize // 1,048,576 frames
	bitmapWords  = maxFrames / 64
)

var (
	frameBitmap [bitmapWords]uint64
	totalFrames uint32
	usedFrames  uint32
	pmmInited   bool
)

// pmmInit implements spec §4.E's three-step algorithm exactly: mark
// everything used, clear bits for every Available region, then re-set
// the regions that are used regardless of what the memory map claims
// (low 1 MiB, kernel image, bitmap storage).
//go:nosplit
func pmmInit(info BootInfo) {
	for i := range frameBitmap {
		frameBitmap[i] = ^uint64(0)
	}
	totalFrames = 0
	usedFrames = maxFrames

	for _, region := range info.MemoryMap {
		if region.Type != MemAvailable {
			continue
		}
		startFrame := ceilDiv(region.Addr, PageSize)
		endFrame := uint32((region.Addr + region.Length) / PageSize) // floor, per spec §4.E
		for f := startFrame; f < endFrame && f < maxFrames; f++ {
			clearBit(uint32(f))
		}
	}

	// Count total frames as however many are Available right now,
	// before re-reserving the low megabyte/kernel/bitmap — those
	// reservations reduce free_bytes(), not total_bytes().
	totalFrames = 0
	for f := uint32(0); f < maxFrames; f++ {
		if !testBit(f) {
			totalFrames++
		}
	}

	markRangeUsed(0, 1024*1024/PageSize) // first 1 MiB
	markKernelUsed()
	markBitmapUsed()

	usedFrames = 0
	for f := uint32(0); f < maxFrames; f++ {
		if testBit(f) {
			usedFrames++
		}
	}

	pmmInited = true
}

// markKernelUsed re-reserves the frames backing the kernel image.
// kernelVirtBase mirrors boot/linker.ld's KERNEL_VIRT_BASE; the image
// is linked high but loaded low, so its physical frames are the
// virtual symbols minus that offset.
const kernelVirtBase = 0xFFFFFFFF80000000

//go:nosplit
func markKernelUsed() {
	start := getLinkerSymbol(SymKernelStart)
	end := getLinkerSymbol(SymKernelEnd)
	if start >= kernelVirtBase {
		start -= kernelVirtBase
	}
	if end >= kernelVirtBase {
		end -= kernelVirtBase
	}
	markRangeUsed(uint32(start/PageSize), uint32(ceilDiv(uint64(end), PageSize)))
}

// markBitmapUsed reserves the bitmap's own backing storage. The bitmap
// is a kernel .bss array, so it is already covered by markKernelUsed;
// this exists so a future implementation that places the bitmap
// outside the kernel image (e.g. to size it from the real detected RAM
// rather than a compile-time constant) has a single place to update.
//go:nosplit
func markBitmapUsed() {}

//go:nosplit
func markRangeUsed(startFrame, endFrame uint32) {
	for f := startFrame; f < endFrame && f < maxFrames; f++ {
		setBit(f)
	}
}

//go:nosplit
func ceilDiv(a uint64, b uint64) uint32 {
	return uint32((a + b - 1) / b)
}

//go:nosplit
func testBit(f uint32) bool {
	return frameBitmap[f/64]&(1<<(f%64)) != 0
}

//go:nosplit
func setBit(f uint32) {
	frameBitmap[f/64] |= 1 << (f % 64)
}

//go:nosplit
func clearBit(f uint32) {
	frameBitmap[f/64] &^= 1 << (f % 64)
}

// allocFrame performs the word-at-a-time linear scan spec §4.E
// describes: skip fully-set words outright, bit-scan the first word
// with a clear bit via bits.TrailingZeros64 (the standard-library
// primitive built for exactly this; no third-party bitset earns its
// keep here — see DESIGN.md).
//go:nosplit
func allocFrame() (uintptr, bool) {
	for w := range frameBitmap {
		if frameBitmap[w] == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^frameBitmap[w])
		frame := uint32(w*64 + bit)
		if frame >= maxFrames {
			return 0, false
		}
		setBit(frame)
		usedFrames++
		return uintptr(frame) * PageSize, true
	}
	return 0, false
}

// allocContiguous implements spec §4.E's single-pass run-length scan:
// no compaction, fail outright if the scan reaches the end without
// finding n consecutive clear bits.
//go:nosplit
func allocContiguous(n uint32) (uintptr, bool) {
	if n == 0 {
		return 0, false
	}
	runStart := uint32(0)
	runLen := uint32(0)
	for f := uint32(0); f < maxFrames; f++ {
		if testBit(f) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = f
		}
		runLen++
		if runLen == n {
			markRangeUsed(runStart, runStart+n)
			usedFrames += n
			return uintptr(runStart) * PageSize, true
		}
	}
	return 0, false
}

// freeFrame is a no-op on double free or an out-of-range address, per
// spec §4.E's failure semantics; it only warns on the former.
//go:nosplit
func freeFrame(phys uintptr) {
	if phys%PageSize != 0 {
		return
	}
	f := uint32(phys / PageSize)
	if f >= maxFrames {
		return
	}
	if !testBit(f) {
		klog.Warnf("pmm: double free", klog.Hex(uint64(phys)))
		return
	}
	clearBit(f)
	usedFrames--
}

//go:nosplit
func freeContiguous(phys uintptr, n uint32) {
	for i := uint32(0); i < n; i++ {
		freeFrame(phys + uintptr(i)*PageSize)
	}
}

//go:nosplit
func totalBytes() uint64 { return uint64(totalFrames) * PageSize }
//go:nosplit
func freeBytes() uint64  { return uint64(totalFrames-usedFrames) * PageSize }
