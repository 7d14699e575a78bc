package main

import (
	"unsafe"

	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Kernel heap (spec §4.G): a first-fit free-list allocator over a
// single fixed-size virtual region, physically backed at init and
// never grown. Adapts the teacher's heap.go — a block header
// immediately preceding each region, doubly linked via next/prev,
// split-on-alloc and coalesce-on-free — replacing its best-fit search
// and RPi-stack-boundary special-casing with spec §4.G's first-fit
// walk and a region backed by the PMM/VMM instead of a fixed physical
// layout assumption.

const (
	heapMagic       = 0x4B484150 // "KHAP"
	heapAlign       = 16
	heapRegionSize  = 4 * 1024 * 1024 // spec §4.G: "fixed initial size (e.g. 1-4 MiB)"
	heapMinPayload  = 16
)

// heapBlock is the header spec §3's "Heap block" names: size, a
// free-flag, the doubly linked list, and a validity marker. Embedded
// in the region it describes.
type heapBlock struct {
	magic uint32
	free  uint32
	size  uint32
	_pad  uint32
	next  *heapBlock
	prev  *heapBlock
}

var heapHead *heapBlock
var heapVirtStart uintptr
var heapTotalBytes uint64
var heapUsedBytes uint64

const heapHeaderSize = unsafe.Sizeof(heapBlock{})

// heapInit backs heapRegionSize bytes with freshly allocated frames,
// maps them into the kernel address space immediately above the
// kernel image, and initializes the first header as one free block
// spanning the whole region minus its own header (spec §4.G Layout).
//go:nosplit
func heapInit() {
	frameCount := uint32(heapRegionSize / PageSize)
	phys, ok := allocContiguous(frameCount)
	if !ok {
		kpanicf("heap: failed to reserve backing frames")
	}

	heapVirtStart = physToVirt(phys)
	if err := MapRegion(&kernelSpace, heapVirtStart, phys, heapRegionSize, PteFlagWritable); err != nil {
		kpanicf("heap: failed to map region", kv("virt", heapVirtStart))
	}

	heapHead = castToPointer[heapBlock](heapVirtStart)
	*heapHead = heapBlock{
		magic: heapMagic,
		free:  1,
		size:  uint32(heapRegionSize) - uint32(heapHeaderSize),
	}
	heapTotalBytes = uint64(heapHead.size)
	heapUsedBytes = 0

	klog.Infof("heap: region mapped", klog.Str("bytes"), klog.Uint(uint64(heapRegionSize)))
}

// roundUp16 implements spec §4.G step 1: round the payload request up
// to a 16-byte alignment and a minimum block size.
//go:nosplit
func roundUp16(size uint32) uint32 {
	if size < heapMinPayload {
		size = heapMinPayload
	}
	return (size + heapAlign - 1) &^ (heapAlign - 1)
}

// kmalloc implements spec §4.G's first-fit allocation algorithm.
//go:nosplit
func kmalloc(size uint32) unsafe.Pointer {
	if size == 0 || heapHead == nil {
		return nil
	}
	need := roundUp16(size)

	for b := heapHead; b != nil; b = b.next {
		if b.magic != heapMagic {
			kpanicf("heap: corrupt block header", kv("addr", uintptr(unsafe.Pointer(b))))
		}
		if b.free == 0 || b.size < need {
			continue
		}

		// Split if the remainder can hold another header plus the
		// minimum payload (spec §4.G step 3).
		if uint64(b.size)-uint64(need) >= uint64(heapHeaderSize)+heapMinPayload {
			newAddr := uintptr(unsafe.Pointer(b)) + heapHeaderSize + uintptr(need)
			newBlock := castToPointer[heapBlock](newAddr)
			*newBlock = heapBlock{
				magic: heapMagic,
				free:  1,
				size:  b.size - need - uint32(heapHeaderSize),
				next:  b.next,
				prev:  b,
			}
			if b.next != nil {
				b.next.prev = newBlock
			}
			b.next = newBlock
			b.size = need
		}

		b.free = 0
		heapUsedBytes += uint64(b.size)
		return unsafe.Pointer(uintptr(unsafe.Pointer(b)) + heapHeaderSize)
	}
	return nil
}

// kzalloc is kmalloc followed by a zero-fill of the returned payload.
//go:nosplit
func kzalloc(size uint32) unsafe.Pointer {
	p := kmalloc(size)
	if p == nil {
		return nil
	}
	buf := unsafe.Slice((*byte)(p), int(size))
	for i := range buf {
		buf[i] = 0
	}
	return p
}

// kmallocAligned implements spec §4.G's aligned allocation: over-allocate
// by align bytes, hand back the aligned interior pointer, and store the
// byte offset back to the real kmalloc pointer in the byte immediately
// before it so kfreeAligned can recover it.
//go:nosplit
func kmallocAligned(size uint32, align uint32) unsafe.Pointer {
	if align == 0 || align&(align-1) != 0 {
		return nil // must be a power of two
	}
	raw := kmalloc(size + align)
	if raw == nil {
		return nil
	}
	rawAddr := uintptr(raw)
	aligned := (rawAddr + 1 + uintptr(align-1)) &^ uintptr(align-1)
	offset := byte(aligned - rawAddr)
	*(*byte)(unsafe.Pointer(aligned - 1)) = offset
	return unsafe.Pointer(aligned)
}

//go:nosplit
func kfreeAligned(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	addr := uintptr(ptr)
	offset := *(*byte)(unsafe.Pointer(addr - 1))
	kfree(unsafe.Pointer(addr - uintptr(offset)))
}

// kfree implements spec §4.G's free algorithm: recover the header,
// validate the magic marker, warn (not panic) on an invalid pointer or
// a double free, mark free, then coalesce with both neighbors.
//go:nosplit
func kfree(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	b := castToPointer[heapBlock](uintptr(ptr) - heapHeaderSize)
	if b.magic != heapMagic {
		klog.Warnf("heap: free of invalid pointer", klog.Hex(uint64(uintptr(ptr))))
		return
	}
	if b.free != 0 {
		klog.Warnf("heap: double free", klog.Hex(uint64(uintptr(ptr))))
		return
	}

	b.free = 1
	heapUsedBytes -= uint64(b.size)

	if b.next != nil && b.next.free != 0 {
		absorbNext(b)
	}
	if b.prev != nil && b.prev.free != 0 {
		absorbNext(b.prev)
	}
}

// absorbNext merges b.next into b: free(next) == false whenever
// free(this) == true afterward, per spec §3's heap-block invariant
// ("no two adjacent free blocks").
//go:nosplit
func absorbNext(b *heapBlock) {
	n := b.next
	b.size += uint32(heapHeaderSize) + n.size
	b.next = n.next
	if n.next != nil {
		n.next.prev = b
	}
}

// HeapStats reports the region-wide totals spec §4.G's `stats` exposes.
type HeapStats struct {
	Total uint64
	Used  uint64
	Free  uint64
}

//go:nosplit
func heapStats() HeapStats {
	return HeapStats{Total: heapTotalBytes, Used: heapUsedBytes, Free: heapTotalBytes - heapUsedBytes}
}
