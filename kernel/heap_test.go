package main

import (
	"testing"
	"unsafe"
)

// resetHeapForTest backs the heap with a plain Go-allocated buffer instead
// of heapInit's PMM/VMM-backed region, the same way pmm_test.go bypasses
// pmmInit by driving frameBitmap directly — there is no mapped physical
// memory in a hosted test binary.
func resetHeapForTest(t *testing.T, size int) {
	t.Helper()
	buf := make([]byte, size)
	heapVirtStart = uintptr(unsafe.Pointer(&buf[0]))
	heapHead = castToPointer[heapBlock](heapVirtStart)
	*heapHead = heapBlock{
		magic: heapMagic,
		free:  1,
		size:  uint32(size) - uint32(heapHeaderSize),
	}
	heapTotalBytes = uint64(heapHead.size)
	heapUsedBytes = 0
}

func TestRoundUp16(t *testing.T) {
	cases := []struct{ in, want uint32 }{
		{0, heapMinPayload},
		{1, 16},
		{16, 16},
		{17, 32},
		{100, 112},
		{200, 208},
	}
	for _, c := range cases {
		if got := roundUp16(c.in); got != c.want {
			t.Fatalf("roundUp16(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

// TestHeapRoundTrip mirrors the spec's "Heap round trip" scenario:
// alloc(100), alloc(200), free both, and steady-state usage must return
// exactly to where it started.
func TestHeapRoundTrip(t *testing.T) {
	resetHeapForTest(t, 64*1024)
	u0 := heapStats().Used

	p := kmalloc(100)
	q := kmalloc(200)
	if p == nil || q == nil {
		t.Fatal("kmalloc failed with plenty of free space")
	}

	want := u0 + 112 + 208
	if got := heapStats().Used; got != want {
		t.Fatalf("used = %d, want %d after two allocations", got, want)
	}

	kfree(p)
	kfree(q)

	if got := heapStats().Used; got != u0 {
		t.Fatalf("used = %d, want %d (u0) after freeing both blocks", got, u0)
	}
}

func TestKmallocSplitsLargeBlock(t *testing.T) {
	resetHeapForTest(t, 64*1024)

	p := kmalloc(32)
	if p == nil {
		t.Fatal("kmalloc(32) failed")
	}
	if heapHead.next == nil {
		t.Fatal("allocating a small chunk out of a large region should split off a remainder block")
	}
	if heapHead.next.free == 0 {
		t.Fatal("the split-off remainder must still be free")
	}
}

func TestKmallocNoSplitWhenRemainderTooSmall(t *testing.T) {
	// Region sized so the single block's 64-byte payload is consumed
	// entirely by one exact-fit allocation, leaving less than
	// header+min-payload.
	size := int(heapHeaderSize)*2 + heapMinPayload + 16
	resetHeapForTest(t, size)

	need := heapHead.size // take the whole payload
	p := kmalloc(need)
	if p == nil {
		t.Fatal("kmalloc failed to satisfy an exact-fit request")
	}
	if heapHead.next != nil {
		t.Fatal("must not split when the remainder can't hold header+min payload")
	}
}

func TestKfreeCoalescesBothNeighbors(t *testing.T) {
	resetHeapForTest(t, 64*1024)

	a := kmalloc(64)
	b := kmalloc(64)
	c := kmalloc(64)
	if a == nil || b == nil || c == nil {
		t.Fatal("setup allocations failed")
	}

	kfree(a)
	kfree(c)
	kfree(b) // b's free should absorb both now-free neighbors

	count := 0
	for blk := heapHead; blk != nil; blk = blk.next {
		count++
	}
	if count != 1 {
		t.Fatalf("expected a single coalesced free block, got %d blocks", count)
	}
	if heapHead.free == 0 {
		t.Fatal("the coalesced block must be marked free")
	}
}

func TestKfreeDoubleFreeIsNoOp(t *testing.T) {
	resetHeapForTest(t, 64*1024)

	p := kmalloc(64)
	kfree(p)
	before := heapStats().Used
	kfree(p) // must warn, not corrupt state or underflow
	if got := heapStats().Used; got != before {
		t.Fatalf("double free changed used bytes: before=%d after=%d", before, got)
	}
}

func TestKzallocZeroesPayload(t *testing.T) {
	resetHeapForTest(t, 64*1024)

	p := kzalloc(64)
	if p == nil {
		t.Fatal("kzalloc failed")
	}
	buf := unsafe.Slice((*byte)(p), 64)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("kzalloc byte %d = %#x, want 0", i, b)
		}
	}
}

func TestKmallocAlignedRoundTrip(t *testing.T) {
	resetHeapForTest(t, 64*1024)

	for _, align := range []uint32{16, 32, 64, 128} {
		p := kmallocAligned(48, align)
		if p == nil {
			t.Fatalf("kmallocAligned(48, %d) failed", align)
		}
		addr := uintptr(p)
		if addr%uintptr(align) != 0 {
			t.Fatalf("kmallocAligned(48, %d) returned unaligned address %#x", align, addr)
		}
		kfreeAligned(p)
	}

	if got := heapStats().Used; got != 0 {
		t.Fatalf("used = %d, want 0 after freeing every aligned allocation", got)
	}
}

func TestKmallocReturnsNilWhenExhausted(t *testing.T) {
	resetHeapForTest(t, int(heapHeaderSize)+heapMinPayload)

	p := kmalloc(heapMinPayload)
	if p == nil {
		t.Fatal("kmalloc failed to satisfy the only block available")
	}
	if q := kmalloc(heapMinPayload); q != nil {
		t.Fatal("kmalloc succeeded with no free blocks remaining")
	}
}
