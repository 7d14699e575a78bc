package main

import "testing"

// resetPMMForTest clears global allocator state between test cases; the
// real kernel never tears PMM down (§9 "no teardown"), but unit tests
// need isolation between independent allocation scenarios.
func resetPMMForTest() {
	for i := range frameBitmap {
		frameBitmap[i] = ^uint64(0)
	}
	totalFrames = 0
	usedFrames = 0
}

func TestAllocFrameThenFreeRestoresFreeBytes(t *testing.T) {
	resetPMMForTest()
	totalFrames = 16
	for f := uint32(0); f < 16; f++ {
		clearBit(f)
	}

	before := freeBytes()
	phys, ok := allocFrame()
	if !ok {
		t.Fatal("allocFrame failed on a fresh bitmap")
	}
	if phys%PageSize != 0 {
		t.Fatalf("frame address %#x is not page-aligned", phys)
	}
	freeFrame(phys)

	if got := freeBytes(); got != before {
		t.Fatalf("free_bytes() = %d, want %d after alloc+free round trip", got, before)
	}
}

func TestAllocFrameExhaustionReturnsFalse(t *testing.T) {
	resetPMMForTest()
	totalFrames = 4
	for f := uint32(0); f < 4; f++ {
		clearBit(f)
	}
	for i := 0; i < 4; i++ {
		if _, ok := allocFrame(); !ok {
			t.Fatalf("allocFrame failed before exhaustion at iteration %d", i)
		}
	}
	if _, ok := allocFrame(); ok {
		t.Fatal("allocFrame succeeded after the bitmap was exhausted")
	}
	if got := freeBytes(); got != 0 {
		t.Fatalf("free_bytes() = %d, want 0 when exhausted", got)
	}
}

func TestAllocContiguousFindsRun(t *testing.T) {
	resetPMMForTest()
	totalFrames = 32
	for f := uint32(0); f < 32; f++ {
		clearBit(f)
	}
	// Fragment: frame 5 is pre-used, breaking any run that crosses it.
	setBit(5)
	usedFrames = 1

	phys, ok := allocContiguous(4)
	if !ok {
		t.Fatal("allocContiguous(4) failed with plenty of contiguous space")
	}
	start := uint32(phys / PageSize)
	if start <= 5 && start+4 > 5 {
		t.Fatalf("allocated run [%d,%d) crosses the pre-used frame 5", start, start+4)
	}
}

func TestAllocContiguousFailsWithoutEnoughRun(t *testing.T) {
	resetPMMForTest()
	totalFrames = 8
	for f := uint32(0); f < 8; f++ {
		clearBit(f)
	}
	setBit(3) // breaks the bitmap into two runs of length < 8
	usedFrames = 1

	if _, ok := allocContiguous(8); ok {
		t.Fatal("allocContiguous(8) succeeded despite no single run of that length")
	}
}

func TestDoubleFreeIsNoOp(t *testing.T) {
	resetPMMForTest()
	totalFrames = 4
	for f := uint32(0); f < 4; f++ {
		clearBit(f)
	}
	phys, _ := allocFrame()
	freeFrame(phys)
	before := usedFrames
	freeFrame(phys) // second free: must not underflow usedFrames
	if usedFrames != before {
		t.Fatalf("double free changed usedFrames: before=%d after=%d", before, usedFrames)
	}
}

func TestUsedFramesNeverExceedsTotalFrames(t *testing.T) {
	resetPMMForTest()
	totalFrames = 8
	for f := uint32(0); f < 8; f++ {
		clearBit(f)
	}
	for i := 0; i < 10; i++ {
		allocFrame()
	}
	if usedFrames > totalFrames {
		t.Fatalf("used_frames (%d) exceeds total_frames (%d)", usedFrames, totalFrames)
	}
}
