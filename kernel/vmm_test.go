package main

import (
	"testing"
	"unsafe"
)

// resetVMMForTest backs physical frames 0..pages-1 with a real,
// page-aligned Go buffer and points hhdmOffset at it, so physToVirt
// addresses in that range are actually dereferenceable inside a hosted
// test binary. MapPage/UnmapPage's asm.Invlpg call is conditioned on
// `as == currentSpace`; currentSpace is left at its zero value here so
// that branch — the one piece of this file that needs a real CPU — is
// never reached. vmmInit/SwitchAddressSpace (CR3 reads/writes) are not
// exercised for the same reason: those are privileged instructions this
// process has no business executing.
func resetVMMForTest(t *testing.T, pages int) {
	t.Helper()
	resetPMMForTest()

	buf := make([]byte, (pages+1)*PageSize)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := alignUp(base, PageSize)

	hhdmOffset = aligned
	currentSpace = nil

	totalFrames = uint32(pages)
	usedFrames = 0
	for f := uint32(0); f < uint32(pages); f++ {
		clearBit(f)
	}
}

func newTestAddressSpace(t *testing.T) *AddressSpace {
	t.Helper()
	frame, ok := allocFrame()
	if !ok {
		t.Fatal("allocFrame failed setting up a fresh PML4")
	}
	zeroPage(physToVirt(frame))
	return &AddressSpace{pml4Phys: frame}
}

func TestMapPageThenTranslateRoundTrip(t *testing.T) {
	resetVMMForTest(t, 64)
	as := newTestAddressSpace(t)

	phys, ok := allocFrame()
	if !ok {
		t.Fatal("allocFrame failed for the page to map")
	}
	virt := uintptr(0x0000_4000_0000)

	if err := MapPage(as, virt, phys, PteFlagPresent|PteFlagWritable); err != nil {
		t.Fatalf("MapPage failed: %v", err)
	}

	if got := Translate(as, virt); got != phys {
		t.Fatalf("Translate(%#x) = %#x, want %#x", virt, got, phys)
	}
	// An offset within the page must translate to the same offset
	// within the physical frame.
	if got := Translate(as, virt+0x123); got != phys+0x123 {
		t.Fatalf("Translate(%#x) = %#x, want %#x", virt+0x123, got, phys+0x123)
	}
}

func TestTranslateUnmappedReturnsZero(t *testing.T) {
	resetVMMForTest(t, 64)
	as := newTestAddressSpace(t)

	if got := Translate(as, 0x0000_5000_0000); got != 0 {
		t.Fatalf("Translate on an unmapped address = %#x, want 0", got)
	}
}

func TestUnmapPageClearsTranslation(t *testing.T) {
	resetVMMForTest(t, 64)
	as := newTestAddressSpace(t)

	phys, _ := allocFrame()
	virt := uintptr(0x0000_4000_0000)
	if err := MapPage(as, virt, phys, PteFlagPresent|PteFlagWritable); err != nil {
		t.Fatalf("MapPage failed: %v", err)
	}

	UnmapPage(as, virt)
	if got := Translate(as, virt); got != 0 {
		t.Fatalf("Translate after UnmapPage = %#x, want 0", got)
	}
}

func TestUnmapPageOnNeverMappedAddressIsNoOp(t *testing.T) {
	resetVMMForTest(t, 64)
	as := newTestAddressSpace(t)
	UnmapPage(as, 0x0000_7000_0000) // must not panic walking absent tables
}

func TestMapRegionRollsBackOnPartialFailure(t *testing.T) {
	// Exactly enough frames for the PML4 plus one PDPT/PD/PT chain: the
	// first two pages (which share that PT) succeed, the third crosses
	// a 2 MiB boundary and needs one more PT frame that isn't there, so
	// MapRegion must fail and unwind the two it already mapped.
	resetVMMForTest(t, 4)
	as := newTestAddressSpace(t)

	const boundary = uintptr(1) << l2Shift // 0x200000
	virt := boundary - 2*PageSize
	err := MapRegion(as, virt, 0, 4*PageSize, PteFlagPresent|PteFlagWritable)
	if err == nil {
		t.Fatal("MapRegion should have failed crossing the 2 MiB boundary with no frames left")
	}
	if got := Translate(as, virt); got != 0 {
		t.Fatalf("Translate(%#x) = %#x after a rolled-back MapRegion, want 0", virt, got)
	}
	if got := Translate(as, virt+PageSize); got != 0 {
		t.Fatalf("Translate(%#x) = %#x after a rolled-back MapRegion, want 0", virt+PageSize, got)
	}
}

func TestMapPageRefusesToDescendIntoHugePage(t *testing.T) {
	resetVMMForTest(t, 64)
	as := newTestAddressSpace(t)

	virt := uintptr(0x0000_4000_0000)
	pml4 := tableAt(as.pml4Phys)
	pdptPhys, _, err := walkOrAlloc(pml4, int((virt>>l4Shift)&idxMask), false)
	if err != nil {
		t.Fatalf("walkOrAlloc failed: %v", err)
	}
	pdpt := tableAt(pdptPhys)
	// Plant a 1 GiB huge leaf exactly where MapPage needs to descend.
	pdpt[(virt>>l3Shift)&idxMask] = uint64(PteFlagPresent | PteFlagWritable | PteFlagHuge)

	if err := MapPage(as, virt, 0, PteFlagPresent|PteFlagWritable); err != ErrHugePageConflict {
		t.Fatalf("MapPage over a huge leaf = %v, want ErrHugePageConflict", err)
	}
}

func TestCreateAddressSpaceMirrorsKernelUpperHalf(t *testing.T) {
	resetVMMForTest(t, 64)

	kframe, ok := allocFrame()
	if !ok {
		t.Fatal("allocFrame failed for the fake kernel PML4")
	}
	zeroPage(physToVirt(kframe))
	kernelSpace.pml4Phys = kframe
	tableAt(kframe)[300] = 0xDEADBEEF | PteFlagPresent

	as := CreateAddressSpace()
	if as == nil {
		t.Fatal("CreateAddressSpace failed")
	}
	got := tableAt(as.pml4Phys)[300]
	if got != tableAt(kframe)[300] {
		t.Fatalf("upper-half entry = %#x, want mirrored kernel entry %#x", got, tableAt(kframe)[300])
	}
	for i := 0; i < 256; i++ {
		if tableAt(as.pml4Phys)[i] != 0 {
			t.Fatalf("lower-half entry %d = %#x, want 0 in a fresh address space", i, tableAt(as.pml4Phys)[i])
		}
	}
}

func TestDestroyAddressSpaceFreesLowerHalfOnly(t *testing.T) {
	resetVMMForTest(t, 64)
	kframe, _ := allocFrame()
	zeroPage(physToVirt(kframe))
	kernelSpace.pml4Phys = kframe

	as := CreateAddressSpace()
	if as == nil {
		t.Fatal("CreateAddressSpace failed")
	}
	phys, _ := allocFrame()
	if err := MapPage(as, 0x0000_4000_0000, phys, PteFlagPresent|PteFlagWritable); err != nil {
		t.Fatalf("MapPage failed: %v", err)
	}

	before := usedFrames
	DestroyAddressSpace(as)
	if usedFrames >= before {
		t.Fatalf("usedFrames = %d, want fewer than %d after destroying an address space", usedFrames, before)
	}
	// The kernel's own PML4 frame must survive — DestroyAddressSpace
	// must never free shared upper-half infrastructure.
	if testBitExported(kframe) == false {
		t.Fatal("DestroyAddressSpace freed the shared kernel PML4 frame")
	}
}

func testBitExported(phys uintptr) bool { return testBit(uint32(phys / PageSize)) }
