package main

import "github.com/kestrelkernel/kestrel/internal/asm"

// Virtual memory manager (spec §3 "Page-table hierarchy"/"Address
// space", §4.F). Adapts the teacher's mmu.go: the same
// constant-per-bit layout and L0_SHIFT..L3_SHIFT level-shift table,
// with ARM64's AP/MAIR/shareability bits swapped for the x86_64
// present/writable/user/PWT/PCD/accessed/dirty/huge/global/NX set
// spec §3 names, and the teacher's single static kernel directory
// generalized into create/destroy per-address-space PML4s.

// Page table entry bits (x86_64).
const (
	PteFlagPresent  = 1 << 0
	PteFlagWritable = 1 << 1
	PteFlagUser     = 1 << 2
	PteFlagPWT      = 1 << 3
	PteFlagPCD      = 1 << 4
	PteFlagAccessed = 1 << 5
	PteFlagDirty    = 1 << 6
	PteFlagHuge     = 1 << 7
	PteFlagGlobal   = 1 << 8
	PteFlagNX       = 1 << 63

	pteAddrMask = 0x000F_FFFF_FFFF_F000 // bits 12..51
)

const (
	pteCount  = 512
	l4Shift   = 39 // PML4 index: bits 47..39
	l3Shift   = 30 // PDPT index: bits 38..30
	l2Shift   = 21 // PD index:   bits 29..21
	l1Shift   = 12 // PT index:   bits 20..12
	idxMask   = 0x1FF
)

// userspaceCeiling is the first virtual address CreateAddressSpace's
// PML4 index 256 split hands to the kernel's shared upper half (spec
// §3's "upper half 256..511 mirrors the kernel" invariant): PML4 index
// 256 begins at virtual address 256<<l4Shift. Every user pointer must
// fall strictly below this boundary; syscall.go's validateUserPointer
// is the only other place that cares about this split.
const userspaceCeiling = uintptr(256) << l4Shift

type pageTable [pteCount]uint64

// AddressSpace is a handle over one PML4 frame and everything
// reachable below it (spec §3 "Address space"). The kernel's own
// address space is kernelSpace; every other one is created via
// CreateAddressSpace.
type AddressSpace struct {
	pml4Phys uintptr
}

var kernelSpace AddressSpace
var currentSpace *AddressSpace

// hhdmOffset translates an arbitrary physical address into a kernel
// virtual address without needing a per-mapping page-table walk. It
// is fixed at kernelVirtBase, so physToVirt reuses boot.s's
// higher-half mirror of the low 1 GiB of physical memory; nothing in
// the boot path changes it from the boot info or in vmmInit.
var hhdmOffset uintptr = kernelVirtBase

//go:nosplit
func physToVirt(phys uintptr) uintptr { return phys + hhdmOffset }

//go:nosplit
func tableAt(phys uintptr) *pageTable {
	return castToPointer[pageTable](physToVirt(phys))
}

// vmmInit establishes the kernel's own AddressSpace from the PML4 that
// boot.s built (identity-mapped low 1 GiB + its higher-half mirror),
// then maps in the framebuffer and local-APIC MMIO windows so both are
// usable the instant vmmInit returns, per spec §4.F's invariant.
//go:nosplit
func vmmInit(info BootInfo) {
	kernelSpace.pml4Phys = asm.ReadCR3() &^ 0xFFF
	currentSpace = &kernelSpace

	if info.Framebuffer.Present {
		size := uint64(info.Framebuffer.Pitch) * uint64(info.Framebuffer.Height)
		mapRegionOrPanic(physToVirt(uintptr(info.Framebuffer.Addr)), uintptr(info.Framebuffer.Addr),
			uintptr(size), PteFlagWritable|PteFlagPCD)
	}

	mapRegionOrPanic(physToVirt(localAPICBase), localAPICBase, PageSize, PteFlagWritable|PteFlagPCD)
}

//go:nosplit
func mapRegionOrPanic(virt, phys, size uintptr, flags uint64) {
	if err := MapRegion(currentSpace, virt, phys, size, flags); err != nil {
		kpanicf("vmm: failed to map required region", kv("virt", virt), kv("phys", phys))
	}
}

// walkOrAlloc returns the next-level table physical address for index
// idx of table tbl, allocating and zeroing a fresh page-table frame via
// the PMM if the entry isn't present yet, per spec §4.F's page-walk
// contract. huge reports whether the existing entry is a huge leaf
// (caller must refuse to descend into one).
//go:nosplit
func walkOrAlloc(tbl *pageTable, idx int, userAccessible bool) (phys uintptr, huge bool, err error) {
	entry := tbl[idx]
	if entry&PteFlagPresent != 0 {
		if entry&PteFlagHuge != 0 {
			return 0, true, nil
		}
		return uintptr(entry & pteAddrMask), false, nil
	}

	frame, ok := allocFrame()
	if !ok {
		return 0, false, ErrOutOfMemory
	}
	zeroPage(physToVirt(frame))

	flags := uint64(PteFlagPresent | PteFlagWritable)
	if userAccessible {
		flags |= PteFlagUser
	}
	tbl[idx] = uint64(frame) | flags
	return frame, false, nil
}

// MapPage implements spec §4.F's map_page. virt and phys are aligned
// down to the page boundary; a huge mapping encountered partway down
// the walk is refused per §9's resolved open question (error, no
// split).
//go:nosplit
func MapPage(as *AddressSpace, virt, phys uintptr, flags uint64) error {
	virt = alignDown(virt, PageSize)
	phys = alignDown(phys, PageSize)
	user := flags&PteFlagUser != 0

	pml4 := tableAt(as.pml4Phys)
	pdptPhys, huge, err := walkOrAlloc(pml4, int((virt>>l4Shift)&idxMask), user)
	if err != nil {
		return err
	}
	if huge {
		return ErrHugePageConflict
	}

	pdpt := tableAt(pdptPhys)
	pdPhys, huge, err := walkOrAlloc(pdpt, int((virt>>l3Shift)&idxMask), user)
	if err != nil {
		return err
	}
	if huge {
		return ErrHugePageConflict
	}

	pd := tableAt(pdPhys)
	ptPhys, huge, err := walkOrAlloc(pd, int((virt>>l2Shift)&idxMask), user)
	if err != nil {
		return err
	}
	if huge {
		return ErrHugePageConflict
	}

	pt := tableAt(ptPhys)
	ptIdx := int((virt >> l1Shift) & idxMask)
	pt[ptIdx] = uint64(phys&pteAddrMask) | flags | PteFlagPresent

	if as == currentSpace {
		asm.Invlpg(virt)
	}
	return nil
}

// MapRegion implements spec §4.F's map_region: maps size (rounded up to
// a page) bytes starting at virt/phys, rolling back every page it
// mapped so far if any single MapPage call fails partway through.
//go:nosplit
func MapRegion(as *AddressSpace, virt, phys, size uintptr, flags uint64) error {
	pages := alignUp(size, PageSize) / PageSize
	for i := uintptr(0); i < pages; i++ {
		off := i * PageSize
		if err := MapPage(as, virt+off, phys+off, flags); err != nil {
			for j := uintptr(0); j < i; j++ {
				UnmapPage(as, virt+j*PageSize)
			}
			return err
		}
	}
	return nil
}

// UnmapPage clears the PT entry for virt, if one exists, and
// invalidates its TLB entry. Non-present entries (already unmapped)
// and misses at any higher level are silently ignored.
//go:nosplit
func UnmapPage(as *AddressSpace, virt uintptr) {
	virt = alignDown(virt, PageSize)
	pml4 := tableAt(as.pml4Phys)
	e := pml4[(virt>>l4Shift)&idxMask]
	if e&PteFlagPresent == 0 {
		return
	}
	pdpt := tableAt(uintptr(e & pteAddrMask))
	e = pdpt[(virt>>l3Shift)&idxMask]
	if e&PteFlagPresent == 0 || e&PteFlagHuge != 0 {
		return
	}
	pd := tableAt(uintptr(e & pteAddrMask))
	e = pd[(virt>>l2Shift)&idxMask]
	if e&PteFlagPresent == 0 || e&PteFlagHuge != 0 {
		return
	}
	pt := tableAt(uintptr(e & pteAddrMask))
	idx := int((virt >> l1Shift) & idxMask)
	pt[idx] = 0
	if as == currentSpace {
		asm.Invlpg(virt)
	}
}

// Translate implements spec §4.F's translate: the last successfully
// mapped physical address for virt, or 0 if unmapped at any level.
//go:nosplit
func Translate(as *AddressSpace, virt uintptr) uintptr {
	pageOff := virt & (PageSize - 1)
	virt = alignDown(virt, PageSize)

	pml4 := tableAt(as.pml4Phys)
	e := pml4[(virt>>l4Shift)&idxMask]
	if e&PteFlagPresent == 0 {
		return 0
	}
	pdpt := tableAt(uintptr(e & pteAddrMask))
	e = pdpt[(virt>>l3Shift)&idxMask]
	if e&PteFlagPresent == 0 {
		return 0
	}
	if e&PteFlagHuge != 0 {
		return uintptr(e&pteAddrMask) + (virt & (1<<l3Shift - 1)) + pageOff
	}
	pd := tableAt(uintptr(e & pteAddrMask))
	e = pd[(virt>>l2Shift)&idxMask]
	if e&PteFlagPresent == 0 {
		return 0
	}
	if e&PteFlagHuge != 0 {
		return uintptr(e&pteAddrMask) + (virt & (1<<l2Shift - 1)) + pageOff
	}
	pt := tableAt(uintptr(e & pteAddrMask))
	e = pt[(virt>>l1Shift)&idxMask]
	if e&PteFlagPresent == 0 {
		return 0
	}
	return uintptr(e&pteAddrMask) + pageOff
}

// CreateAddressSpace allocates a fresh PML4, zeroes it, then mirrors
// the kernel's upper half (indices 256..511) by reference, per spec
// §3's address-space invariant.
//go:nosplit
func CreateAddressSpace() *AddressSpace {
	frame, ok := allocFrame()
	if !ok {
		return nil
	}
	zeroPage(physToVirt(frame))

	newPML4 := tableAt(frame)
	kernelPML4 := tableAt(kernelSpace.pml4Phys)
	for i := 256; i < 512; i++ {
		newPML4[i] = kernelPML4[i]
	}

	return &AddressSpace{pml4Phys: frame}
}

// DestroyAddressSpace walks only the lower half (the upper half is
// shared with the kernel and must never be freed here) and frees every
// non-shared page table; huge mappings are leaves and are not
// recursed into, matching spec §4.F.
//go:nosplit
func DestroyAddressSpace(as *AddressSpace) {
	pml4 := tableAt(as.pml4Phys)
	for i4 := 0; i4 < 256; i4++ {
		e4 := pml4[i4]
		if e4&PteFlagPresent == 0 {
			continue
		}
		pdptPhys := uintptr(e4 & pteAddrMask)
		pdpt := tableAt(pdptPhys)
		for i3 := 0; i3 < pteCount; i3++ {
			e3 := pdpt[i3]
			if e3&PteFlagPresent == 0 || e3&PteFlagHuge != 0 {
				continue
			}
			pdPhys := uintptr(e3 & pteAddrMask)
			pd := tableAt(pdPhys)
			for i2 := 0; i2 < pteCount; i2++ {
				e2 := pd[i2]
				if e2&PteFlagPresent == 0 || e2&PteFlagHuge != 0 {
					continue
				}
				freeFrame(uintptr(e2 & pteAddrMask))
			}
			freeFrame(pdPhys)
		}
		freeFrame(pdptPhys)
	}
	freeFrame(as.pml4Phys)
}

// SwitchAddressSpace loads CR3 with as's PML4 and records it as
// current so future single-address-space MapPage/UnmapPage calls know
// whether to flush the live TLB.
//go:nosplit
func SwitchAddressSpace(as *AddressSpace) {
	currentSpace = as
	asm.WriteCR3(as.pml4Phys)
}

//go:nosplit
func FlushTLB(virt uintptr)     { asm.Invlpg(virt) }
//go:nosplit
func FlushTLBAll()              { asm.FlushTLBAll() }
