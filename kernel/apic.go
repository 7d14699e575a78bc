package main

import (
	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/cpu"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Local APIC (spec §4.D). When cpu.X86.HasAPIC is set, the kernel
// prefers the APIC timer and APIC EOI over the legacy PIC; the PIC is
// still remapped and left masked as a fallback, matching §4.D's
// "if no APIC is present, fall back to the 8259 entirely" requirement.

const (
	apicBaseMSR = 0x1B

	apicBaseMSREnable = 1 << 11

	regSpuriousVector = 0x0F0
	regEOI            = 0x0B0
	regTPR            = 0x080
	regESR            = 0x280
	regLVTTimer       = 0x320
	regLVTLINT0       = 0x350
	regLVTLINT1       = 0x360
	regLVTError       = 0x370
	regLVTPerfCount   = 0x340
	regLVTThermal     = 0x330
	regTimerInitCount = 0x380
	regTimerCurCount  = 0x390
	regTimerDivide    = 0x3E0

	lvtMasked = 1 << 16

	spuriousVectorNumber = 0xFF
	spuriousEnableBit    = 1 << 8
)

// localAPICBase is the physical MMIO base of the local APIC's
// register window, read from IA32_APIC_BASE. vmm.go's vmmInit maps it
// before apicInit ever dereferences it.
var localAPICBase uintptr

var apicPresent bool

//go:nosplit
func apicRead(reg uint32) uint32 {
	return readMemory32(physToVirt(localAPICBase) + uintptr(reg))
}

//go:nosplit
func apicWrite(reg uint32, val uint32) {
	writeMemory32(physToVirt(localAPICBase)+uintptr(reg), val)
}

// apicInit discovers the APIC base, enables it, masks every LVT entry,
// clears any latched errors, sets TPR to accept all vectors, and
// programs the spurious-interrupt vector — spec §4.D's exact sequence.
// Returns false (leaving the legacy PIC as the only controller) if the
// CPU has no APIC at all.
//go:nosplit
func apicInit() bool {
	if !cpu.X86.HasAPIC {
		klog.Infof("apic: not present, falling back to 8259")
		return false
	}

	base := asm.Rdmsr(apicBaseMSR)
	localAPICBase = uintptr(base &^ 0xFFF)
	asm.Wrmsr(apicBaseMSR, base|apicBaseMSREnable)

	apicWrite(regLVTTimer, lvtMasked)
	apicWrite(regLVTLINT0, lvtMasked)
	apicWrite(regLVTLINT1, lvtMasked)
	apicWrite(regLVTError, lvtMasked)
	apicWrite(regLVTPerfCount, lvtMasked)
	apicWrite(regLVTThermal, lvtMasked)

	apicWrite(regESR, 0)
	apicWrite(regESR, 0)

	apicWrite(regTPR, 0)

	apicWrite(regSpuriousVector, spuriousVectorNumber|spuriousEnableBit)

	apicPresent = true
	klog.Infof("apic: initialized", klog.Str("base"), klog.Hex(uint64(localAPICBase)))
	return true
}

//go:nosplit
func apicSendEOI() {
	apicWrite(regEOI, 0)
}

// acknowledgeIRQ is called by trapRouter for every vector in [32, 48)
// after any registered handler runs, implementing spec §4.D's
// "acknowledge exactly once, regardless of controller" invariant.
//go:nosplit
func acknowledgeIRQ(irq int) {
	if apicPresent {
		apicSendEOI()
		return
	}
	picSendEOI(irq)
}
