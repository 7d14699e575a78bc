package main

import (
	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Legacy 8259 PIC (spec §4.D). Remapped to vectors 32-47 so IRQs never
// collide with CPU exceptions, with every line masked by picInit;
// keyboardInit then unmasks IRQ1, and timerInit unmasks IRQ0 only when
// no local APIC is present. It stays initialized and reachable, since not every
// target this kernel boots on is guaranteed to have a working APIC
// (spec §4.D: "the PIC is remapped regardless of whether the APIC path
// is taken, so a spurious legacy IRQ during the switchover lands on a
// vector the router understands rather than silently re-triggering a
// CPU exception").

const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picEOI = 0x20

	icw1Init       = 0x10
	icw1ICW4Needed = 0x01
	icw4_8086      = 0x01

	picVectorBase  = 32
	picSlaveOffset = 8 // slave vectors follow the master's 8

	picCascadeIRQ = 2
)

var picMasterMask uint8 = 0xFF
var picSlaveMask uint8 = 0xFF

// picInit remaps both PICs to vectors [32, 48) and masks every line,
// per spec §4.D's exact ICW1-ICW4 sequence with an IoWait stall between
// writes (real hardware on an original XT-class bus needs the delay;
// kept here to match the teacher's IoWait discipline even though it is
// a no-op on emulated targets).
//go:nosplit
func picInit() {
	klog.Infof("pic: remapping to vector 32")

	asm.Outb(picMasterCommand, icw1Init|icw1ICW4Needed)
	asm.IoWait()
	asm.Outb(picSlaveCommand, icw1Init|icw1ICW4Needed)
	asm.IoWait()

	asm.Outb(picMasterData, picVectorBase)
	asm.IoWait()
	asm.Outb(picSlaveData, picVectorBase+picSlaveOffset)
	asm.IoWait()

	asm.Outb(picMasterData, 1<<picCascadeIRQ)
	asm.IoWait()
	asm.Outb(picSlaveData, picCascadeIRQ)
	asm.IoWait()

	asm.Outb(picMasterData, icw4_8086)
	asm.IoWait()
	asm.Outb(picSlaveData, icw4_8086)
	asm.IoWait()

	picMasterMask = 0xFF
	picSlaveMask = 0xFF
	asm.Outb(picMasterData, picMasterMask)
	asm.Outb(picSlaveData, picSlaveMask)
}

//go:nosplit
func picMaskIRQ(irq int) {
	if irq < 8 {
		picMasterMask |= 1 << uint(irq)
		asm.Outb(picMasterData, picMasterMask)
		return
	}
	picSlaveMask |= 1 << uint(irq-8)
	asm.Outb(picSlaveData, picSlaveMask)
}

//go:nosplit
func picUnmaskIRQ(irq int) {
	if irq < 8 {
		picMasterMask &^= 1 << uint(irq)
		asm.Outb(picMasterData, picMasterMask)
		return
	}
	picSlaveMask &^= 1 << uint(irq-8)
	asm.Outb(picSlaveData, picSlaveMask)
	picMasterMask &^= 1 << picCascadeIRQ
	asm.Outb(picMasterData, picMasterMask)
}

//go:nosplit
func picSendEOI(irq int) {
	if irq >= 8 {
		asm.Outb(picSlaveCommand, picEOI)
	}
	asm.Outb(picMasterCommand, picEOI)
}
