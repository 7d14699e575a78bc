package main

import (
	"github.com/kestrelkernel/kestrel/internal/asm"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// Timekeeping (spec §4.D's "periodic timer tick" / §9's scheduling
// primitive). Prefers the local APIC timer calibrated against one PIT
// rate-generator period, falling back to driving the scheduler straight off the PIT
// when no APIC is present — grounds on the teacher's timer_qemu.go
// idea of a single tickCount incremented by the hardware ISR and read
// by everything else, replayed with x86_64's PIT/APIC instead of the
// ARM generic timer.

const (
	pitFrequencyHz = 1193182
	pitChannel0    = 0x40
	pitCommand     = 0x43

	pitModeRateGen = 0x34 // channel 0, lobyte/hibyte, mode 2, binary

	timerHz        = 100 // 10ms tick, spec §4.D's suggested default
	timerVector    = 32  // IRQ0 / first legacy vector
	apicTimerDivide16 = 0x3
)

var tickCount uint64

// pitProgram sets the PIT to fire at hz, used both for the permanent
// PIT-driven tick path and, once, to calibrate the APIC timer.
//go:nosplit
func pitProgram(hz uint32) {
	divisor := uint16(pitFrequencyHz / hz)
	asm.Outb(pitCommand, pitModeRateGen)
	asm.Outb(pitChannel0, byte(divisor))
	asm.Outb(pitChannel0, byte(divisor>>8))
}

// timerInit wires the tick source: APIC timer calibrated against a
// known-good PIT rate if present, otherwise the PIT alone driving IRQ0.
//go:nosplit
func timerInit() {
	InstallVector(timerVector, onTimerTick)

	if apicPresent {
		apicTimerInit()
		picMaskIRQ(0)
		return
	}

	pitProgram(timerHz)
	picUnmaskIRQ(0)
	klog.Infof("timer: PIT driving tick", klog.Str("hz"), klog.Uint(timerHz))
}

// apicTimerInit calibrates the APIC timer's count-per-tick against the
// PIT, then programs it for periodic mode at timerHz, per spec §4.D.
//go:nosplit
func apicTimerInit() {
	apicWrite(regTimerDivide, apicTimerDivide16)
	apicWrite(regTimerInitCount, 0xFFFFFFFF)

	pitProgram(timerHz)
	waitOnePITTick()

	apicWrite(regLVTTimer, lvtMasked) // mask the timer interrupt before reading the count
	elapsed := uint32(0xFFFFFFFF) - apicRead(regTimerCurCount)

	const periodicMode = 1 << 17
	apicWrite(regLVTTimer, timerVector|periodicMode)
	apicWrite(regTimerInitCount, elapsed)

	klog.Infof("timer: APIC timer calibrated", klog.Str("count"), klog.Uint(uint64(elapsed)))
}

// waitOnePITTick busy-waits for one full PIT period at timerHz using
// the PIT's own readback, so calibration never depends on interrupts
// already being enabled.
//go:nosplit
func waitOnePITTick() {
	start := pitReadCount()
	for {
		cur := pitReadCount()
		if cur > start {
			return
		}
	}
}

//go:nosplit
func pitReadCount() uint16 {
	asm.Outb(pitCommand, 0x00) // latch channel 0
	lo := asm.Inb(pitChannel0)
	hi := asm.Inb(pitChannel0)
	return uint16(hi)<<8 | uint16(lo)
}

// onTimerTick is the vector-32 handler: bump the tick counter and let
// the scheduler decide whether to request a deferred switch (spec
// §9's resolved open question — never switch directly from inside the
// ISR).
//
//go:nosplit
func onTimerTick(tf *TrapFrame) {
	tickCount++
	schedTick()
}

// UptimeTicks returns the number of timer ticks since boot, per spec
// §4.D's "monotonic tick counter, readable without disabling
// interrupts."
//go:nosplit
func UptimeTicks() uint64 { return tickCount }

// UptimeMillis converts ticks to milliseconds at the configured tick
// rate.
//go:nosplit
func UptimeMillis() uint64 { return tickCount * 1000 / timerHz }
