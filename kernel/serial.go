package main

import "github.com/kestrelkernel/kestrel/internal/asm"

// 16550 UART at the standard COM1 port (spec §6 "serial line
// discipline for panic/debug output"). Grounds on the teacher's
// uart_qemu.go structure (init sequence, polled putc/getc, a
// klog.Sink adapter) replayed against 16550 port I/O instead of PL011
// MMIO; there is no transmit buffer, and it is kept polled rather than interrupt-driven since serial
// here only ever serves diagnostics, never a bulk data path.

const (
	comBase = 0x3F8

	regData        = comBase + 0
	regIntEnable   = comBase + 1
	regDivisorLow  = comBase + 0
	regDivisorHigh = comBase + 1
	regFIFOCtrl    = comBase + 2
	regLineCtrl    = comBase + 3
	regModemCtrl   = comBase + 4
	regLineStatus  = comBase + 5

	lineCtrlDLAB    = 1 << 7
	lineCtrl8N1     = 0x03
	fifoCtrlEnable  = 0xC7
	modemCtrlNormal = 0x0B

	lineStatusTxEmpty = 1 << 5
	lineStatusRxReady = 1 << 0

	baud115200Divisor = 1 // 115200 / (115200/1)
)

// SerialPort adapts the UART to klog.Sink so klog.AddSink(SerialPort{})
// gives every boot-time log line a serial destination from the first
// line printed.
type SerialPort struct{}

//go:nosplit
func (SerialPort) WriteByte(b byte) { serialPutByte(b) }

//go:nosplit
func serialInit() {
	asm.Outb(regIntEnable, 0x00)

	asm.Outb(regLineCtrl, lineCtrlDLAB)
	asm.Outb(regDivisorLow, baud115200Divisor)
	asm.Outb(regDivisorHigh, 0)
	asm.Outb(regLineCtrl, lineCtrl8N1)

	asm.Outb(regFIFOCtrl, fifoCtrlEnable)
	asm.Outb(regModemCtrl, modemCtrlNormal)
}

//go:nosplit
func serialPutByte(c byte) {
	if c == '\n' {
		serialPutByteRaw('\r')
	}
	serialPutByteRaw(c)
}

//go:nosplit
func serialPutByteRaw(c byte) {
	for asm.Inb(regLineStatus)&lineStatusTxEmpty == 0 {
	}
	asm.Outb(regData, c)
}

// serialReadByte blocks until a byte is available. No kernel path
// calls it.
//go:nosplit
func serialReadByte() byte {
	for asm.Inb(regLineStatus)&lineStatusRxReady == 0 {
	}
	return asm.Inb(regData)
}

// serialReadReady reports whether a byte is waiting, without blocking.
//go:nosplit
func serialReadReady() bool {
	return asm.Inb(regLineStatus)&lineStatusRxReady != 0
}
