// Package klog is the kernel's freestanding logger. There is no fmt
// package available before the heap and scheduler exist (fmt's
// reflection-driven formatting allocates), so klog implements the tiny
// formatter the teacher's drivers hand-roll per-file (uartPutHex64,
// uartPuts, ...) once, in one place, so individual drivers stop
// re-declaring it.
package klog

import "unsafe"

// Sink is anything that can accept a single byte; serial.WriteByte and
// console.WriteByte both satisfy it. klog writes to whichever sinks
// have been registered via AddSink — typically just serial until the
// console is mapped, then both.
type Sink interface {
	WriteByte(b byte)
}

var sinks [2]Sink
var nsinks int

// AddSink registers a destination for subsequent log output. Safe to
// call twice (e.g. serial first, console once mapped); at most two
// sinks are kept, matching the two real destinations the kernel has.
//go:nosplit
func AddSink(s Sink) {
	if nsinks < len(sinks) {
		sinks[nsinks] = s
		nsinks++
	}
}

//go:nosplit
func puts(s string) {
	for i := 0; i < len(s); i++ {
		writeAll(s[i])
	}
}

//go:nosplit
func writeAll(b byte) {
	for i := 0; i < nsinks; i++ {
		sinks[i].WriteByte(b)
	}
}

var hexDigits = "0123456789abcdef"

//go:nosplit
func putHex64(v uint64) {
	puts("0x")
	started := false
	for shift := 60; shift >= 0; shift -= 4 {
		nib := (v >> uint(shift)) & 0xF
		if nib != 0 || started || shift == 0 {
			writeAll(hexDigits[nib])
			started = true
		}
	}
}

//go:nosplit
func putUint(v uint64) {
	if v == 0 {
		writeAll('0')
		return
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	puts(string(buf[i:]))
}

//go:nosplit
func putInt(v int64) {
	if v < 0 {
		writeAll('-')
		v = -v
	}
	putUint(uint64(v))
}

// Arg is a pre-formatted logging argument. Callers pass Hex/Uint/Int/Str
// values instead of using fmt-style verbs, keeping the hot path
// allocation-free and go:nosplit-safe.
type Arg struct {
	kind byte // 'x' hex, 'u' uint, 'i' int, 's' string, 'p' pointer
	u    uint64
	i    int64
	s    string
}

//go:nosplit
func Hex(v uint64) Arg    { return Arg{kind: 'x', u: v} }
//go:nosplit
func Uint(v uint64) Arg   { return Arg{kind: 'u', u: v} }
//go:nosplit
func Int(v int64) Arg     { return Arg{kind: 'i', i: v} }
//go:nosplit
func Str(v string) Arg    { return Arg{kind: 's', s: v} }
//go:nosplit
func Ptr(v unsafe.Pointer) Arg { return Arg{kind: 'x', u: uint64(uintptr(v))} }

//go:nosplit
func emit(level, msg string, args ...Arg) {
	puts(level)
	puts(msg)
	for _, a := range args {
		writeAll(' ')
		switch a.kind {
		case 'x':
			putHex64(a.u)
		case 'u':
			putUint(a.u)
		case 'i':
			putInt(a.i)
		case 's':
			puts(a.s)
		}
	}
	puts("\r\n")
}

//go:nosplit
func Debugf(msg string, args ...Arg) { emit("[dbg] ", msg, args...) }

//go:nosplit
func Infof(msg string, args ...Arg) { emit("[inf] ", msg, args...) }

//go:nosplit
func Warnf(msg string, args ...Arg) { emit("[wrn] ", msg, args...) }

// Panicf logs and then lets the caller (panic.go) take over halting;
// klog itself never halts so it stays usable from any context.
//go:nosplit
func Panicf(msg string, args ...Arg) { emit("[PANIC] ", msg, args...) }
