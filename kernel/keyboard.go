package main

import "github.com/kestrelkernel/kestrel/internal/asm"

// PS/2 keyboard on IRQ1 (spec §4's ambient "PS/2 keyboard produces
// bytes for an input syscall"). Grounds on the teacher's uart ring
// buffer shape (head/tail/count, drop-oldest on overflow) replayed
// over scancode-set-1 keycodes instead of UART bytes.

const (
	kbdDataPort   = 0x60
	kbdStatusPort = 0x64
	kbdIRQ        = 1
	kbdVector     = 32 + kbdIRQ

	kbdOutputFull = 1 << 0

	keyBufferSize = 256
)

var keyBuffer [keyBufferSize]byte
var keyHead, keyTail, keyCount int

// scancodeSet1 maps a subset of set-1 make codes to ASCII for
// unshifted lowercase input; anything unmapped (zero) contributes
// nothing (spec doesn't require a full layout, only "produces bytes").
// A plain array, not a map, since nothing in this kernel below the
// task/IPC layer allocates — see DESIGN.md's no-heap-before-heap-exists
// discipline.
var scancodeSet1 [128]byte

// buildScancodeTable populates scancodeSet1. Called from keyboardInit,
// not a package-level func init() — see font.go's fontInit comment.
//go:nosplit
func buildScancodeTable() {
	set := func(code byte, ch byte) { scancodeSet1[code] = ch }
	letters := "qwertyuiopasdfghjklzxcvbnm"
	codes := []byte{
		0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
		0x1E, 0x1F, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26,
		0x2C, 0x2D, 0x2E, 0x2F, 0x30, 0x31, 0x32,
	}
	for i, c := range codes {
		set(c, letters[i])
	}
	digits := "1234567890"
	for i := 0; i < len(digits); i++ {
		set(byte(0x02+i), digits[i])
	}
	set(0x39, ' ')
	set(0x1C, '\n')
	set(0x0E, '\b')
}

const scancodeReleaseBit = 0x80

//go:nosplit
func keyboardInit() {
	buildScancodeTable()
	InstallVector(kbdVector, onKeyboardIRQ)
	picUnmaskIRQ(kbdIRQ)
}

//go:nosplit
func onKeyboardIRQ(tf *TrapFrame) {
	status := asm.Inb(kbdStatusPort)
	if status&kbdOutputFull == 0 {
		return
	}
	code := asm.Inb(kbdDataPort)
	if code&scancodeReleaseBit != 0 {
		return // key-release, ignored
	}
	if code < byte(len(scancodeSet1)) {
		if ch := scancodeSet1[code]; ch != 0 {
			keyEnqueue(ch)
		}
	}
}

//go:nosplit
func keyEnqueue(c byte) {
	if keyCount == keyBufferSize {
		keyHead = (keyHead + 1) % keyBufferSize // drop oldest
		keyCount--
	}
	keyBuffer[keyTail] = c
	keyTail = (keyTail + 1) % keyBufferSize
	keyCount++
}

// KeyboardReadByte returns the oldest buffered keystroke and true, or
// (0, false) if nothing is waiting.
//go:nosplit
func KeyboardReadByte() (byte, bool) {
	if keyCount == 0 {
		return 0, false
	}
	c := keyBuffer[keyHead]
	keyHead = (keyHead + 1) % keyBufferSize
	keyCount--
	return c, true
}
