package main

import "github.com/kestrelkernel/kestrel/internal/atomic"

// Console output (spec §4's ambient console component, §6 "console
// output"/"guarded by a test-and-set spinlock"). Two backends behind
// one Sink: the legacy 0xB8000 text-mode buffer when no framebuffer
// was handed to us by boot info, or pixel glyph rendering through
// glyphTable otherwise — grounds on the teacher's framebuffer_text.go
// cursor/scroll bookkeeping, replayed over whichever backend is live.

const (
	vgaTextBase  = 0xB8000
	vgaCols      = 80
	vgaRows      = 25
	vgaDefaultAttr = 0x0A // bright green on black, matches splash's palette
)

// Color is one of the legacy 16-color palette entries (spec §6 "Color
// attributes follow the legacy 16-color palette mapping to RGB for
// framebuffer rendering").
type Color uint8

const (
	ColorBlack Color = iota
	ColorBlue
	ColorGreen
	ColorCyan
	ColorRed
	ColorMagenta
	ColorBrown
	ColorLightGray
	ColorDarkGray
	ColorLightBlue
	ColorLightGreen
	ColorLightCyan
	ColorLightRed
	ColorLightMagenta
	ColorYellow
	ColorWhite
)

var palette16RGB = [16]uint32{
	0x000000, 0x0000AA, 0x00AA00, 0x00AAAA,
	0xAA0000, 0xAA00AA, 0xAA5500, 0xAAAAAA,
	0x555555, 0x5555FF, 0x55FF55, 0x55FFFF,
	0xFF5555, 0xFF55FF, 0xFFFF55, 0xFFFFFF,
}

type console struct {
	lock atomic.Uint32Lock

	usingFramebuffer bool
	fb               FramebufferInfo

	col, row     int
	fgColor      Color
	bgColor      Color
}

var con console

//go:nosplit
func consoleInit(info BootInfo) {
	con.fgColor = ColorLightGreen
	con.bgColor = ColorBlack
	if info.Framebuffer.Present {
		con.usingFramebuffer = true
		con.fb = info.Framebuffer
	}
	consoleClear()
}

// ConsoleTrylock implements spec §6's "test-and-set spinlock... a
// trylock from ISR paths". Returns false immediately if already held.
//go:nosplit
func ConsoleTrylock() bool { return con.lock.TryLock() }
//go:nosplit
func ConsoleUnlock()       { con.lock.Unlock() }

// consoleForcePanicLock implements spec §7's "acquire the console
// (trylock, force-release if held by the current hardware thread)":
// on a single-hardware-thread kernel a held lock at panic time can
// only be this same thread's, so force-clearing it is always correct.
//go:nosplit
func consoleForcePanicLock() {
	con.lock.ForceUnlock()
	con.lock.TryLock()
}

//go:nosplit
func consoleClear() {
	if con.usingFramebuffer {
		fbClearAll()
	} else {
		for i := 0; i < vgaCols*vgaRows; i++ {
			vgaCell(i, ' ', vgaDefaultAttr)
		}
	}
	con.col, con.row = 0, 0
}

// ConsolePutByte writes one character through whichever backend is
// active, used by both klog's Sink interface and sysWriteImpl.
//go:nosplit
func ConsolePutByte(c byte) {
	locked := ConsoleTrylock()
	defer func() {
		if locked {
			ConsoleUnlock()
		}
	}()

	switch c {
	case '\n':
		con.col = 0
		con.row++
	case '\r':
		con.col = 0
	default:
		if con.usingFramebuffer {
			fbDrawGlyph(con.col, con.row, c, con.fgColor, con.bgColor)
		} else {
			vgaCell(con.row*vgaCols+con.col, c, vgaAttr(con.fgColor, con.bgColor))
		}
		con.col++
	}

	if con.col >= consoleCols() {
		con.col = 0
		con.row++
	}
	if con.row >= consoleRows() {
		consoleScroll()
		con.row = consoleRows() - 1
	}
}

//go:nosplit
func (console) WriteByte(b byte) { ConsolePutByte(b) }

//go:nosplit
func consoleCols() int {
	if con.usingFramebuffer {
		return int(con.fb.Width) / glyphWidth
	}
	return vgaCols
}

//go:nosplit
func consoleRows() int {
	if con.usingFramebuffer {
		return int(con.fb.Height) / glyphHeight
	}
	return vgaRows
}

//go:nosplit
func vgaAttr(fg, bg Color) uint16 { return uint16(fg) | uint16(bg)<<4 }

//go:nosplit
func vgaCell(index int, ch byte, attr uint16) {
	cell := uint16(ch) | attr<<8
	*castToPointer[uint16](vgaTextBase + uintptr(index)*2) = cell
}

//go:nosplit
func fbClearAll() {
	if !con.usingFramebuffer {
		return
	}
	bg := palette16RGB[con.bgColor]
	base := physToVirt(uintptr(con.fb.Addr))
	for y := uint32(0); y < con.fb.Height; y++ {
		rowBase := base + uintptr(y)*uintptr(con.fb.Pitch)
		for x := uint32(0); x < con.fb.Width; x++ {
			*castToPointer[uint32](rowBase + uintptr(x)*4) = bg
		}
	}
}

//go:nosplit
func fbDrawGlyph(col, row int, ch byte, fg, bg Color) {
	if int(ch) >= len(glyphTable) {
		return
	}
	glyph := glyphTable[ch]
	fgRGB := palette16RGB[fg]
	bgRGB := palette16RGB[bg]
	base := physToVirt(uintptr(con.fb.Addr))
	originX := uint32(col * glyphWidth)
	originY := uint32(row * glyphHeight)

	for gy := 0; gy < glyphHeight; gy++ {
		rowByte := glyph[gy]
		py := originY + uint32(gy)
		if py >= con.fb.Height {
			break
		}
		rowBase := base + uintptr(py)*uintptr(con.fb.Pitch)
		for gx := 0; gx < glyphWidth; gx++ {
			px := originX + uint32(gx)
			if px >= con.fb.Width {
				break
			}
			bitSet := rowByte&(1<<uint(7-gx)) != 0
			color := bgRGB
			if bitSet {
				color = fgRGB
			}
			*castToPointer[uint32](rowBase + uintptr(px)*4) = color
		}
	}
}

// consoleScroll shifts every row up by one character row, filling the
// freed bottom row with background, matching the teacher's
// ScrollScreenUp shape for both backends.
//go:nosplit
func consoleScroll() {
	if con.usingFramebuffer {
		fbScrollOneGlyphRow()
		return
	}
	for i := 0; i < (vgaRows-1)*vgaCols; i++ {
		cell := *castToPointer[uint16](vgaTextBase + uintptr(i+vgaCols)*2)
		*castToPointer[uint16](vgaTextBase + uintptr(i)*2) = cell
	}
	for i := (vgaRows - 1) * vgaCols; i < vgaRows*vgaCols; i++ {
		vgaCell(i, ' ', vgaDefaultAttr)
	}
}

//go:nosplit
func fbScrollOneGlyphRow() {
	base := physToVirt(uintptr(con.fb.Addr))
	rowBytes := uintptr(glyphHeight) * uintptr(con.fb.Pitch)
	totalRows := uint32(consoleRows())
	for r := uint32(0); r < totalRows-1; r++ {
		dst := base + uintptr(r)*rowBytes
		src := base + uintptr(r+1)*rowBytes
		for off := uintptr(0); off < rowBytes; off += 8 {
			*castToPointer[uint64](dst + off) = *castToPointer[uint64](src + off)
		}
	}
	lastRow := base + uintptr(totalRows-1)*rowBytes
	bg := uint64(palette16RGB[con.bgColor])<<32 | uint64(palette16RGB[con.bgColor])
	for off := uintptr(0); off < rowBytes; off += 8 {
		*castToPointer[uint64](lastRow + off) = bg
	}
}
