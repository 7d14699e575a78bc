package main

import "unsafe"

// Boot splash (SPEC_FULL.md's supplemental "boot splash" feature). Draws
// straight into the linear framebuffer with a hand-rolled midpoint
// circle algorithm instead of through gg/image: this kernel never runs
// runtime.schedinit/mallocinit (see DESIGN.md's g-register entry), so
// nothing that calls into Go's heap allocator — including gg.NewContext,
// which allocates an *image.RGBA backing slice via make() — can execute
// here. gg, golang/freetype, and golang/x/image were dropped from go.mod
// for the same reason; see DESIGN.md's "Dropped teacher dependencies".

//go:nosplit
func splashShow(info BootInfo) {
	fb := info.Framebuffer
	if !fb.Present || fb.Width == 0 || fb.Height == 0 || fb.Pitch == 0 {
		return
	}

	const (
		bgR, bgG, bgB       = 12, 12, 20
		ringR, ringG, ringB = 51, 204, 102
		dimR, dimG, dimB    = 38, 115, 64
	)

	fbFill(fb, bgR, bgG, bgB)

	cx := int(fb.Width) / 2
	cy := int(fb.Height) / 2
	radius := int(fb.Height) / 6

	fbDrawCircle(fb, cx, cy, radius, ringR, ringG, ringB)

	// Three more concentric rings outside the first, 10 pixels apart —
	// a nod to the scheduler's round-robin ring rather than a literal
	// logo; cheap to draw, gives the splash some visual depth.
	for i := 1; i <= 3; i++ {
		fbDrawCircle(fb, cx, cy, radius+i*10, dimR, dimG, dimB)
	}
}

//go:nosplit
func fbPixelAddr(fb FramebufferInfo, x, y int) uintptr {
	base := physToVirt(uintptr(fb.Addr))
	return base + uintptr(y)*uintptr(fb.Pitch) + uintptr(x)*4
}

//go:nosplit
func fbSetPixel(fb FramebufferInfo, x, y int, r, g, b byte) {
	if x < 0 || y < 0 || x >= int(fb.Width) || y >= int(fb.Height) {
		return
	}
	pixel := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	*(*uint32)(unsafe.Pointer(fbPixelAddr(fb, x, y))) = pixel
}

//go:nosplit
func fbFill(fb FramebufferInfo, r, g, b byte) {
	for y := 0; y < int(fb.Height); y++ {
		for x := 0; x < int(fb.Width); x++ {
			fbSetPixel(fb, x, y, r, g, b)
		}
	}
}

// fbDrawCircle plots an unfilled circle via the midpoint circle
// algorithm (Bresenham's circle variant), mirroring the eight-way
// symmetry per octant rather than walking a full 0..2π sweep.
//go:nosplit
func fbDrawCircle(fb FramebufferInfo, cx, cy, radius int, r, g, b byte) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		fbSetPixel(fb, cx+x, cy+y, r, g, b)
		fbSetPixel(fb, cx+y, cy+x, r, g, b)
		fbSetPixel(fb, cx-y, cy+x, r, g, b)
		fbSetPixel(fb, cx-x, cy+y, r, g, b)
		fbSetPixel(fb, cx-x, cy-y, r, g, b)
		fbSetPixel(fb, cx-y, cy-x, r, g, b)
		fbSetPixel(fb, cx+y, cy-x, r, g, b)
		fbSetPixel(fb, cx+x, cy-y, r, g, b)

		y++
		if err <= 0 {
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}
