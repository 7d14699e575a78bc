package main

import "unsafe"

// Boot info parsing (spec §6, component A). boot.s hands kernelEntry a
// single pointer to a loader-populated structure; two shapes are
// recognized. The bounds-checked, max-iteration-guarded walk below is
// the same shape the teacher's page.go uses to walk an ATAG list
// (validate tag size before trusting it, cap iterations against
// corrupt input, stop at the terminating tag) generalized to
// multiboot2's 8-byte-aligned tag stream.

const maxBootTags = 64

// Memory region types from the multiboot2 memory-map tag.
const (
	MemAvailable        = 1
	MemReserved         = 2
	MemACPIReclaimable  = 3
	MemNVS              = 4
	MemBadRAM           = 5
)

// MemoryRegion is one entry of the parsed memory map.
type MemoryRegion struct {
	Addr   uint64
	Length uint64
	Type   uint32
}

// FramebufferInfo describes the optional linear framebuffer (spec §6).
type FramebufferInfo struct {
	Present bool
	Addr    uint64
	Pitch   uint32
	Width   uint32
	Height  uint32
	BPP     uint8
}

// BootInfo is the parsed, loader-independent result boot.go produces
// for every other subsystem (pmm.go, vmm.go, console.go) to consume.
type BootInfo struct {
	MemoryMap   []MemoryRegion
	Framebuffer FramebufferInfo
	CommandLine string
	RSDP        uintptr // physical address; 0 if not supplied (§6 supplemented feature 3)
}

const maxMemoryRegions = 64

var memoryRegionStorage [maxMemoryRegions]MemoryRegion

// multiboot2 tag types.
const (
	tagEnd          = 0
	tagCmdline      = 1
	tagBasicMeminfo = 4
	tagMemoryMap    = 6
	tagFramebuffer  = 8
	tagACPIOld      = 14
	tagACPINew      = 15
)

type mb2TagHeader struct {
	typ  uint32
	size uint32
}

type mb2MemMapEntry struct {
	addr     uint64
	length   uint64
	typ      uint32
	reserved uint32
}

// ParseBootInfo recognizes the multiboot2 tagged-list variant. A
// request-response variant loader instead populates response pointers
// referenced from a dedicated ELF section before entry; parseRequestResponse
// handles that shape when ParseBootInfo finds no valid tagged list (the
// two are mutually exclusive per loader, never mixed).
//go:nosplit
func ParseBootInfo(ptr uintptr) BootInfo {
	if ptr == 0 {
		return BootInfo{}
	}

	totalSize := readMemory32(ptr)
	if totalSize < 8 || totalSize > 1<<24 {
		return parseRequestResponse()
	}

	var info BootInfo
	nRegions := 0

	cur := ptr + 8 // skip {total_size, reserved}
	end := ptr + uintptr(totalSize)

	for i := 0; i < maxBootTags; i++ {
		if cur+8 > end {
			break
		}
		hdr := castToPointer[mb2TagHeader](cur)
		if hdr.typ == tagEnd {
			break
		}
		if hdr.size < 8 {
			break // corrupt: refuse to trust the stream further
		}

		payload := cur + 8
		switch hdr.typ {
		case tagCmdline:
			info.CommandLine = cStringAt(payload, cur+uintptr(hdr.size))
		case tagMemoryMap:
			entrySize := readMemory32(payload)
			entryVersion := readMemory32(payload + 4)
			_ = entryVersion
			if entrySize == 0 {
				break
			}
			entriesStart := payload + 8
			for e := entriesStart; e+uintptr(entrySize) <= cur+uintptr(hdr.size) && nRegions < maxMemoryRegions; e += uintptr(entrySize) {
				ent := castToPointer[mb2MemMapEntry](e)
				memoryRegionStorage[nRegions] = MemoryRegion{Addr: ent.addr, Length: ent.length, Type: ent.typ}
				nRegions++
			}
		case tagFramebuffer:
			info.Framebuffer = FramebufferInfo{
				Present: true,
				Addr:    readMemory64(payload),
				Pitch:   readMemory32(payload + 8),
				Width:   readMemory32(payload + 12),
				Height:  readMemory32(payload + 16),
				BPP:     *(*uint8)(unsafe.Pointer(payload + 20)),
			}
		case tagACPIOld, tagACPINew:
			if info.RSDP == 0 {
				info.RSDP = payload
			}
		}

		// Tags are 8-byte aligned; advance past this tag's padded size.
		cur += alignUp(uintptr(hdr.size), 8)
	}

	info.MemoryMap = memoryRegionStorage[:nRegions]
	return info
}

// maxCommandLineLen bounds the copied command line the same way every
// other boot-info field is bounded against a corrupt/oversized tag.
const maxCommandLineLen = 256

// cmdlineStorage is kernel-owned backing memory for the command-line
// string: this kernel never runs runtime.schedinit/mallocinit (see
// DESIGN.md's g-register entry), so `make([]byte, n)` followed by a
// `string(b)` conversion — both of which call into the Go heap
// allocator — cannot execute here. unsafe.String builds a string header
// directly over this static array instead, with no allocation at all.
var cmdlineStorage [maxCommandLineLen]byte

// cStringAt reads a NUL-terminated string from [start,limit), refusing
// to read past limit even if no NUL is found — the same "never trust
// the stream past its declared bound" discipline as the memory-map walk.
//go:nosplit
func cStringAt(start, limit uintptr) string {
	n := 0
	for start+uintptr(n) < limit && n < maxCommandLineLen {
		b := *(*byte)(unsafe.Pointer(start + uintptr(n)))
		if b == 0 {
			break
		}
		cmdlineStorage[n] = b
		n++
	}
	if n == 0 {
		return ""
	}
	return unsafe.String(&cmdlineStorage[0], n)
}

// bootRequests is the dedicated section the request-response variant
// expects the kernel image to declare; the loader fills in the
// pointers before transferring control. The core only reads the two
// mandatory items (memory map, framebuffer) per spec §6;
// hhdmOffsetResponse is declared but never read.
var bootRequests struct {
	memoryMapResponse   uintptr
	framebufferResponse uintptr
	hhdmOffsetResponse  uintptr
}

//go:nosplit
func parseRequestResponse() BootInfo {
	var info BootInfo
	if bootRequests.memoryMapResponse != 0 {
		count := readMemory64(bootRequests.memoryMapResponse)
		base := bootRequests.memoryMapResponse + 8
		n := int(count)
		if n > maxMemoryRegions {
			n = maxMemoryRegions
		}
		for i := 0; i < n; i++ {
			ent := castToPointer[mb2MemMapEntry](base + uintptr(i)*24)
			memoryRegionStorage[i] = MemoryRegion{Addr: ent.addr, Length: ent.length, Type: ent.typ}
		}
		info.MemoryMap = memoryRegionStorage[:n]
	}
	if bootRequests.framebufferResponse != 0 {
		p := bootRequests.framebufferResponse
		info.Framebuffer = FramebufferInfo{
			Present: true,
			Addr:    readMemory64(p),
			Pitch:   readMemory32(p + 8),
			Width:   readMemory32(p + 12),
			Height:  readMemory32(p + 16),
			BPP:     *(*uint8)(unsafe.Pointer(p + 20)),
		}
	}
	return info
}
