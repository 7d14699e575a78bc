package main

import (
	"github.com/kestrelkernel/kestrel/internal/cpu"
	"github.com/kestrelkernel/kestrel/internal/klog"
)

// kernelEntry is the sole entry point boot.s jumps to once long mode,
// paging, and the boot GDT are live (spec §2's fixed init order). There
// is no runtime.rt0_go and no package-level func init() here — this
// kernel never bootstraps the Go runtime's own startup path, so every
// subsystem below is brought up by an explicit call in a fixed order
// instead of relying on init() (see DESIGN.md's "Package init never
// runs" entry for the pieces, sched.go's among them, this affects).
//
//go:nosplit
func kernelEntry(bootInfoPtr uintptr) {
	serialInit()
	klog.AddSink(SerialPort{})
	klog.Infof("kestrel: booting")

	cpu.Detect()
	gdtInit()
	idtInit()
	InstallVector(vectorPageFault, handlePageFault)
	picInit()
	apicInit()

	info := ParseBootInfo(bootInfoPtr)
	parseCommandLine(info.CommandLine)

	pmmInit(info)
	vmmInit(info)
	heapInit()

	fontInit()
	consoleInit(info)
	klog.AddSink(con)

	keyboardInit()
	timerInit()
	syscallInit()

	SchedInit()

	if config.ShowSplash {
		splashShow(info)
	}

	klog.Infof("kestrel: init complete",
		klog.Str("free"), klog.Uint(freeBytes()),
		klog.Str("heap"), klog.Uint(heapStats().Free))

	Enable()
	idleTaskLoop()
}

// Config holds the ambient command-line-derived options (SPEC_FULL.md's
// "Configuration" section). kernelEntry reads ShowSplash; LogLevel is
// parsed and stored, but nothing filters log output by it. There is no
// flag package available this
// early — no heap, no os.Args — so parseCommandLine hand-rolls the tiny
// space-separated `key=value` grammar the multiboot2 cmdline tag
// actually carries, the same "no reflection-driven parsing below the
// heap" discipline klog follows for its own formatting.
type Config struct {
	LogLevel   string
	ShowSplash bool
}

var config = Config{LogLevel: "info", ShowSplash: true}

//go:nosplit
func parseCommandLine(cmdline string) {
	start := 0
	for i := 0; i <= len(cmdline); i++ {
		if i < len(cmdline) && cmdline[i] != ' ' {
			continue
		}
		tok := cmdline[start:i]
		start = i + 1
		if tok == "" {
			continue
		}
		applyConfigToken(tok)
	}
}

//go:nosplit
func applyConfigToken(tok string) {
	eq := -1
	for i := 0; i < len(tok); i++ {
		if tok[i] == '=' {
			eq = i
			break
		}
	}
	if eq < 0 {
		return
	}
	key, val := tok[:eq], tok[eq+1:]
	switch key {
	case "log":
		config.LogLevel = val
	case "splash":
		config.ShowSplash = val != "off" && val != "0"
	}
}
