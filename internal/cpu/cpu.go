// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements processor feature detection for the kernel.
// Unlike the hosted standard-library package it is adapted from, there
// is no OS to ask, so every flag is filled in from CPUID directly.
package cpu

import "github.com/kestrelkernel/kestrel/internal/asm"

// X86 holds the subset of x86_64 feature flags the kernel cares about:
// whether a local APIC exists (so the interrupt controller can prefer
// it over the legacy 8259 pair), whether the NX bit is supported (VMM
// page-table entries), and whether the TSC is invariant (candidate
// timekeeping source, unused by the core but recorded for §6 parity
// with the PIT/APIC-timer contract).
var X86 struct {
	_             CacheLinePad
	HasAPIC       bool
	HasMSR        bool
	HasNX         bool
	HasInvariantTSC bool
	_             CacheLinePad
}

// CacheLinePad avoids false sharing between X86 and neighboring globals.
type CacheLinePad struct{ _ [64]byte }

// Detect runs CPUID and fills in X86. Safe to call more than once.
// Called explicitly from kernelEntry's fixed init order rather than a
// package-level func init(): this kernel never runs the Go runtime's
// own startup path, so ordinary init() funcs never execute.
//go:nosplit
func Detect() {
	_, _, _, edx := asm.CPUID(1, 0)
	X86.HasAPIC = edx&(1<<9) != 0
	X86.HasMSR = edx&(1<<5) != 0

	// Extended function 0x80000001 carries the NX/execute-disable bit
	// (EDX bit 20) on CPUs that support the long-mode extensions.
	maxExt, _, _, _ := asm.CPUID(0x80000000, 0)
	if maxExt >= 0x80000001 {
		_, _, _, edxExt := asm.CPUID(0x80000001, 0)
		X86.HasNX = edxExt&(1<<20) != 0
	}
	if maxExt >= 0x80000007 {
		_, _, _, edxPower := asm.CPUID(0x80000007, 0)
		X86.HasInvariantTSC = edxPower&(1<<8) != 0
	}
}
