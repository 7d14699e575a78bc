// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build amd64

// Package atomic provides a handful of atomic read-modify-write
// operations and the Uint32Lock spinlock; the console's lock is the
// one user in the kernel. Counters such as used_frames and per-task
// tick counts are plain variables. Most of the kernel relies on "only one hardware thread, disable interrupts around the
// critical section" per spec §5, so this package stays small.
package atomic

//go:noescape
func Xadd(ptr *uint32, delta int32) uint32

//go:noescape
func Xadd64(ptr *uint64, delta int64) uint64

//go:noescape
func Xchg(ptr *uint32, new uint32) uint32

//go:noescape
func Xchg64(ptr *uint64, new uint64) uint64

//go:noescape
func Cas(ptr *uint32, old, new uint32) bool

// Uint32Lock is a test-and-set spinlock built on Cas, sized for the
// console's "trylock from ISR paths, force-release from panic context"
// requirement (spec §6/§7) — a Go sync.Mutex blocks and has no
// force-release escape hatch, so a bare Cas loop is what the kernel
// needs here.
type Uint32Lock struct {
	state uint32
}

// TryLock attempts to acquire the lock without blocking, returning
// false immediately if it is already held.
//go:nosplit
func (l *Uint32Lock) TryLock() bool {
	return Cas(&l.state, 0, 1)
}

// Unlock releases the lock. Callers must only unlock a lock they hold.
//go:nosplit
func (l *Uint32Lock) Unlock() {
	Xchg(&l.state, 0)
}

// ForceUnlock clears the lock unconditionally, used only by the panic
// path where the holder (if any) can only be the caller itself on a
// single-hardware-thread kernel.
//go:nosplit
func (l *Uint32Lock) ForceUnlock() {
	Xchg(&l.state, 0)
}
