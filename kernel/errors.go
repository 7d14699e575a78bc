package main

import "errors"

// Error taxonomy (spec §7). Allocation failures and validation failures
// are ordinary Go errors returned to the caller; nothing in the
// example pack parses a kernel-specific error-kind table, so this is
// plain stdlib errors.New rather than a borrowed library — see
// DESIGN.md's stdlib justification.
var (
	ErrOutOfMemory       = errors.New("out of memory")
	ErrInvalidPointer    = errors.New("invalid pointer")
	ErrInvalidFree       = errors.New("invalid or double free")
	ErrDestMissing       = errors.New("destination task missing")
	ErrMailboxFull       = errors.New("mailbox full")
	ErrHugePageConflict  = errors.New("cannot map 4KiB page beneath an existing huge mapping")
	ErrHeapExhausted     = errors.New("heap exhausted")
)

// Syscall return-code magnitudes (spec §7's "negative error codes...
// magnitudes are stable").
const (
	ErrnoGeneric     = 1
	ErrnoDestMissing = 2
	ErrnoMailboxFull = 3
	ErrnoInvalidPtr  = 4
)

//go:nosplit
func errnoFor(err error) int64 {
	switch err {
	case nil:
		return 0
	case ErrDestMissing:
		return -ErrnoDestMissing
	case ErrMailboxFull:
		return -ErrnoMailboxFull
	case ErrInvalidPointer:
		return -ErrnoInvalidPtr
	default:
		return -ErrnoGeneric
	}
}
