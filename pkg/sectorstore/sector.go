package sectorstore

import (
	"encoding/binary"
	"unsafe"
)

// Sector primitives. No lock is held here — callers enforce safety by
// holding the store's structural lock (or a pin) before touching a sector.

func sectorID(s []byte) EntityID {
	return EntityID(binary.LittleEndian.Uint32(s[offID:]))
}

func setSectorID(s []byte, id EntityID) {
	binary.LittleEndian.PutUint32(s[offID:], uint32(id))
}

func sectorAliveMask(s []byte) uint32 {
	return binary.LittleEndian.Uint32(s[offAliveMask:])
}

func setSectorAliveMask(s []byte, mask uint32) {
	binary.LittleEndian.PutUint32(s[offAliveMask:], mask)
}

// constructHeader zeroes the alive-mask and sets the id.
func constructHeader(s []byte, id EntityID) {
	setSectorAliveMask(s, 0)
	setSectorID(s, id)
}

// isSectorAlive reports whether any component field is constructed.
func isSectorAlive(s []byte) bool {
	return sectorAliveMask(s) != 0
}

// fieldPtr returns a raw pointer to the field described by e within sector s.
func fieldPtr(s []byte, e *layoutEntry) unsafe.Pointer {
	return unsafe.Pointer(&s[e.offset])
}

// isAlive bit-tests a single field's alive bit.
func isAlive(s []byte, mask uint32) bool {
	return sectorAliveMask(s)&mask != 0
}

// setAlive sets or clears a single field's alive bit.
func setAlive(s []byte, mask uint32, on bool) {
	cur := sectorAliveMask(s)
	if on {
		setSectorAliveMask(s, cur|mask)
	} else {
		setSectorAliveMask(s, cur&^mask)
	}
}

// destroyMember drops the field if alive and clears its bit; a no-op
// otherwise.
func destroyMember(s []byte, e *layoutEntry) {
	if !isAlive(s, e.aliveMask) {
		return
	}

	e.drop(fieldPtr(s, e))
	setAlive(s, e.aliveMask, false)
}

// destroySector destroys every alive member, leaving storage reusable but
// logically empty. The header id is left untouched; callers clear it via
// constructHeader or sparse-index bookkeeping as appropriate.
func destroySector(s []byte, l *layout) {
	for i := range l.entries {
		destroyMember(s, &l.entries[i])
	}
}

// moveSector relocates every alive field from src into dst: move-construct
// at dst, drop at src, transfer the alive bit, clear it at src. Copies the
// id. dst and src must not overlap at the sector level (use bulkRelocate
// for the trivial fast path instead).
func moveSector(dst, src []byte, l *layout) {
	setSectorID(dst, sectorID(src))
	setSectorAliveMask(dst, 0)

	srcMask := sectorAliveMask(src)

	for i := range l.entries {
		e := &l.entries[i]
		if srcMask&e.aliveMask == 0 {
			continue
		}

		e.move(fieldPtr(dst, e), fieldPtr(src, e))
		e.drop(fieldPtr(src, e))
		setAlive(dst, e.aliveMask, true)
	}

	setSectorAliveMask(src, 0)
}

// copySector copy-constructs every alive field from src into dst. Fails if
// any alive field's component is move-only.
func copySector(dst, src []byte, l *layout) error {
	setSectorID(dst, sectorID(src))
	setSectorAliveMask(dst, 0)

	srcMask := sectorAliveMask(src)

	for i := range l.entries {
		e := &l.entries[i]
		if srcMask&e.aliveMask == 0 {
			continue
		}

		if e.copyFn == nil {
			return ErrCopyUnsupported
		}

		e.copyFn(fieldPtr(dst, e), fieldPtr(src, e))
		setAlive(dst, e.aliveMask, true)
	}

	return nil
}

// bulkRelocate byte-copies count contiguous sectors from src to dst. Valid
// only when layout.allTrivial holds; Go's builtin copy is defined to behave
// correctly (like memmove) even when dst and src overlap, so one call
// covers both left- and right-shift directions.
func bulkRelocate(dst, src []byte) {
	copy(dst, src)
}
