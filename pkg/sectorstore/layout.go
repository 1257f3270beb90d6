package sectorstore

import "unsafe"

// headerSize is the fixed sector prefix: a uint32 id followed by a uint32
// alive-mask.
const headerSize = 8

const (
	offID        = 0
	offAliveMask = 4
)

// MoveFunc move-constructs the value at dst from the value at src. After a
// successful move, the source's bytes are dropped via [DropFunc]; the pair
// is equivalent to a bitwise copy for the purposes of this engine.
type MoveFunc func(dst, src unsafe.Pointer)

// CopyFunc copy-constructs the value at dst from the value at src, leaving
// src untouched. nil for move-only components.
type CopyFunc func(dst, src unsafe.Pointer)

// DropFunc destroys the value at ptr in place.
type DropFunc func(ptr unsafe.Pointer)

// ComponentDesc describes one grouped component at store-registration time.
// Order within a [LayoutSpec] determines field index and alive-bit
// position; at most 32 components may be grouped into one store.
type ComponentDesc struct {
	// Size is the in-memory size of one value in bytes.
	Size uint32

	// Align is the required alignment in bytes. Must be a power of two.
	Align uint32

	// TriviallyRelocatable marks a component whose bytes may be relocated
	// with a raw byte copy instead of Move+Drop. When every grouped
	// component is trivially relocatable, the store uses a bulk byte-copy
	// fast path for shifts (see sector.go).
	TriviallyRelocatable bool

	// Move move-constructs a value. Required.
	Move MoveFunc

	// Copy copy-constructs a value. Optional; nil marks a move-only
	// component. Any store containing one fails [SectorStore.Clone] with
	// [ErrCopyUnsupported].
	Copy CopyFunc

	// Drop destroys a value in place. Required.
	Drop DropFunc
}

// LayoutSpec is the ordered list of components grouped into one store.
type LayoutSpec struct {
	Components []ComponentDesc
}

// layoutEntry is the resolved, offset-assigned form of a ComponentDesc.
type layoutEntry struct {
	offset               uint32
	size                 uint32
	aliveMask            uint32
	index                int
	triviallyRelocatable bool
	move                 MoveFunc
	copyFn               CopyFunc
	drop                 DropFunc
}

// layout is a per-store table of layoutEntry values built once at
// construction. Offsets are assigned greedily with natural alignment; the
// sector is padded to 8-byte alignment overall.
type layout struct {
	entries    []layoutEntry
	sectorSize uint32
	allTrivial bool
}

// buildLayout computes a layout from spec, assigning offsets and alive bits.
func buildLayout(spec LayoutSpec) (*layout, error) {
	if len(spec.Components) > maxComponents {
		return nil, ErrTooManyComponents
	}

	entries := make([]layoutEntry, len(spec.Components))
	cursor := uint32(headerSize)
	allTrivial := true

	for i, desc := range spec.Components {
		if desc.Move == nil || desc.Drop == nil {
			return nil, contractViolation(ErrUnknownType, "component missing move/drop function")
		}

		align := desc.Align
		if align == 0 {
			align = 1
		}

		cursor = alignUp(cursor, align)

		entries[i] = layoutEntry{
			offset:               cursor,
			size:                 desc.Size,
			aliveMask:            1 << uint(i),
			index:                i,
			triviallyRelocatable: desc.TriviallyRelocatable,
			move:                 desc.Move,
			copyFn:               desc.Copy,
			drop:                 desc.Drop,
		}

		cursor += desc.Size

		if !desc.TriviallyRelocatable {
			allTrivial = false
		}
	}

	return &layout{
		entries:    entries,
		sectorSize: alignUp(cursor, 8),
		allTrivial: allTrivial,
	}, nil
}

// alignUp rounds x up to the next multiple of align (align must be a power
// of two).
func alignUp(x, align uint32) uint32 {
	return (x + align - 1) &^ (align - 1)
}

// entryFor resolves a ComponentType to its layoutEntry.
func (l *layout) entryFor(t ComponentType) (*layoutEntry, error) {
	if t < 0 || int(t) >= len(l.entries) {
		return nil, contractViolation(ErrUnknownType, "component type out of range")
	}

	return &l.entries[t], nil
}

// typeCount returns the number of grouped components.
func (l *layout) typeCount() int { return len(l.entries) }

// canCopy reports whether every grouped component supports copy.
func (l *layout) canCopy() bool {
	for i := range l.entries {
		if l.entries[i].copyFn == nil {
			return false
		}
	}

	return true
}
