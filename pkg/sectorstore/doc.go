// Package sectorstore provides a chunked, sorted-by-id, mutation-safe
// container for heterogeneous component bundles keyed by dense entity ids.
//
// sectorstore co-locates one or more component fields of an entity into a
// single contiguous memory block (a sector), supports O(1) id-to-sector
// lookup via a sparse index, permits concurrent readers and occasional
// structural mutators, and guarantees that relocating or destroying a
// sector never invalidates a pointer a reader is currently observing.
//
// # Basic usage
//
//	store, err := sectorstore.New(sectorstore.LayoutSpec{
//	    Components: []sectorstore.ComponentDesc{positionDesc, velocityDesc},
//	}, sectorstore.DefaultChunkCapacity)
//	if err != nil {
//	    // handle ErrTooManyComponents / bad component descriptors
//	}
//
//	ptr, err := store.Acquire(id, positionType)
//	pos := (*Position)(ptr)
//	*pos = Position{X: 1, Y: 2}
//
//	pin, err := store.Pin(id)
//	defer pin.Release()
//	// read through pin.Get() — the sector cannot move or be freed
//	// while pin is held.
//
// # Concurrency
//
// Read operations (Find, Get, Contains, iteration, Pin) are safe for
// concurrent use by multiple goroutines. Structural mutations (Acquire,
// destroy, erase, defragment, reserve/shrink, Clone/Take) serialize
// against each other and against readers via an internal RWMutex. Holding a
// [Pin] is the only way to retain a pointer into a sector across a
// structural mutation performed by another goroutine; see [Pin].
//
// # Error handling
//
// Errors fall into two categories:
//
// Contract violations ([ErrInvalidID], [ErrUnknownType],
// [ErrCopyUnsupported], [ErrPinSaturated]) indicate programmer error. Built
// with the sectordebug tag, these additionally panic; without it, they are
// returned as ordinary errors.
//
// Operational errors ([ErrNotFound], [ErrCapacityExceeded]) are expected in
// normal operation and are returned as values. The one exception is
// [SectorStore.Get] on an absent id, which reports [ErrNotFound] as a
// contract violation (and so panics under sectordebug).
package sectorstore
