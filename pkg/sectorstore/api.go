package sectorstore

import "unsafe"

// SectorRef is a resolved handle to one sector's bytes. It is valid only
// until the next structural mutation of the store that produced it, unless
// the referenced id is held by a Pin — in which case the underlying bytes
// never move or get reclaimed while the pin is outstanding.
type SectorRef struct {
	store *SectorStore
	bytes []byte
	id    EntityID
}

// Valid reports whether r was actually resolved (the zero SectorRef is not
// valid).
func (r SectorRef) Valid() bool { return r.bytes != nil }

// ID returns the entity id this ref resolves to.
func (r SectorRef) ID() EntityID { return r.id }

// IsAlive reports whether component t is currently constructed on this
// sector.
func (r SectorRef) IsAlive(t ComponentType) bool {
	e, err := r.store.layout.entryFor(t)
	if err != nil {
		return false
	}

	return isAlive(r.bytes, e.aliveMask)
}

// Field returns a pointer to component t's field, or ErrNotFound if it is
// not currently alive on this sector.
func (r SectorRef) Field(t ComponentType) (unsafe.Pointer, error) {
	e, err := r.store.layout.entryFor(t)
	if err != nil {
		return nil, err
	}

	if !isAlive(r.bytes, e.aliveMask) {
		return nil, ErrNotFound
	}

	return fieldPtr(r.bytes, e), nil
}

// Pin guarantees its id's sector will not be relocated or freed by any
// structural operation (shift, defragment, erase) until Release is called.
// A Pin is not safe for concurrent use by multiple goroutines; each should
// hold its own Pin.
type Pin struct {
	store    *SectorStore
	id       EntityID
	released bool
}

// Release drops the pin. A nil Pin, or one already released, is a no-op.
func (p *Pin) Release() {
	if p == nil || p.released {
		return
	}

	p.released = true

	p.store.lock.rLock()
	defer p.store.lock.rUnlock()

	p.store.pins.unpin(p.id)
}

// ID returns the pinned entity id.
func (p *Pin) ID() EntityID { return p.id }

// Get resolves the pinned id to its current SectorRef. Because the id is
// pinned, repeated calls across intervening structural operations (other
// than one affecting this id directly) continue to resolve successfully.
func (p *Pin) Get() (SectorRef, bool) {
	return p.store.Find(p.id)
}

// IsAlive reports whether component t is alive on the pinned sector. False
// if the sector itself no longer exists (e.g. destroyed outright, as
// opposed to erased, which a pin prevents).
func (p *Pin) IsAlive(t ComponentType) bool {
	ref, ok := p.Get()
	if !ok {
		return false
	}

	return ref.IsAlive(t)
}

// IDRange is a half-open range [Lo, Hi) of entity ids, used by the ranged
// iterators. Ranges passed to IterRanged / IterRangedAlive must be sorted
// ascending and non-overlapping; that is a caller contract, not something
// the store verifies.
type IDRange struct {
	Lo, Hi EntityID
}
