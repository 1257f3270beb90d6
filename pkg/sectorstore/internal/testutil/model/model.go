// Package model provides a deliberately simple, in-memory state model of
// sectorstore's publicly observable behavior.
//
// This is NOT a reference implementation: it holds no chunked storage, no
// sparse index, no hierarchical bitmap. It tracks just enough state (which
// ids have a sector, which fields are alive on each, pin counts, and the
// deferred-erase set) to predict what the real SectorStore should report.
// Property tests compare the real store against this model after a random
// sequence of operations to catch behavioral discrepancies.
//
// The model is intentionally easy to audit: naive maps and linear scans,
// favoring obvious correctness over performance.
package model

import "sort"

// FieldState is one component field's observable state on a sector.
type FieldState struct {
	Alive bool
	Value []byte
}

// Sector is one entity's modeled sector: a fixed-size field slice, indexed
// by ComponentType value.
type Sector struct {
	ID     uint32
	Fields []FieldState
}

// StoreModel mirrors one SectorStore instance.
type StoreModel struct {
	FieldCount int
	Sectors    map[uint32]*Sector
	PinCounts  map[uint32]int
	Deferred   map[uint32]bool
}

// NewStore returns an empty model for a layout with fieldCount components.
func NewStore(fieldCount int) *StoreModel {
	return &StoreModel{
		FieldCount: fieldCount,
		Sectors:    make(map[uint32]*Sector),
		PinCounts:  make(map[uint32]int),
		Deferred:   make(map[uint32]bool),
	}
}

// Clone deep-copies the model so metamorphic tests can fork identical state.
func (m *StoreModel) Clone() *StoreModel {
	out := NewStore(m.FieldCount)

	for id, sec := range m.Sectors {
		fields := make([]FieldState, len(sec.Fields))

		for i, f := range sec.Fields {
			fields[i] = FieldState{Alive: f.Alive, Value: append([]byte(nil), f.Value...)}
		}

		out.Sectors[id] = &Sector{ID: id, Fields: fields}
	}

	for id, c := range m.PinCounts {
		out.PinCounts[id] = c
	}

	for id := range m.Deferred {
		out.Deferred[id] = true
	}

	return out
}

func (m *StoreModel) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(m.Sectors))
	for id := range m.Sectors {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func isDead(sec *Sector) bool {
	for _, f := range sec.Fields {
		if f.Alive {
			return false
		}
	}

	return true
}

// Acquire constructs (or reconstructs) field on id's sector with value.
func (m *StoreModel) Acquire(id uint32, field int, value []byte) {
	sec, ok := m.Sectors[id]
	if !ok {
		sec = &Sector{ID: id, Fields: make([]FieldState, m.FieldCount)}
		m.Sectors[id] = sec
	}

	sec.Fields[field] = FieldState{Alive: true, Value: append([]byte(nil), value...)}

	delete(m.Deferred, id)
}

// DestroyMember destroys a single field, if id has a sector at all.
func (m *StoreModel) DestroyMember(id uint32, field int) {
	sec, ok := m.Sectors[id]
	if !ok {
		return
	}

	sec.Fields[field] = FieldState{}
}

// DestroySector destroys every field of id's sector, keeping the slot.
func (m *StoreModel) DestroySector(id uint32) {
	sec, ok := m.Sectors[id]
	if !ok {
		return
	}

	for i := range sec.Fields {
		sec.Fields[i] = FieldState{}
	}
}

// Get reports whether id exists and, if so, its field state.
func (m *StoreModel) Get(id uint32, field int) (FieldState, bool) {
	sec, ok := m.Sectors[id]
	if !ok {
		return FieldState{}, false
	}

	return sec.Fields[field], true
}

// Contains reports whether id currently has a sector slot (dead or alive).
func (m *StoreModel) Contains(id uint32) bool {
	_, ok := m.Sectors[id]
	return ok
}

// Size returns the number of dense slots, including logically dead ones not
// yet reclaimed by Defragment.
func (m *StoreModel) Size() int { return len(m.Sectors) }

// watermark returns the highest pinned id, or -1 if none is pinned.
func (m *StoreModel) watermark() int64 {
	high := int64(-1)

	for id, c := range m.PinCounts {
		if c > 0 && int64(id) > high {
			high = int64(id)
		}
	}

	return high
}

func (m *StoreModel) canMove(id uint32) bool {
	return int64(id) > m.watermark() && m.PinCounts[id] == 0
}

// Pin increments id's pin count.
func (m *StoreModel) Pin(id uint32) { m.PinCounts[id]++ }

// Unpin decrements id's pin count, clearing the entry at zero.
func (m *StoreModel) Unpin(id uint32) {
	if m.PinCounts[id] == 0 {
		return
	}

	m.PinCounts[id]--

	if m.PinCounts[id] == 0 {
		delete(m.PinCounts, id)
	}
}

// EraseAsync removes id immediately if movable, else defers it.
func (m *StoreModel) EraseAsync(id uint32) {
	if _, ok := m.Sectors[id]; !ok {
		return
	}

	if m.canMove(id) {
		delete(m.Sectors, id)
		delete(m.Deferred, id)

		return
	}

	m.Deferred[id] = true
}

// ProcessPending retries every deferred erase.
func (m *StoreModel) ProcessPending() {
	pending := m.Deferred
	m.Deferred = make(map[uint32]bool)

	for id := range pending {
		if _, ok := m.Sectors[id]; !ok {
			continue
		}

		if m.canMove(id) {
			delete(m.Sectors, id)
		} else {
			m.Deferred[id] = true
		}
	}
}

// PendingCount returns the number of ids awaiting ProcessPending.
func (m *StoreModel) PendingCount() int { return len(m.Deferred) }

// Defragment drops logically-dead sectors opportunistically: scanning ids
// ascending, a run of dead ids can be dropped only by pulling the next live
// id down over it, which is safe exactly when that id is movable. The
// first run whose following id isn't movable stops the pass right there —
// runs already dropped earlier in this call stay dropped, and that run
// plus every id after it is left untouched for a later call to retry.
func (m *StoreModel) Defragment() bool {
	ids := m.sortedIDs()

	for i := 0; i < len(ids); i++ {
		if !isDead(m.Sectors[ids[i]]) {
			continue
		}

		j := i
		for j < len(ids) && isDead(m.Sectors[ids[j]]) {
			j++
		}

		if j < len(ids) && !m.canMove(ids[j]) {
			return false
		}

		for k := i; k < j; k++ {
			delete(m.Sectors, ids[k])
		}

		i = j - 1
	}

	return true
}

// TryDefragment skips the movability scan entirely when nothing is pinned.
func (m *StoreModel) TryDefragment() bool {
	if len(m.PinCounts) == 0 {
		for _, id := range m.sortedIDs() {
			if isDead(m.Sectors[id]) {
				delete(m.Sectors, id)
			}
		}

		return true
	}

	return m.Defragment()
}

// Clear drops every sector and all pin/deferred state.
func (m *StoreModel) Clear() {
	m.Sectors = make(map[uint32]*Sector)
	m.PinCounts = make(map[uint32]int)
	m.Deferred = make(map[uint32]bool)
}
