package sectorstore

import (
	"sort"
	"unsafe"
)

// SectorStore is a chunked, sorted-by-id, pin-aware sector store. Ids are
// kept in ascending order across the dense array at all times (invariant
// 1); lookups resolve through the sparse index, structural mutation holds
// the exclusive structural lock, and relocation of a pinned id is always
// deferred until the pin releases.
//
// The zero value is not usable; construct with New.
type SectorStore struct {
	lock structuralLock

	layout *layout
	chunks *chunkTable
	sparse sparseIndex
	pins   *pinCounters
	deferredQ *deferredQueue

	size     uint64
	deadCount uint64

	deadRatioThreshold float64
}

// New constructs an empty store for the given component layout. chunkCapacity
// of 0 uses DefaultChunkCapacity.
func New(spec LayoutSpec, chunkCapacity uint64) (*SectorStore, error) {
	if chunkCapacity == 0 {
		chunkCapacity = DefaultChunkCapacity
	}

	l, err := buildLayout(spec)
	if err != nil {
		return nil, err
	}

	return &SectorStore{
		layout:             l,
		chunks:             newChunkTable(chunkCapacity, l.sectorSize),
		pins:               newPinCounters(),
		deferredQ:          newDeferredQueue(),
		deadRatioThreshold: 0.25,
	}, nil
}

// --- capacity ---

// Reserve grows the chunk table so it can hold at least n sectors without
// further allocation.
func (s *SectorStore) Reserve(n uint64) {
	s.lock.lock()
	defer s.lock.unlock()

	s.chunks.reserve(n)
}

// ShrinkToFit releases chunks beyond what the current live set needs.
func (s *SectorStore) ShrinkToFit() {
	s.lock.lock()
	defer s.lock.unlock()

	s.chunks.shrinkToFit(s.size)
}

// Size returns the number of occupied dense slots, including logically
// empty sectors not yet reclaimed by defragment.
func (s *SectorStore) Size() uint64 {
	s.lock.rLock()
	defer s.lock.rUnlock()

	return s.size
}

// Capacity returns the chunk table's total sector capacity.
func (s *SectorStore) Capacity() uint64 {
	s.lock.rLock()
	defer s.lock.rUnlock()

	return s.chunks.totalCapacity()
}

// SparseCapacity returns the current length of the sparse index.
func (s *SectorStore) SparseCapacity() int {
	s.lock.rLock()
	defer s.lock.rUnlock()

	return s.sparse.capacity()
}

// IsEmpty reports whether the store holds no sectors.
func (s *SectorStore) IsEmpty() bool {
	return s.Size() == 0
}

// DeadRatio returns the fraction of live dense slots that are logically
// empty (every component destroyed but the sector not yet reclaimed by
// defragment).
func (s *SectorStore) DeadRatio() float64 {
	s.lock.rLock()
	defer s.lock.rUnlock()

	if s.size == 0 {
		return 0
	}

	return float64(s.deadCount) / float64(s.size)
}

// MaintenanceTick runs an opportunistic defragment pass if the dead ratio
// has crossed the store's threshold. Intended to be called periodically by
// a caller-owned scheduler; sectorstore never schedules its own maintenance.
func (s *SectorStore) MaintenanceTick() {
	if s.DeadRatio() > s.deadRatioThreshold {
		s.TryDefragment()
	}
}

// Clear drops every sector and resets the store to empty. Any outstanding
// Pin becomes meaningless; callers must not hold pins across a Clear.
func (s *SectorStore) Clear() {
	s.lock.lock()
	defer s.lock.unlock()

	s.chunks.reset()
	s.sparse = sparseIndex{}
	s.size = 0
	s.deadCount = 0
	s.pins = newPinCounters()
	s.deferredQ = newDeferredQueue()
}

// --- lookup ---

// idAt reads the id stored at dense index idx. Caller must hold the
// structural lock (shared or exclusive) and idx < s.size.
func (s *SectorStore) idAt(idx uint64) EntityID {
	return sectorID(s.chunks.sectorBytes(idx))
}

// searchInsertionPoint returns the leftmost dense index i in [0, size] such
// that idAt(i) >= id (size if no such index exists). Caller must hold the
// structural lock.
func (s *SectorStore) searchInsertionPoint(id EntityID) uint64 {
	lo, hi := uint64(0), s.size
	for lo < hi {
		mid := lo + (hi-lo)/2
		if s.idAt(mid) < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo
}

// Find resolves id to a SectorRef. The ref is valid only until the next
// structural mutation of this store, unless id is held by a Pin.
func (s *SectorStore) Find(id EntityID) (SectorRef, bool) {
	s.lock.rLock()
	defer s.lock.rUnlock()

	denseIdx := s.sparse.get(id)
	if denseIdx == invalidDense || uint64(denseIdx) >= s.size {
		return SectorRef{}, false
	}

	sec := s.chunks.sectorBytes(uint64(denseIdx))
	if sectorID(sec) != id {
		return SectorRef{}, false
	}

	return SectorRef{store: s, bytes: sec, id: id}, true
}

// Get resolves id to a SectorRef, reporting a contract violation (panicking
// in debug builds) if id is absent.
func (s *SectorStore) Get(id EntityID) (SectorRef, error) {
	ref, ok := s.Find(id)
	if !ok {
		return SectorRef{}, contractViolation(ErrNotFound, "get on absent id")
	}

	return ref, nil
}

// Contains reports whether id currently occupies a dense slot, including a
// logically empty one not yet reclaimed by defragment.
func (s *SectorStore) Contains(id EntityID) bool {
	_, ok := s.Find(id)
	return ok
}

// --- mutation: acquire / destroy ---

// Acquire returns a pointer to the field for (id, t), constructing id's
// sector (and inserting it at its sorted position) if it doesn't yet
// exist, or destroying and reconstructing the field in place if it does.
// The returned pointer is valid only until the next structural mutation,
// unless id is held by a Pin.
func (s *SectorStore) Acquire(id EntityID, t ComponentType) (unsafe.Pointer, error) {
	if id == InvalidID {
		return nil, contractViolation(ErrInvalidID, "acquire")
	}

	entry, err := s.layout.entryFor(t)
	if err != nil {
		return nil, err
	}

	s.lock.lock()

	for {
		if denseIdx := s.sparse.get(id); denseIdx != invalidDense && uint64(denseIdx) < s.size {
			sec := s.chunks.sectorBytes(uint64(denseIdx))
			if sectorID(sec) == id {
				wasEmpty := !isSectorAlive(sec)

				destroyMember(sec, entry)
				setAlive(sec, entry.aliveMask, true)

				if wasEmpty {
					s.deadCount--
				}

				s.deferredQ.remove(id)

				ptr := fieldPtr(sec, entry)
				s.lock.unlock()

				return ptr, nil
			}
		}

		pos := s.searchInsertionPoint(id)

		if pos < s.size {
			blocking := s.idAt(pos)
			if int64(blocking) <= s.pins.currentWatermark() {
				s.lock.unlock()
				s.pins.waitUntilMovable(blocking)
				s.lock.lock()

				continue
			}
		}

		if err := s.insertSlot(pos); err != nil {
			s.lock.unlock()
			return nil, err
		}

		sec := s.chunks.sectorBytes(pos)
		constructHeader(sec, id)
		s.sparse.set(id, uint32(pos))
		setAlive(sec, entry.aliveMask, true)

		s.deferredQ.remove(id)

		ptr := fieldPtr(sec, entry)
		s.lock.unlock()

		return ptr, nil
	}
}

// insertSlot grows the store by one sector at dense index pos, shifting the
// tail right if pos is interior. Caller holds the exclusive lock and has
// already confirmed the tail (if any) is movable.
func (s *SectorStore) insertSlot(pos uint64) error {
	newSize := s.size + 1
	if newSize >= uint64(invalidDense) {
		return ErrCapacityExceeded
	}

	s.chunks.reserve(newSize)

	if pos < s.size {
		s.shiftRight(pos, 1, newSize)
	}

	s.size = newSize

	return nil
}

// DestroyMember destroys a single component field of id's sector, if alive.
func (s *SectorStore) DestroyMember(id EntityID, t ComponentType) error {
	entry, err := s.layout.entryFor(t)
	if err != nil {
		return err
	}

	s.lock.lock()
	defer s.lock.unlock()

	denseIdx := s.sparse.get(id)
	if denseIdx == invalidDense || uint64(denseIdx) >= s.size {
		return ErrNotFound
	}

	sec := s.chunks.sectorBytes(uint64(denseIdx))
	if sectorID(sec) != id {
		return ErrNotFound
	}

	wasAlive := isSectorAlive(sec)
	destroyMember(sec, entry)

	if wasAlive && !isSectorAlive(sec) {
		s.deadCount++
	}

	return nil
}

// DestroyMembers destroys the field t for every id in ids that currently
// has a live sector, skipping ids that don't. ids are sorted ascending
// first for locality, as the source store's own bulk destroy does.
func (s *SectorStore) DestroyMembers(ids []EntityID, t ComponentType) error {
	entry, err := s.layout.entryFor(t)
	if err != nil {
		return err
	}

	sorted := append([]EntityID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	s.lock.lock()
	defer s.lock.unlock()

	for _, id := range sorted {
		denseIdx := s.sparse.get(id)
		if denseIdx == invalidDense || uint64(denseIdx) >= s.size {
			continue
		}

		sec := s.chunks.sectorBytes(uint64(denseIdx))
		if sectorID(sec) != id {
			continue
		}

		wasAlive := isSectorAlive(sec)
		destroyMember(sec, entry)

		if wasAlive && !isSectorAlive(sec) {
			s.deadCount++
		}
	}

	return nil
}

// DestroySector destroys every alive field of id's sector without removing
// the slot from the dense array; it stays for a future defragment or
// Acquire to reclaim.
func (s *SectorStore) DestroySector(id EntityID) error {
	s.lock.lock()
	defer s.lock.unlock()

	denseIdx := s.sparse.get(id)
	if denseIdx == invalidDense || uint64(denseIdx) >= s.size {
		return ErrNotFound
	}

	sec := s.chunks.sectorBytes(uint64(denseIdx))
	if sectorID(sec) != id {
		return ErrNotFound
	}

	wasAlive := isSectorAlive(sec)
	destroySector(sec, s.layout)

	if wasAlive {
		s.deadCount++
	}

	return nil
}

// --- erase ---

// EraseAsync removes id's sector from the store immediately if it is
// movable, or enqueues it for ProcessPending if it is not (id is pinned, or
// at or below the highest pinned id).
func (s *SectorStore) EraseAsync(id EntityID) error {
	if id == InvalidID {
		return contractViolation(ErrInvalidID, "erase_async")
	}

	s.lock.lock()
	defer s.lock.unlock()

	denseIdx := s.sparse.get(id)
	if denseIdx == invalidDense || uint64(denseIdx) >= s.size || sectorID(s.chunks.sectorBytes(uint64(denseIdx))) != id {
		return ErrNotFound
	}

	if s.pins.canMove(id) {
		return s.eraseRangeLocked(uint64(denseIdx), uint64(denseIdx)+1)
	}

	s.deferredQ.enqueue(id)

	return nil
}

// ProcessPending retries every deferred erase, re-enqueueing any id still
// pinned. Call periodically, e.g. from the same scheduler as
// MaintenanceTick.
func (s *SectorStore) ProcessPending() {
	s.lock.lock()
	defer s.lock.unlock()

	ids := s.deferredQ.drain()

	for _, id := range ids {
		denseIdx := s.sparse.get(id)
		if denseIdx == invalidDense || uint64(denseIdx) >= s.size {
			continue
		}

		if sectorID(s.chunks.sectorBytes(uint64(denseIdx))) != id {
			continue
		}

		if s.pins.canMove(id) {
			_ = s.eraseRangeLocked(uint64(denseIdx), uint64(denseIdx)+1)
		} else {
			s.deferredQ.enqueue(id)
		}
	}
}

// PendingErases returns the number of ids currently waiting on a pin before
// ProcessPending can reclaim them.
func (s *SectorStore) PendingErases() int {
	s.lock.rLock()
	defer s.lock.rUnlock()

	return s.deferredQ.len()
}

// eraseRangeLocked destroys and removes the dense range [start, end),
// closing the hole with a left shift. Caller holds the exclusive lock and
// has verified every id in range is movable.
func (s *SectorStore) eraseRangeLocked(start, end uint64) error {
	deadInRange := uint64(0)

	for i := start; i < end; i++ {
		sec := s.chunks.sectorBytes(i)

		if !isSectorAlive(sec) {
			deadInRange++
		}

		s.sparse.clear(sectorID(sec))
		destroySector(sec, s.layout)
	}

	removed := end - start

	if end < s.size {
		s.shiftLeft(end, removed, s.size)
	}

	s.size -= removed

	if deadInRange > s.deadCount {
		deadInRange = s.deadCount
	}

	s.deadCount -= deadInRange

	s.chunks.shrinkToFit(s.size)

	return nil
}

// --- shifting ---

// relocateSector move-constructs the sector at src into dst and updates the
// sparse index for its id. Used by the non-trivial (per-field move/drop)
// shift path.
func (s *SectorStore) relocateSector(src, dst uint64) {
	srcBytes := s.chunks.sectorBytes(src)
	dstBytes := s.chunks.sectorBytes(dst)

	id := sectorID(srcBytes)
	moveSector(dstBytes, srcBytes, s.layout)
	s.sparse.set(id, uint32(dst))
}

// shiftRight relocates dense range [from, newTotalSize-count) to
// [from+count, newTotalSize), processing from the high end down so no
// sector is overwritten before it has been read. Caller has already
// confirmed the whole source range is movable.
func (s *SectorStore) shiftRight(from, count, newTotalSize uint64) {
	if count == 0 {
		return
	}

	if s.layout.allTrivial {
		s.bulkShiftRight(from, count, newTotalSize)
		return
	}

	for i := newTotalSize; i > from+count; i-- {
		dst := i - 1
		src := dst - count
		s.relocateSector(src, dst)
	}
}

// shiftLeft relocates dense range [from, oldSize) to [from-count, oldSize-
// count), processing ascending — symmetric with shiftRight, and immune to
// the unsigned-underflow hazard a naive descending loop from oldSize-1 down
// to from would hit when from-count wraps near zero.
func (s *SectorStore) shiftLeft(from, count, oldSize uint64) {
	if count == 0 {
		return
	}

	if s.layout.allTrivial {
		s.bulkShiftLeft(from, count, oldSize)
		return
	}

	for i := from; i < oldSize; i++ {
		dst := i - count
		s.relocateSector(i, dst)
	}
}

// bulkShiftRight is shiftRight's trivially-relocatable fast path: it splits
// the range into the fewest possible byte-copy runs that each stay within a
// single chunk on both the source and destination side, walking from the
// high end down exactly like the per-sector loop so overlapping runs never
// clobber unread source data.
func (s *SectorStore) bulkShiftRight(from, count, newTotalSize uint64) {
	oldEnd := newTotalSize - count
	cursor := oldEnd

	for cursor > from {
		srcChunkStart, _ := s.chunks.chunkBounds(cursor - 1)
		dstChunkStart, _ := s.chunks.chunkBounds(cursor - 1 + count)

		dstBoundInSrcSpace := uint64(0)
		if dstChunkStart >= count {
			dstBoundInSrcSpace = dstChunkStart - count
		}

		runStart := maxU64(from, srcChunkStart, dstBoundInSrcSpace)
		runLen := cursor - runStart

		srcSlice := s.chunks.sectorRangeBytes(runStart, runLen)
		dstSlice := s.chunks.sectorRangeBytes(runStart+count, runLen)
		bulkRelocate(dstSlice, srcSlice)

		for k := uint64(0); k < runLen; k++ {
			movedIdx := runStart + k + count
			id := sectorID(s.chunks.sectorBytes(movedIdx))
			s.sparse.set(id, uint32(movedIdx))
		}

		cursor = runStart
	}
}

// bulkShiftLeft is shiftLeft's trivially-relocatable fast path, the mirror
// image of bulkShiftRight walking ascending.
func (s *SectorStore) bulkShiftLeft(from, count, oldSize uint64) {
	cursor := from

	for cursor < oldSize {
		_, srcChunkEnd := s.chunks.chunkBounds(cursor)
		_, dstChunkEnd := s.chunks.chunkBounds(cursor - count)

		runEnd := minU64(oldSize, srcChunkEnd, dstChunkEnd+count)
		runLen := runEnd - cursor

		srcSlice := s.chunks.sectorRangeBytes(cursor, runLen)
		dstSlice := s.chunks.sectorRangeBytes(cursor-count, runLen)
		bulkRelocate(dstSlice, srcSlice)

		for k := uint64(0); k < runLen; k++ {
			movedIdx := cursor - count + k
			id := sectorID(s.chunks.sectorBytes(movedIdx))
			s.sparse.set(id, uint32(movedIdx))
		}

		cursor = runEnd
	}
}

// --- defragment ---

// Defragment packs out logically-empty sectors and closes gaps left by
// pin-deferred relocation. Policy is opportunistic: it closes every gap it
// can and commits each one immediately, stopping in place — without
// undoing anything already closed — the instant closing the next gap would
// require moving a sector at or below the current watermark. Returns false
// when it had to stop short of a full pack.
func (s *SectorStore) Defragment() bool {
	s.lock.lock()
	defer s.lock.unlock()

	return s.defragmentLocked()
}

// TryDefragment is Defragment's cheaper cousin: when no id is pinned at
// all, it skips the per-gap movability check entirely and is guaranteed to
// complete.
func (s *SectorStore) TryDefragment() bool {
	s.lock.lock()
	defer s.lock.unlock()

	if !s.pins.hasAny() {
		return s.defragmentUnconditional()
	}

	return s.defragmentLocked()
}

// defragmentLocked walks the dense array once, low to high, looking for
// runs of dead sectors. A run can be dropped only by shifting the live run
// immediately following it down to close the gap; since the array stays
// sorted ascending, that shift is safe exactly when the id starting the
// following run is above the watermark (§ canMove). The moment a run can't
// be closed, the pass stops right there: that run and everything past it
// is left completely untouched for a future call to retry, while every gap
// already closed earlier in this same pass stays closed.
func (s *SectorStore) defragmentLocked() bool {
	pos := uint64(0)

	for pos < s.size {
		sec := s.chunks.sectorBytes(pos)
		if isSectorAlive(sec) {
			pos++
			continue
		}

		deadEnd := pos + 1
		for deadEnd < s.size && !isSectorAlive(s.chunks.sectorBytes(deadEnd)) {
			deadEnd++
		}

		if deadEnd < s.size {
			following := s.idAt(deadEnd)
			if int64(following) <= s.pins.currentWatermark() {
				return false
			}
		}

		runLen := deadEnd - pos

		for i := pos; i < deadEnd; i++ {
			s.sparse.clear(sectorID(s.chunks.sectorBytes(i)))
		}

		if deadInRange := runLen; deadInRange > s.deadCount {
			s.deadCount = 0
		} else {
			s.deadCount -= deadInRange
		}

		if deadEnd < s.size {
			s.shiftLeft(deadEnd, runLen, s.size)
		}

		s.size -= runLen
	}

	s.chunks.shrinkToFit(s.size)

	return true
}

// defragmentUnconditional is TryDefragment's fast path when has_any is
// false: no id can be pinned, so every logically-empty sector can be
// dropped and every remaining one packed without a single movability check.
func (s *SectorStore) defragmentUnconditional() bool {
	write := uint64(0)

	for read := uint64(0); read < s.size; read++ {
		sec := s.chunks.sectorBytes(read)

		if !isSectorAlive(sec) {
			s.sparse.clear(sectorID(sec))
			s.deadCount--

			continue
		}

		if write != read {
			id := sectorID(sec)
			dst := s.chunks.sectorBytes(write)
			moveSector(dst, sec, s.layout)
			s.sparse.set(id, uint32(write))
		}

		write++
	}

	s.size = write
	s.chunks.shrinkToFit(s.size)

	return true
}

// --- clone / take ---

// Clone deep-copies every live sector into a new store with its own chunk
// table, sparse index, and pin sidecar. Fails with ErrCopyUnsupported if
// any grouped component is move-only.
func (s *SectorStore) Clone() (*SectorStore, error) {
	s.lock.lock()
	defer s.lock.unlock()

	if !s.layout.canCopy() {
		return nil, contractViolation(ErrCopyUnsupported, "clone")
	}

	dst := &SectorStore{
		layout:             s.layout,
		chunks:             newChunkTable(s.chunks.capacity, s.chunks.sectorSize),
		pins:               newPinCounters(),
		deferredQ:          newDeferredQueue(),
		deadRatioThreshold: s.deadRatioThreshold,
	}

	dst.chunks.reserve(s.size)

	for i := uint64(0); i < s.size; i++ {
		srcSec := s.chunks.sectorBytes(i)
		dstSec := dst.chunks.sectorBytes(i)

		if err := copySector(dstSec, srcSec, s.layout); err != nil {
			return nil, err
		}

		dst.sparse.set(sectorID(srcSec), uint32(i))
	}

	dst.size = s.size
	dst.deadCount = s.deadCount

	return dst, nil
}

// Take absorbs other's entire contents (layout, chunks, sparse index, pin
// sidecar, deferred queue) into s, leaving other empty but reusable with
// the same chunk capacity and sector size. Both stores' structural locks
// are held for the duration, acquired in a pointer-address order fixed
// across calls to avoid an ABBA deadlock against a concurrent Take the
// other way around.
func (s *SectorStore) Take(other *SectorStore) {
	if s == other {
		return
	}

	first, second := s, other
	if uintptr(unsafe.Pointer(s)) > uintptr(unsafe.Pointer(other)) {
		first, second = other, s
	}

	first.lock.lock()
	defer first.lock.unlock()
	second.lock.lock()
	defer second.lock.unlock()

	capacity := other.chunks.capacity
	sectorSize := other.chunks.sectorSize

	s.layout = other.layout
	s.chunks = other.chunks
	s.sparse = other.sparse
	s.size = other.size
	s.deadCount = other.deadCount
	s.pins = other.pins
	s.deferredQ = other.deferredQ

	other.chunks = newChunkTable(capacity, sectorSize)
	other.sparse = sparseIndex{}
	other.size = 0
	other.deadCount = 0
	other.pins = newPinCounters()
	other.deferredQ = newDeferredQueue()
}

// --- pinning ---

// Pin prevents id's sector from being relocated or freed until the
// returned Pin is released. Pinning an absent id is not an error: the pin
// simply blocks any future Acquire of id from relocating it on insert.
func (s *SectorStore) Pin(id EntityID) (*Pin, error) {
	if id == InvalidID {
		return nil, contractViolation(ErrInvalidID, "pin")
	}

	s.lock.rLock()
	defer s.lock.rUnlock()

	if err := s.pins.pin(id); err != nil {
		return nil, err
	}

	return &Pin{store: s, id: id}, nil
}
