package sectorstore

// SectorSeq is a pull-style iterator over SectorRef values, modeled on the
// standard iterator shape: yield returning false stops iteration early.
// Every iterator here holds the store's shared structural lock for its
// entire walk, so a yield callback must not call back into any mutating
// method of the same store (it will deadlock against the lock it is
// already holding).
type SectorSeq func(yield func(SectorRef) bool)

// Iter walks every live dense slot in ascending id order — "live" at the
// sector level, meaning at least one component's alive bit is set. A
// sector every field of which has been destroyed (DestroySector, or the
// last remaining field via DestroyMember) is skipped here, even though it
// still occupies a dense slot (and Contains/Find still report it) until the
// next Defragment reclaims it. Use IterAlive to additionally filter on one
// specific component.
func (s *SectorStore) Iter() SectorSeq {
	return func(yield func(SectorRef) bool) {
		s.lock.rLock()
		defer s.lock.rUnlock()

		for i := uint64(0); i < s.size; i++ {
			sec := s.chunks.sectorBytes(i)
			if !isSectorAlive(sec) {
				continue
			}

			if !yield((SectorRef{store: s, bytes: sec, id: sectorID(sec)})) {
				return
			}
		}
	}
}

// IterAlive walks every dense slot whose component t is currently alive,
// in ascending id order.
func (s *SectorStore) IterAlive(t ComponentType) SectorSeq {
	return func(yield func(SectorRef) bool) {
		s.lock.rLock()
		defer s.lock.rUnlock()

		entry, err := s.layout.entryFor(t)
		if err != nil {
			return
		}

		for i := uint64(0); i < s.size; i++ {
			sec := s.chunks.sectorBytes(i)
			if !isAlive(sec, entry.aliveMask) {
				continue
			}

			if !yield((SectorRef{store: s, bytes: sec, id: sectorID(sec)})) {
				return
			}
		}
	}
}

// IterRanged walks every dense slot whose id falls within one of ranges, in
// ascending order. ranges must be sorted and non-overlapping.
func (s *SectorStore) IterRanged(ranges []IDRange) SectorSeq {
	return func(yield func(SectorRef) bool) {
		s.lock.rLock()
		defer s.lock.rUnlock()

		for _, rg := range ranges {
			start := s.searchInsertionPoint(rg.Lo)

			for i := start; i < s.size; i++ {
				sec := s.chunks.sectorBytes(i)

				id := sectorID(sec)
				if id >= rg.Hi {
					break
				}

				if !yield((SectorRef{store: s, bytes: sec, id: id})) {
					return
				}
			}
		}
	}
}

// IterRangedAlive combines IterRanged's range filter with IterAlive's
// component filter.
func (s *SectorStore) IterRangedAlive(t ComponentType, ranges []IDRange) SectorSeq {
	return func(yield func(SectorRef) bool) {
		s.lock.rLock()
		defer s.lock.rUnlock()

		entry, err := s.layout.entryFor(t)
		if err != nil {
			return
		}

		for _, rg := range ranges {
			start := s.searchInsertionPoint(rg.Lo)

			for i := start; i < s.size; i++ {
				sec := s.chunks.sectorBytes(i)

				id := sectorID(sec)
				if id >= rg.Hi {
					break
				}

				if !isAlive(sec, entry.aliveMask) {
					continue
				}

				if !yield((SectorRef{store: s, bytes: sec, id: id})) {
					return
				}
			}
		}
	}
}
