package sectorstore

// chunkTable is the chunk allocator. A chunk is a CHUNK_CAPACITY-sector
// slab allocated once and never reallocated: once allocated, a chunk's
// base address and the address of every sector inside it are stable until
// the chunk is released.
//
// chunk_idx = dense_idx / capacity; in_chunk = (dense_idx % capacity) * sectorSize.
type chunkTable struct {
	chunks     []*chunk
	capacity   uint64 // sectors per chunk
	sectorSize uint32
}

type chunk struct {
	data []byte // len == capacity * sectorSize, zero-initialised
}

func newChunkTable(capacity uint64, sectorSize uint32) *chunkTable {
	return &chunkTable{capacity: capacity, sectorSize: sectorSize}
}

// totalCapacity returns chunks.len * capacity.
func (t *chunkTable) totalCapacity() uint64 {
	return uint64(len(t.chunks)) * t.capacity
}

// reserve appends chunks until total capacity >= n.
//
// Growth policy: append enough chunks to cover the entire request in one
// call, not one chunk per call regardless of the requested increment.
func (t *chunkTable) reserve(n uint64) {
	for t.totalCapacity() < n {
		t.chunks = append(t.chunks, &chunk{data: make([]byte, t.capacity*uint64(t.sectorSize))})
	}
}

// shrinkToFit releases trailing chunks not needed to hold live sectors.
func (t *chunkTable) shrinkToFit(live uint64) {
	needed := (live + t.capacity - 1) / t.capacity
	if live == 0 {
		needed = 0
	}

	for uint64(len(t.chunks)) > needed {
		t.chunks[len(t.chunks)-1] = nil
		t.chunks = t.chunks[:len(t.chunks)-1]
	}
}

// sectorBytes returns the byte range for the sector at dense index idx.
// The slice aliases chunk storage directly: callers rely on the chunk's
// address stability to retain pointers derived from it across any
// operation that does not relocate or free that specific sector.
func (t *chunkTable) sectorBytes(idx uint64) []byte {
	chunkIdx := idx / t.capacity
	inChunk := (idx % t.capacity) * uint64(t.sectorSize)

	return t.chunks[chunkIdx].data[inChunk : inChunk+uint64(t.sectorSize) : inChunk+uint64(t.sectorSize)]
}

// sectorRangeBytes returns the byte range spanning count consecutive
// sectors starting at idx. The caller must guarantee the whole range lies
// within a single chunk (see chunkBounds); it is the building block for the
// bulk-relocation fast path in store.go.
func (t *chunkTable) sectorRangeBytes(idx, count uint64) []byte {
	chunkIdx := idx / t.capacity
	inChunk := (idx % t.capacity) * uint64(t.sectorSize)
	length := count * uint64(t.sectorSize)

	return t.chunks[chunkIdx].data[inChunk : inChunk+length : inChunk+length]
}

// chunkBounds returns [start, end) dense-index bounds of the chunk
// containing idx, used to keep bulk relocations from crossing a chunk
// boundary with a single byte copy.
func (t *chunkTable) chunkBounds(idx uint64) (start, end uint64) {
	chunkIdx := idx / t.capacity
	start = chunkIdx * t.capacity
	end = start + t.capacity

	return start, end
}

// reset drops all chunks, leaving the table empty but reusable.
func (t *chunkTable) reset() {
	t.chunks = nil
}
