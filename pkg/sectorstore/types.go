package sectorstore

import "math"

// EntityID is a dense, recyclable, unsigned entity identifier.
type EntityID uint32

// InvalidID is the reserved sentinel value. No live sector may carry it.
const InvalidID EntityID = math.MaxUint32

// ComponentType is a dense, 0-based tag assigned per store instance at
// registration. It is an opaque index into that store's layout table and
// carries no meaning outside the store that issued it.
type ComponentType int

// invalidDense marks a sparse-index slot with no current sector.
const invalidDense uint32 = math.MaxUint32

// maxComponents bounds the number of grouped components a single store may
// carry: the alive-mask is a single uint32, one bit per component.
const maxComponents = 32

// DefaultChunkCapacity is the suggested number of sectors per chunk when the
// caller has no specific working-set size in mind.
const DefaultChunkCapacity = 16384
