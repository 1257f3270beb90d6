package sectorstore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by sectorstore operations.
//
// Callers should classify errors with [errors.Is]:
//
//	if errors.Is(err, sectorstore.ErrNotFound) {
//	    // absent is an expected outcome on this path
//	}
var (
	// ErrInvalidID indicates an id equal to [InvalidID] was passed where a
	// live entity id is required.
	//
	// This is a programmer error.
	ErrInvalidID = errors.New("sectorstore: invalid id")

	// ErrUnknownType indicates a [ComponentType] not present in this
	// store's layout table.
	//
	// This is a programmer error.
	ErrUnknownType = errors.New("sectorstore: unknown component type")

	// ErrNotFound indicates the requested sector or field does not exist.
	//
	// This is an expected, recoverable outcome, not a programmer error,
	// except from [SectorStore.Get], which treats an absent id as a
	// contract violation.
	ErrNotFound = errors.New("sectorstore: not found")

	// ErrCopyUnsupported indicates [SectorStore.Clone] (or any copy
	// operation) was requested on a layout containing a move-only
	// component — one registered without a copy function.
	ErrCopyUnsupported = errors.New("sectorstore: copy unsupported for move-only component")

	// ErrCapacityExceeded indicates the sparse index or chunk table would
	// overflow the underlying index width. Always reported, never silent.
	ErrCapacityExceeded = errors.New("sectorstore: capacity exceeded")

	// ErrPinSaturated indicates a per-id pin counter would exceed its
	// 16-bit range. The caller holds far more concurrent pins on one id
	// than this engine was designed for.
	//
	// This is a programmer error.
	ErrPinSaturated = errors.New("sectorstore: pin counter saturated")

	// ErrTooManyComponents indicates a layout spec requested more than
	// [maxComponents] grouped components.
	ErrTooManyComponents = errors.New("sectorstore: too many components for one store")
)

// contractViolation wraps err with msg and, when built with the sectordebug
// tag, panics instead of returning. See debug_on.go / debug_off.go.
func contractViolation(err error, msg string) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	maybePanic(wrapped)

	return wrapped
}
