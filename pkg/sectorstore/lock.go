package sectorstore

import "sync"

// Locking architecture
//
//  1. structural lock — a sync.RWMutex on SectorStore governing chunk
//     table, size, sparse index, and layout metadata. Readers (Find, Get,
//     Contains, iteration, Pin, Unpin) take it shared; structural writers
//     (Acquire, Insert, destroy, erase, shift, defragment, reserve, shrink,
//     Clear, Clone, Take) take it exclusive.
//
//  2. pinBitmap.mu — guards level word-array growth inside the pin
//     sidecar's hierarchical bitmap. Never held across a structural lock
//     acquisition.
//
//  3. pinCounters.mu — guards pin-counter block allocation.
//
// The structural lock does NOT protect pointer stability for readers that
// drop it — that is the pin's job. Lock ordering: structural lock ->
// bitmap mutex -> pin-block allocation mutex; never reversed.
// wait_until_movable releases the structural lock before parking, since
// parked goroutines must not hold it.
type structuralLock struct {
	mu sync.RWMutex
}

func (l *structuralLock) rLock()   { l.mu.RLock() }
func (l *structuralLock) rUnlock() { l.mu.RUnlock() }
func (l *structuralLock) lock()    { l.mu.Lock() }
func (l *structuralLock) unlock()  { l.mu.Unlock() }
